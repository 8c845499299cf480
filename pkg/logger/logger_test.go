package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	InitLogger("debug", "json", &buf)

	if logrus.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", logrus.GetLevel())
	}

	buf.Reset()
	For("relations").Info("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "relations" {
		t.Errorf("expected component field, got %v", entry["component"])
	}
}

func TestInitLoggerUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	InitLogger("chatty", "text", &buf)

	if logrus.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected fallback to info, got %s", logrus.GetLevel())
	}
	if !strings.Contains(buf.String(), "Unknown log level") {
		t.Errorf("expected a warning about the level, got %q", buf.String())
	}
}
