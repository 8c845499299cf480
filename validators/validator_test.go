package validators

import (
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type signup struct {
	Username string `validate:"required,username"`
	Email    string `validate:"required,email"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		input   signup
		wantErr string
	}{
		{"valid", signup{"alice_01", "alice@example.com"}, ""},
		{"dotted username", signup{"a.b.c", "abc@example.com"}, ""},
		{"short username", signup{"al", "al@example.com"}, "username failed username"},
		{"bad characters", signup{"al ice", "alice@example.com"}, "username failed username"},
		{"bad email", signup{"alice", "nope"}, "email failed email"},
		{"missing both", signup{}, "username failed required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.input)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			he, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected *echo.HTTPError, got %T", err)
			}
			if he.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", he.Code)
			}
			if msg, _ := he.Message.(string); !strings.Contains(msg, tt.wantErr) {
				t.Errorf("expected %q in %q", tt.wantErr, msg)
			}
		})
	}
}
