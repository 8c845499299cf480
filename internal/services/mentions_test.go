package services

import (
	"reflect"
	"testing"
)

func TestExtractMentions(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"none", "just a post", []string{}},
		{"start of text", "@alice hi", []string{"alice"}},
		{"lowercased and deduplicated", "@Bob and @bob and @BOB", []string{"bob"}},
		{"order of appearance", "hey @carol, @alice.", []string{"carol", "alice"}},
		{"email is not a mention", "mail me at bob@example.com", []string{}},
		{"too short", "@al", []string{}},
		{"dots and underscores", "cc @john.doe_99", []string{"john.doe_99"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractMentions(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractMentions(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestNewMentions(t *testing.T) {
	got := newMentions([]string{"alice", "bob"}, []string{"bob", "carol"})
	if !reflect.DeepEqual(got, []string{"carol"}) {
		t.Errorf("newMentions = %v, want [carol]", got)
	}
	if got := newMentions([]string{"alice"}, []string{"alice"}); got != nil {
		t.Errorf("expected nil for no new mentions, got %v", got)
	}
}
