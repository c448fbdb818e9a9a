package util

import (
	"testing"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		pattern string
		want    bool
	}{
		{"star matches everything", "anything", "*", true},
		{"star matches empty", "", "*", true},
		{"exact match", "user:1001", "user:1001", true},
		{"exact mismatch", "user:1001", "user:1002", false},
		{"prefix", "user:1001", "user:*", true},
		{"prefix mismatch", "session:1001", "user:*", false},
		{"suffix", "user:1001", "*:1001", true},
		{"suffix mismatch", "user:1001", "*:1002", false},
		{"infix", "user:1001:profile", "user:*:profile", true},
		{"infix mismatch", "user:1001:settings", "user:*:profile", false},
		{"empty pattern empty key", "", "", true},
		{"empty pattern nonempty key", "a", "", false},
		{"question mark", "user:1", "user:?", true},
		{"question mark mismatch", "user:12", "user:?", false},
		{"star matches empty segment", "user:", "user:*", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchPattern(tt.key, tt.pattern); got != tt.want {
				t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.key, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestValidPattern(t *testing.T) {
	if !ValidPattern("user:*") {
		t.Error("user:* should be a valid pattern")
	}
	if ValidPattern("user:[") {
		t.Error("unterminated character class should be invalid")
	}
}
