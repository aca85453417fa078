package util

import "testing"

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"longer than limit", "very-long-token-abc123", 8, "very-lon"},
		{"shorter than limit", "short", 10, "short"},
		{"exact length", "eight-ch", 8, "eight-ch"},
		{"zero limit", "anything", 0, ""},
		{"negative limit", "test", -1, ""},
		{"empty string", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.s, tt.maxLen); got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
		})
	}
}
