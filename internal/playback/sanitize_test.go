package playback

import "testing"

func TestCleanForSpeech(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"markdown markers", "**bold** and _italic_ and `code`", "bold and italic and code"},
		{"headings and quotes", "# Title\n> quoted", "Title quoted"},
		{"newlines and tabs", "line one\nline\ttwo", "line one line two"},
		{"emoji stripped", "great job 🎉 keep going 👍", "great job keep going"},
		{"collapses whitespace", "  a    b\n\n c ", "a b c"},
		{"control characters", "he\x07llo", "hello"},
		{"only markup", "*** ``` ___", ""},
		{"empty", "", ""},
		{"table pipes", "a | b | c", "a b c"},
		{"keeps punctuation", "Done! Next: review, then ship.", "Done! Next: review, then ship."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanForSpeech(tt.in); got != tt.want {
				t.Errorf("CleanForSpeech(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
