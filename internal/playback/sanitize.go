package playback

import (
	"strings"
	"unicode"
)

// markdownChars are formatting characters the synthesis voice would read
// aloud or stumble over.
const markdownChars = "*_#`~>|"

// CleanForSpeech strips characters unsuitable for synthesis: markdown
// markers, emoji and other symbols, and collapses the leftover whitespace.
func CleanForSpeech(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		switch {
		case strings.ContainsRune(markdownChars, r):
			b.WriteRune(' ')
		case r == '\n' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
			// drop
		case unicode.In(r, unicode.So, unicode.Sk, unicode.Co):
			// emoji and friends
		case r > 0x1F000:
			// supplementary symbol planes missed by the ranges above
		default:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
