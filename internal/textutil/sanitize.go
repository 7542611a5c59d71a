package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultDisplayNameRunes bounds display names derived from titles.
const DefaultDisplayNameRunes = 100

// DisplayName turns a video title into a name safe for Content-Disposition
// and local file names. Path separators, control characters, quotes and the
// characters Windows rejects become "_"; the result is NFC-normalized, trimmed
// and cut to maxRunes. Empty results fall back to "audio".
func DisplayName(title string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultDisplayNameRunes
	}
	title = norm.NFC.String(title)

	var b strings.Builder
	b.Grow(len(title))
	count := 0
	for _, r := range title {
		if count >= maxRunes {
			break
		}
		switch {
		case r == '/' || r == '\\':
			r = '_'
		case r == '"' || r == ':' || r == '*' || r == '?' || r == '<' || r == '>' || r == '|':
			r = '_'
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
			r = '_'
		case unicode.IsSpace(r):
			r = ' '
		}
		b.WriteRune(r)
		count++
	}
	name := strings.Trim(b.String(), " ._")
	if name == "" {
		return "audio"
	}
	return name
}

// SanitizeToken converts a string to a lowercase filesystem-safe token of
// ASCII letters and digits. Returns fallback when nothing usable remains.
func SanitizeToken(value, fallback string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
		if b.Len() >= 16 {
			break
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	return b.String()
}
