package textutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"Song":                       "Song",
		"AC/DC - Back\\In Black":     "AC_DC - Back_In Black",
		"line\nbreak\ttab":           "line_break_tab",
		`Say "Hi": part 1?`:          "Say _Hi__ part 1",
		"../../etc/passwd":           "etc_passwd",
		"   ":                        "audio",
		"":                           "audio",
		"Cafe\u0301 del Mar":       "Caf\u00e9 del Mar",
		"Tokyo \u6771\u4eac Nights": "Tokyo \u6771\u4eac Nights",
	}
	for input, want := range cases {
		if got := DisplayName(input, 0); got != want {
			t.Fatalf("DisplayName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestDisplayNameTruncates(t *testing.T) {
	long := strings.Repeat("é", 300)
	got := DisplayName(long, 50)
	if utf8.RuneCountInString(got) != 50 {
		t.Fatalf("expected 50 runes, got %d", utf8.RuneCountInString(got))
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation split a rune")
	}
}

func TestSanitizeToken(t *testing.T) {
	cases := []struct{ in, want string }{
		{"webm", "webm"},
		{"M4A", "m4a"},
		{"../mp4", "mp4"},
		{"", "bin"},
		{"..", "bin"},
	}
	for _, tc := range cases {
		if got := SanitizeToken(tc.in, "bin"); got != tc.want {
			t.Fatalf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
