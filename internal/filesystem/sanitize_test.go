package filesystem_test

import (
	"testing"
	"unicode"

	"github.com/NamanBalaji/vodbatch/internal/filesystem"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"My Clip", "My Clip"},
		{"  My   Clip  ", "My Clip"},
		{"a/b\\c", "a-b-c"},
		{`what: "best" <ever>?`, `what- -best- -ever-`},
		{"a//**b", "a-b"},
		{"tabs\tand\nnewlines", "tabs and newlines"},
		{"dots...in....name", "dots.in.name"},
		{"bell\x07char", "bell-char"},
		{"pipe|pipe", "pipe-pipe"},
		{"日本語 タイトル", "日本語 タイトル"},
		{"", ""},
		{"   ", ""},
		{"///", "-"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := filesystem.Sanitize(tt.in); got != tt.want {
				t.Fatalf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"My Clip",
		" . . . ",
		"a.. ..b",
		"x\x00\x01y",
		"\xff\xfe broken utf8 \xc3",
		" line\u0085sep",
		"a - / - b",
		"...",
		"<>:\"/\\|?*",
		"  lead and trail\t",
	}

	for _, in := range inputs {
		once := filesystem.Sanitize(in)
		twice := filesystem.Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestSanitizeKeepsAlphanumerics(t *testing.T) {
	t.Parallel()

	inputs := []string{"a", "/a/", "  ?1?  ", "\x00z\x00", "..Q.."}
	for _, in := range inputs {
		got := filesystem.Sanitize(in)
		if got == "" {
			t.Errorf("Sanitize(%q) is empty", in)
			continue
		}

		hasAlnum := false
		for _, r := range got {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				hasAlnum = true
				break
			}
		}
		if !hasAlnum {
			t.Errorf("Sanitize(%q) = %q lost its alphanumerics", in, got)
		}
	}
}
