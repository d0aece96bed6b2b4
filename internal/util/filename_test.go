package util

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "khoindvn", "khoindvn"},
		{"url", "https://khoindvn.io.vn/", "https___khoindvn.io.vn_"},
		{"spaces trimmed then replaced", "  apple jr ", "apple_jr"},
		{"traversal", "../../etc/passwd", "_.._etc_passwd"},
		{"hidden", ".profile", "profile"},
		{"control chars", "a\tb\x00c", "a_b_c"},
		{"empty", "", "_"},
		{"only dots", "...", "_"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeFilename(tc.input); got != tc.expected {
				t.Errorf("SanitizeFilename(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestSanitizeFilenameLength(t *testing.T) {
	t.Parallel()

	got := SanitizeFilename(strings.Repeat("a", 300))
	if len(got) != MaxFilenameLength {
		t.Errorf("len = %d; want %d", len(got), MaxFilenameLength)
	}
}

func TestProfileFilename(t *testing.T) {
	t.Parallel()

	if got := ProfileFilename("apple/jr"); got != "apple_jr.mobileconfig" {
		t.Errorf("ProfileFilename() = %q", got)
	}
}
