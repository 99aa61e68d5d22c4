package runner

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes program output for comparison: the text is
// trimmed, CRLF becomes LF, trailing whitespace is stripped from every line
// and blank lines are dropped. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\r\n", "\n")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// Match reports whether actual and expected are equal after normalization.
func Match(actual, expected string) bool {
	return Normalize(actual) == Normalize(expected)
}
