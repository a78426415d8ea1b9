// Package utils provides common utility functions.
package utils

import (
	"strings"
	"unicode/utf8"
)

// NormalizeWhitespace replaces multiple whitespace with single space.
func NormalizeWhitespace(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// TruncateRunes cuts str to at most maxRunes runes and trims trailing whitespace
// left behind by the cut. A non-positive limit returns str unchanged.
func TruncateRunes(str string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(str) <= maxRunes {
		return str
	}

	count := 0
	for i := range str {
		if count == maxRunes {
			return strings.TrimRightFunc(str[:i], isSpace)
		}
		count++
	}

	return str
}

// CleanText normalizes whitespace and caps the result at maxRunes.
func CleanText(str string, maxRunes int) string {
	return strings.TrimSpace(TruncateRunes(NormalizeWhitespace(str), maxRunes))
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
