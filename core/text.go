package core

import (
	"strings"
	"unicode/utf8"
)

// TruncationMarker is appended to text cut down by TruncateText.
const TruncationMarker = "..."

// CleanText removes ASCII control characters other than tab, newline and
// carriage return.
func CleanText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r <= 0x08, r == 0x0B, r == 0x0C, r >= 0x0E && r <= 0x1F, r == 0x7F:
			return -1
		}
		return r
	}, s)
}

// TruncateText limits s to max code points, appending TruncationMarker when
// anything was cut. max <= 0 disables truncation.
func TruncateText(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return Prefix(s, max) + TruncationMarker
}
