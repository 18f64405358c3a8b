package search

import (
	"strings"
	"unicode"
)

// normalizeQuery lowercases text and trims surrounding whitespace and
// punctuation, ASCII or full-width.
func normalizeQuery(text string) string {
	return strings.ToLower(strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}))
}

// containsQuery reports whether the normalized query occurs in document.
func containsQuery(document, query string) bool {
	if query == "" {
		return false
	}
	return strings.Contains(strings.ToLower(document), query)
}
