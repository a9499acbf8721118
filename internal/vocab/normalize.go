package vocab

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minWordRunes = 2
	maxWordRunes = 25
)

// Normalize lower-cases and trims a raw token and reports whether it is a
// valid item: alphabetic only and strictly between 2 and 25 runes long.
func Normalize(raw string) (string, bool) {
	word := strings.ToLower(strings.TrimSpace(raw))
	n := utf8.RuneCountInString(word)
	if n <= minWordRunes || n >= maxWordRunes {
		return "", false
	}
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return "", false
		}
	}
	return word, true
}

// Key returns the cache key for a word.
func Key(word string) string {
	return strings.ToLower(word)
}
