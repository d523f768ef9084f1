// Package topic extracts a clean story topic from free-text user input.
package topic

import "strings"

const defaultTopic = "magical adventure"

// Ordered longest-first so "about cats" loses only "about",
// not a longer phrase it happens to share a word with.
var fillerPrefixes = []string{
	"tell me a story about",
	"generate story about",
	"create story about",
	"make story about",
	"tell story about",
	"story about",
	"about",
}

// Normalize lower-cases and trims the input, strips a known leading filler
// phrase, and falls back to a default topic when nothing usable remains.
func Normalize(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))

	for _, prefix := range fillerPrefixes {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}

	if len(s) < 2 {
		return defaultTopic
	}
	return s
}
