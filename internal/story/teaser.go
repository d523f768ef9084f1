package story

import "strings"

const (
	// teaserSuffix is the fixed call-to-action appended to every teaser.
	teaserSuffix = " 🎧 Tip $0.50 to unlock the full magical story!"

	// teaserPrefixChars bounds the character-count fallback for short stories.
	teaserPrefixChars = 120
)

// Teaser derives a bounded, non-spoiling preview of a full story.
// Short stories (3 sentences or fewer) are cut by character count instead of
// sentence count, since sentence slicing on short text leaks too much.
func Teaser(fullStory string) string {
	sentences := strings.Split(fullStory, ". ")

	var teaser string
	if len(sentences) <= 3 {
		if runes := []rune(fullStory); len(runes) > teaserPrefixChars {
			teaser = string(runes[:teaserPrefixChars]) + "..."
		} else {
			teaser = fullStory
		}
	} else {
		teaser = strings.Join(sentences[:2], ". ") + "..."
	}

	return teaser + teaserSuffix
}
