// Package parser turns raw strings scraped from review pages into the
// canonical field values stored on models.Review.
package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var ratingPatterns = []*regexp.Regexp{
	// "4.0 out of 5 stars", "4,0 von 5 Sternen"
	regexp.MustCompile(`(?i)\b(\d)(?:[.,]\d)?\s*(?:out\s+of|von|sur|de|su)\s+5\b`),
	// "4/5", "4 / 5"
	regexp.MustCompile(`\b(\d)(?:[.,]\d)?\s*/\s*5\b`),
	// "Rated 4 stars"
	regexp.MustCompile(`(?i)\b(\d)(?:[.,]\d)?\s*stars?\b`),
}

// ParseStarRating extracts the whole-star rating from a textual rating
// description. ok is false when no rating in 1..5 is present.
func ParseStarRating(text string) (rating int, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	for _, re := range ratingPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > 5 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
