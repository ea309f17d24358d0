package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// A bare "m" is not accepted: "2m ago" could mean minutes or months and is
// returned unchanged rather than guessed as months.
var relativeDate = regexp.MustCompile(
	`^(\d+)\s*(days?|d|hours?|hrs?|hr|h|months?|mos?|years?|yrs?|yr|y)\b\s*(?:ago)?$`)

// ParseRelativeDate resolves expressions like "2 days ago" or "3mo ago"
// against ref. Months count as 30 days and years as 365 days. Expressions
// it does not understand are returned unchanged.
func ParseRelativeDate(expr string, ref time.Time) string {
	m := relativeDate.FindStringSubmatch(strings.ToLower(strings.TrimSpace(expr)))
	if m == nil {
		return expr
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return expr
	}

	var delta time.Duration
	switch unit := m[2]; {
	case strings.HasPrefix(unit, "d"):
		delta = time.Duration(n) * 24 * time.Hour
	case strings.HasPrefix(unit, "h"):
		delta = time.Duration(n) * time.Hour
	case strings.HasPrefix(unit, "m"):
		delta = time.Duration(n) * 30 * 24 * time.Hour
	default:
		delta = time.Duration(n) * 365 * 24 * time.Hour
	}
	return ref.Add(-delta).Format(dateLayout)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	dateLayout,
}

// ParseTimestamp parses a machine-readable timestamp attribute and returns
// its UTC calendar date.
func ParseTimestamp(attr string) (string, bool) {
	attr = strings.TrimSpace(attr)
	if attr == "" {
		return "", false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, attr); err == nil {
			return t.UTC().Format(dateLayout), true
		}
	}
	return "", false
}

var (
	reviewedOn = regexp.MustCompile(`(?i)\bon\s+(.+)$`)

	reviewDateLayouts = []string{
		"2 January 2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2 Jan 2006",
		"2. January 2006",
	}
)

// ParseReviewDate turns a "Reviewed in India on 12 March 2024" line into an
// ISO date. Lines it cannot parse are returned unchanged.
func ParseReviewDate(text string) string {
	trimmed := strings.TrimSpace(text)
	candidate := trimmed
	if m := reviewedOn.FindStringSubmatch(trimmed); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	for _, layout := range reviewDateLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t.Format(dateLayout)
		}
	}
	return text
}
