package models

import "strconv"

type Site string

const (
	SiteAmazon      Site = "amazon"
	SiteInfluenster Site = "influenster"
)

func (s Site) String() string { return string(s) }

// Sentinels written in place of fields the page did not provide.
const (
	NotAvailable   = "N/A"
	UnknownUser    = "unknown"
	DefaultHelpful = "0 people found this helpful"
	UnknownRating  = 0
)

// UnknownRatingText renders UnknownRating in rows and identity input.
const UnknownRatingText = "unknown"

// Review is one normalized review. Rating is 1..5, or UnknownRating when the
// page did not show a parseable rating.
type Review struct {
	ID       string `json:"id"`
	Site     Site   `json:"site"`
	Title    string `json:"title,omitempty"`
	Rating   int    `json:"rating"`
	Date     string `json:"date"`
	Text     string `json:"text"`
	Verified bool   `json:"verified,omitempty"`
	Helpful  string `json:"helpful,omitempty"`
	Username string `json:"username,omitempty"`
	Pros     string `json:"pros,omitempty"`
	Cons     string `json:"cons,omitempty"`
	// Filter is the listing filter the review was collected under.
	Filter string `json:"filter,omitempty"`
}

var (
	amazonColumns      = []string{"id", "title", "rating", "date", "text", "verified", "helpful"}
	influensterColumns = []string{"username", "rating", "date", "review_text", "pros", "cons"}
)

// Columns is the fixed output column order for a site.
func Columns(site Site) []string {
	if site == SiteInfluenster {
		return append([]string(nil), influensterColumns...)
	}
	return append([]string(nil), amazonColumns...)
}

// Row renders r in the column order of Columns(r.Site).
func (r *Review) Row() []string {
	if r.Site == SiteInfluenster {
		return []string{r.Username, r.RatingString(), r.Date, r.Text, r.Pros, r.Cons}
	}
	return []string{
		r.ID, r.Title, r.RatingString(), r.Date, r.Text,
		strconv.FormatBool(r.Verified), r.Helpful,
	}
}

func (r *Review) RatingString() string {
	if r.Rating == UnknownRating {
		return UnknownRatingText
	}
	return strconv.Itoa(r.Rating)
}

// MissingFields lists the fields that fell back to a sentinel.
func (r *Review) MissingFields() []string {
	var missing []string
	if r.Rating == UnknownRating {
		missing = append(missing, "rating")
	}
	if r.Date == "" || r.Date == NotAvailable {
		missing = append(missing, "date")
	}
	if r.Text == "" || r.Text == NotAvailable {
		missing = append(missing, "text")
	}
	switch r.Site {
	case SiteAmazon:
		if r.Title == "" || r.Title == NotAvailable {
			missing = append(missing, "title")
		}
	case SiteInfluenster:
		if r.Username == "" || r.Username == UnknownUser {
			missing = append(missing, "username")
		}
	}
	return missing
}
