package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReview_RowMatchesColumns(t *testing.T) {
	tests := []struct {
		name   string
		review Review
		want   []string
	}{
		{
			name: "amazon",
			review: Review{
				ID: "abc", Site: SiteAmazon, Title: "Great", Rating: 5, Date: "2024-03-12",
				Text: "Loved it", Verified: true, Helpful: DefaultHelpful,
			},
			want: []string{"abc", "Great", "5", "2024-03-12", "Loved it", "true", DefaultHelpful},
		},
		{
			name: "influenster unknown rating",
			review: Review{
				Site: SiteInfluenster, Username: "jane", Date: "2025-04-20", Text: "Nice",
			},
			want: []string{"jane", UnknownRatingText, "2025-04-20", "Nice", "", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := tt.review.Row()
			assert.Equal(t, tt.want, row)
			assert.Len(t, row, len(Columns(tt.review.Site)))
		})
	}
}

func TestReview_RatingString(t *testing.T) {
	assert.Equal(t, "4", (&Review{Rating: 4}).RatingString())
	assert.Equal(t, "unknown", (&Review{Rating: UnknownRating}).RatingString())
}

func TestColumns_ReturnsCopy(t *testing.T) {
	cols := Columns(SiteAmazon)
	cols[0] = "changed"
	assert.Equal(t, "id", Columns(SiteAmazon)[0])
	assert.Equal(t, []string{"username", "rating", "date", "review_text", "pros", "cons"}, Columns(SiteInfluenster))
}

func TestSummarize(t *testing.T) {
	reviews := []*Review{
		{Site: SiteAmazon, Title: "a", Rating: 5, Date: "d", Text: "t", Verified: true},
		{Site: SiteAmazon, Title: NotAvailable, Rating: 5, Date: "d", Text: NotAvailable},
		{Site: SiteInfluenster, Username: UnknownUser, Rating: UnknownRating, Date: "d", Text: "t"},
	}

	s := Summarize(reviews)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.ByRating[5])
	assert.Equal(t, 1, s.ByRating[UnknownRating])
	assert.Equal(t, 1, s.Verified)
	assert.Equal(t, 1, s.MissingField["title"])
	assert.Equal(t, 1, s.MissingField["text"])
	assert.Equal(t, 1, s.MissingField["username"])
	assert.Equal(t, 1, s.MissingField["rating"])
}
