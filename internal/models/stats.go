package models

// Stats summarizes a finished run.
type Stats struct {
	Total        int            `json:"total"`
	ByRating     map[int]int    `json:"by_rating"`
	MissingField map[string]int `json:"missing_fields"`
	Verified     int            `json:"verified"`
}

func Summarize(reviews []*Review) Stats {
	s := Stats{
		Total:        len(reviews),
		ByRating:     make(map[int]int),
		MissingField: make(map[string]int),
	}
	for _, r := range reviews {
		s.ByRating[r.Rating]++
		if r.Verified {
			s.Verified++
		}
		for _, f := range r.MissingFields() {
			s.MissingField[f]++
		}
	}
	return s
}
