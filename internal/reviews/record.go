// Package reviews fetches and caches professor review data scraped from
// the external review site.
package reviews

// ProfessorReview is the parsed review-page data for one professor, keyed
// by the opaque id from the review-page URL. A failed fetch is stored too,
// as an error marker, so a flaky upstream is not re-hit within the TTL.
type ProfessorReview struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Rating         float64        `json:"rating"`
	RatingCount    int            `json:"ratingCount"`
	WouldTakeAgain float64        `json:"wouldTakeAgain"`
	Difficulty     float64        `json:"difficulty"`
	Tags           []string       `json:"tags"`
	Attendance     map[string]int `json:"attendance"`
	Textbook       map[string]int `json:"textbook"`
	FetchError     string         `json:"fetchError,omitempty"`
}

// Failed reports whether this record is an error marker rather than data.
func (r *ProfessorReview) Failed() bool {
	return r.FetchError != ""
}
