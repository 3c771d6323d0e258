package reviews

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Review-page parsing is two-tier. The primary tier walks the labeled
// blocks of the rendered markup with goquery; when it comes up empty the
// secondary tier pattern-matches the page's embedded JSON state. The
// upstream is unversioned third-party content, so both tiers are
// best-effort and format drift is expected.

var (
	firstNumber = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)

	jsNamePattern        = regexp.MustCompile(`"firstName"\s*:\s*"([^"]*)"\s*,\s*"lastName"\s*:\s*"([^"]*)"`)
	jsRatingPattern      = regexp.MustCompile(`"avgRating"\s*:\s*([0-9.]+)`)
	jsNumRatingsPattern  = regexp.MustCompile(`"numRatings"\s*:\s*([0-9]+)`)
	jsTakeAgainPattern   = regexp.MustCompile(`"wouldTakeAgainPercent"\s*:\s*(-?[0-9.]+)`)
	jsDifficultyPattern  = regexp.MustCompile(`"avgDifficulty"\s*:\s*([0-9.]+)`)
	jsTagPattern         = regexp.MustCompile(`"tagName"\s*:\s*"([^"]+)"`)
	rawAttendancePattern = regexp.MustCompile(`(?i)attendance["'>:\s]{1,20}(non-?\s?mandatory|not mandatory|mandatory)`)
	rawTextbookPattern   = regexp.MustCompile(`(?i)textbook["'>:\s]{1,20}(yes|no)`)
)

func parseReviewPage(html, id string) (*ProfessorReview, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse review page: %w", err)
	}

	review := &ProfessorReview{
		ID:             id,
		WouldTakeAgain: -1,
		Tags:           []string{},
		Attendance:     map[string]int{},
		Textbook:       map[string]int{},
	}

	if !parseStructured(doc, review) {
		parseEmbedded(html, review)
	}

	if len(review.Attendance) == 0 && len(review.Textbook) == 0 {
		parsePolicyFallback(html, review)
	}

	if review.Name == "" && review.Rating == 0 && review.RatingCount == 0 {
		return nil, fmt.Errorf("review page for %s has no recognizable data", id)
	}

	return review, nil
}

// parseStructured is the primary tier: labeled metadata blocks in the
// rendered markup. It reports whether it found anything at all.
func parseStructured(doc *goquery.Document, review *ProfessorReview) bool {
	review.Name = squish(doc.Find(`div[class*="NameTitle__Name"]`).First().Text())

	if text := doc.Find(`div[class*="RatingValue__Numerator"]`).First().Text(); text != "" {
		review.Rating = parseFloat(text)
	}

	if text := doc.Find(`div[class*="RatingValue__NumRatings"]`).First().Text(); text != "" {
		review.RatingCount = int(parseFloat(text))
	}

	doc.Find(`div[class*="FeedbackItem"]`).Each(func(_ int, s *goquery.Selection) {
		label := strings.ToLower(s.Find(`div[class*="FeedbackDescription"]`).Text())
		value := s.Find(`div[class*="FeedbackNumber"]`).Text()
		switch {
		case strings.Contains(label, "take again"):
			review.WouldTakeAgain = parseFloat(value)
		case strings.Contains(label, "difficulty"):
			review.Difficulty = parseFloat(value)
		}
	})

	seenTags := make(map[string]bool)
	doc.Find(`span[class*="Tag-"]`).Each(func(_ int, s *goquery.Selection) {
		tag := squish(s.Text())
		if tag == "" || seenTags[tag] {
			return
		}
		seenTags[tag] = true
		review.Tags = append(review.Tags, tag)
	})

	doc.Find(`div[class*="MetaItem"]`).Each(func(_ int, s *goquery.Selection) {
		value := squish(s.Find("span").First().Text())
		if value == "" {
			return
		}
		label := strings.ToLower(s.Text())
		switch {
		case strings.Contains(label, "attendance"):
			review.Attendance[value]++
		case strings.Contains(label, "textbook"):
			review.Textbook[value]++
		}
	})

	return review.Name != "" || review.Rating != 0 || review.RatingCount != 0
}

// parseEmbedded is the secondary tier: regexes over the embedded JSON
// state blob the review site ships with each page.
func parseEmbedded(html string, review *ProfessorReview) {
	if m := jsNamePattern.FindStringSubmatch(html); m != nil {
		review.Name = squish(m[1] + " " + m[2])
	}
	if m := jsRatingPattern.FindStringSubmatch(html); m != nil {
		review.Rating = parseFloat(m[1])
	}
	if m := jsNumRatingsPattern.FindStringSubmatch(html); m != nil {
		review.RatingCount = int(parseFloat(m[1]))
	}
	if m := jsTakeAgainPattern.FindStringSubmatch(html); m != nil {
		review.WouldTakeAgain = parseFloat(m[1])
	}
	if m := jsDifficultyPattern.FindStringSubmatch(html); m != nil {
		review.Difficulty = parseFloat(m[1])
	}

	seenTags := make(map[string]bool)
	for _, m := range jsTagPattern.FindAllStringSubmatch(html, -1) {
		tag := squish(m[1])
		if tag == "" || seenTags[tag] {
			continue
		}
		seenTags[tag] = true
		review.Tags = append(review.Tags, tag)
	}
}

// parsePolicyFallback pattern-matches attendance and textbook mentions in
// the raw markup when neither tier found labeled policy blocks.
func parsePolicyFallback(html string, review *ProfessorReview) {
	for _, m := range rawAttendancePattern.FindAllStringSubmatch(html, -1) {
		review.Attendance[canonicalPolicy(m[1])]++
	}
	for _, m := range rawTextbookPattern.FindAllStringSubmatch(html, -1) {
		review.Textbook[canonicalPolicy(m[1])]++
	}
}

func canonicalPolicy(value string) string {
	switch squish(strings.ToLower(value)) {
	case "mandatory":
		return "Mandatory"
	case "not mandatory", "non mandatory", "non-mandatory", "nonmandatory":
		return "Not Mandatory"
	case "yes":
		return "Yes"
	case "no":
		return "No"
	default:
		return squish(value)
	}
}

func parseFloat(text string) float64 {
	m := firstNumber.FindString(text)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

func squish(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
