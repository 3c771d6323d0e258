// Package extract finds course-code mentions in free-form chat text.
package extract

import (
	"regexp"
	"strings"
)

// Course codes look like "CSCE 221", "csce221" or "MATH-151": 2-4 letters,
// an optional space or hyphen, then exactly 3 digits. The trailing
// boundary keeps "MATH 1510" from matching as "MATH 151".
var coursePattern = regexp.MustCompile(`(?i)\b([a-z]{2,4})[ -]?([0-9]{3})\b`)

// Codes returns the unique course codes mentioned in text, normalized to
// "LETTERS DIGITS" form, in order of first occurrence. Text with no
// mentions yields an empty slice.
func Codes(text string) []string {
	matches := coursePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return []string{}
	}

	seen := make(map[string]bool, len(matches))
	codes := make([]string, 0, len(matches))

	for _, m := range matches {
		code := Normalize(m[1] + " " + m[2])
		if seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}

	return codes
}

// Normalize canonicalizes a course code: uppercase, single space between
// the letter prefix and the digits, surrounding whitespace stripped.
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.NewReplacer("-", " ", "  ", " ").Replace(code)

	// Re-split so "CSCE221" and "CSCE 221" normalize identically.
	m := coursePattern.FindStringSubmatch(code)
	if m == nil {
		return code
	}
	return strings.ToUpper(m[1]) + " " + m[2]
}
