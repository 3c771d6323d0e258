package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "dedupes across formats preserving first occurrence",
			text: "compare csce221 and MATH-151, and CSCE 221 again",
			want: []string{"CSCE 221", "MATH 151"},
		},
		{
			name: "no codes",
			text: "which professor is the easiest?",
			want: []string{},
		},
		{
			name: "empty input",
			text: "",
			want: []string{},
		},
		{
			name: "hyphen separator",
			text: "thoughts on ECEN-214?",
			want: []string{"ECEN 214"},
		},
		{
			name: "two letter prefix",
			text: "is ms309 hard",
			want: []string{"MS 309"},
		},
		{
			name: "four digit numbers are not course codes",
			text: "MATH 1510 is not a thing here",
			want: []string{},
		},
		{
			name: "prefix longer than four letters rejected",
			text: "HONORS 101 should not match",
			want: []string{},
		},
		{
			name: "multiple distinct codes keep order",
			text: "CSCE 121 vs CSCE 221 vs MATH 251",
			want: []string{"CSCE 121", "CSCE 221", "MATH 251"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Codes(tt.text))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "CSCE 221", Normalize("csce221"))
	assert.Equal(t, "CSCE 221", Normalize("  CSCE-221 "))
	assert.Equal(t, "CSCE 221", Normalize("CSCE 221"))
}
