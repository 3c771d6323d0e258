package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gradelens/backend/internal/gradestats"
	"github.com/gradelens/backend/internal/reviews"
	"github.com/gradelens/backend/internal/storage/models"
)

func fixtureStats() map[string]*gradestats.CourseStatistics {
	return map[string]*gradestats.CourseStatistics{
		"CSCE 221": {
			Course: "CSCE 221",
			PerTerm: []models.InstructorTermStat{
				{Instructor: "Leyk", Term: "FALL 2023", Sections: 3, AvgGPA: 3.55},
				{Instructor: "Moore", Term: "FALL 2023", Sections: 2, AvgGPA: 3.10},
			},
			Instructors: []string{"Leyk", "Moore"},
		},
	}
}

func fixtureReviews() map[string][]*reviews.ProfessorReview {
	return map[string][]*reviews.ProfessorReview{
		"CSCE 221": {
			{ID: "p1", Name: "Leyk", Rating: 4.2, RatingCount: 117, WouldTakeAgain: 93, Difficulty: 3.1, Tags: []string{"Caring"}},
			{ID: "p2", FetchError: "review page returned status 500"},
		},
	}
}

func TestBuildIncludesRankingHeuristic(t *testing.T) {
	assert.Contains(t, SystemPrompt, "primarily by average GPA")
	assert.Contains(t, SystemPrompt, "within 0.2 GPA points")
	assert.Contains(t, SystemPrompt, "rating, lower difficulty")
}

func TestBuildIncludesToneConstraints(t *testing.T) {
	assert.Contains(t, SystemPrompt, "concise")
	assert.Contains(t, SystemPrompt, "Emojis")
	assert.Contains(t, SystemPrompt, "Do not include links unless")
	assert.Contains(t, SystemPrompt, "Synthesize")
}

func TestBuildOrdersStatsAheadOfTie(t *testing.T) {
	// Fixture has Leyk 0.45 GPA points above Moore: under the stated
	// heuristic the data presented must already rank Leyk first.
	out := Build("who should I take?", nil, fixtureStats(), fixtureReviews(), []string{"CSCE 221"})

	leyk := strings.Index(out, "Leyk | FALL 2023")
	moore := strings.Index(out, "Moore | FALL 2023")
	assert.GreaterOrEqual(t, leyk, 0)
	assert.GreaterOrEqual(t, moore, 0)
	assert.Less(t, leyk, moore)
}

func TestBuildRendersHistoryAndContext(t *testing.T) {
	history := []Turn{
		{Content: "tell me about CSCE 221", IsUser: true},
		{Content: "CSCE 221 is Data Structures...", IsUser: false},
	}

	out := Build("what about the professors?", history, fixtureStats(), fixtureReviews(), []string{"CSCE 221"})

	assert.Contains(t, out, "Student: tell me about CSCE 221")
	assert.Contains(t, out, "Assistant: CSCE 221 is Data Structures...")
	assert.Contains(t, out, "Courses under discussion: CSCE 221")
	assert.Contains(t, out, "Student question: what about the professors?")
}

func TestBuildSerializesStatsAndReviews(t *testing.T) {
	out := Build("q", nil, fixtureStats(), fixtureReviews(), []string{"CSCE 221"})

	assert.Contains(t, out, "Leyk | FALL 2023 | 3 sections | 3.55 GPA")
	assert.Contains(t, out, "Instructors on record: Leyk, Moore")
	assert.Contains(t, out, "Leyk: 4.2/5 over 117 ratings, 93% would take again, difficulty 3.1, tags: Caring")
	assert.Contains(t, out, "p2: review data unavailable")
}

func TestBuildEmptyDataset(t *testing.T) {
	stats := map[string]*gradestats.CourseStatistics{
		"NUEN 301": {Course: "NUEN 301", PerTerm: nil, Instructors: nil},
	}

	out := Build("q", nil, stats, nil, []string{"NUEN 301"})
	assert.Contains(t, out, "Grade data for NUEN 301: no recorded sections.")
}
