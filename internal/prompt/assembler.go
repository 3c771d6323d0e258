// Package prompt assembles the grounding prompt for a chat turn.
package prompt

import (
	"fmt"
	"strings"

	"github.com/gradelens/backend/internal/gradestats"
	"github.com/gradelens/backend/internal/reviews"
)

// SystemPrompt fixes the assistant's role, ranking heuristic, and voice.
// The GPA tie-break threshold is a behavioral hint to the model, not a
// rule enforced in code.
const SystemPrompt = `You are GradeLens, a friendly course advisor grounded in real grade distributions and professor reviews.

Ranking rules:
1. Rank professors primarily by average GPA across recent terms.
2. When two professors are within 0.2 GPA points of each other, break the tie using review signal: higher rating, lower difficulty, and favorable tags win.
3. Never invent numbers; only use the data provided below.

Style rules:
- Be concise and organize by theme, not by data source.
- Emojis are welcome in moderation.
- Do not include links unless the student asks for them.
- Synthesize the data into advice; never dump raw rows back at the student.`

// Turn is one prior message in the conversation window.
type Turn struct {
	Content string `json:"content"`
	IsUser  bool   `json:"isUser"`
}

// Build is a pure function of the turn's inputs. It renders prior turns,
// the active course list, and the serialized statistics and review data
// into one grounding prompt.
func Build(
	query string,
	history []Turn,
	statsByCourse map[string]*gradestats.CourseStatistics,
	reviewsByCourse map[string][]*reviews.ProfessorReview,
	activeCourses []string,
) string {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			speaker := "Assistant"
			if turn.IsUser {
				speaker = "Student"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, turn.Content)
		}
		b.WriteString("\n")
	}

	if len(activeCourses) > 0 {
		fmt.Fprintf(&b, "Courses under discussion: %s\n\n", strings.Join(activeCourses, ", "))
	}

	for _, course := range activeCourses {
		if stats, ok := statsByCourse[course]; ok {
			b.WriteString(formatCourseStats(stats))
		}
		if courseReviews, ok := reviewsByCourse[course]; ok {
			b.WriteString(formatReviews(course, courseReviews))
		}
	}

	fmt.Fprintf(&b, "Student question: %s\n", query)

	return b.String()
}

func formatCourseStats(stats *gradestats.CourseStatistics) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Grade data for %s", stats.Course)
	if len(stats.PerTerm) == 0 {
		b.WriteString(": no recorded sections.\n\n")
		return b.String()
	}
	b.WriteString(" (instructor, term, sections, average GPA; highest GPA first):\n")

	for _, row := range stats.PerTerm {
		fmt.Fprintf(&b, "- %s | %s | %d sections | %.2f GPA\n",
			row.Instructor, row.Term, row.Sections, row.AvgGPA)
	}

	fmt.Fprintf(&b, "Instructors on record: %s\n\n", strings.Join(stats.Instructors, ", "))

	return b.String()
}

func formatReviews(course string, courseReviews []*reviews.ProfessorReview) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Professor reviews for %s:\n", course)

	for _, r := range courseReviews {
		if r.Failed() {
			fmt.Fprintf(&b, "- %s: review data unavailable\n", r.ID)
			continue
		}

		fmt.Fprintf(&b, "- %s: %.1f/5 over %d ratings", r.Name, r.Rating, r.RatingCount)
		if r.WouldTakeAgain >= 0 {
			fmt.Fprintf(&b, ", %.0f%% would take again", r.WouldTakeAgain)
		}
		fmt.Fprintf(&b, ", difficulty %.1f", r.Difficulty)
		if len(r.Tags) > 0 {
			fmt.Fprintf(&b, ", tags: %s", strings.Join(r.Tags, ", "))
		}
		if policy := topPolicy(r.Attendance); policy != "" {
			fmt.Fprintf(&b, ", attendance mostly %s", policy)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")

	return b.String()
}

// topPolicy picks the most reported policy label from a histogram.
func topPolicy(histogram map[string]int) string {
	best := ""
	bestCount := 0
	for label, count := range histogram {
		if count > bestCount || (count == bestCount && label < best) {
			best = label
			bestCount = count
		}
	}
	return best
}
