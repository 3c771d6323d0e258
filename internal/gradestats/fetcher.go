// Package gradestats computes per-course instructor GPA aggregates for a
// chat turn. Results are per-turn values and are never cached.
package gradestats

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/gradelens/backend/internal/storage/models"
	"github.com/gradelens/backend/pkg/logger"
)

// Store is the slice of the grade database the fetcher needs.
type Store interface {
	CourseTermStats(ctx context.Context, code string) ([]models.InstructorTermStat, error)
}

// CourseStatistics is everything the prompt needs about one course:
// per-term rows (already sorted by descending average GPA by the store)
// and the distinct instructors behind them.
type CourseStatistics struct {
	Course      string
	PerTerm     []models.InstructorTermStat
	Instructors []string
}

type Fetcher struct {
	store Store
}

func NewFetcher(store Store) *Fetcher {
	return &Fetcher{store: store}
}

// FetchCourse loads aggregates for one course. A course with no recorded
// sections returns empty lists, not an error.
func (f *Fetcher) FetchCourse(ctx context.Context, code string) (*CourseStatistics, error) {
	perTerm, err := f.store.CourseTermStats(ctx, code)
	if err != nil {
		return nil, err
	}

	return &CourseStatistics{
		Course:      code,
		PerTerm:     perTerm,
		Instructors: distinctInstructors(perTerm),
	}, nil
}

// FetchCourses loads all requested courses concurrently and returns
// whatever succeeded, keyed by course code. A database failure for one
// course degrades that course to an empty result set rather than failing
// the turn.
func (f *Fetcher) FetchCourses(ctx context.Context, codes []string) map[string]*CourseStatistics {
	results := make(map[string]*CourseStatistics, len(codes))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()

			stats, err := f.FetchCourse(ctx, code)
			if err != nil {
				logger.Warn("Course stats fetch failed, degrading to empty",
					zap.String("course", code),
					zap.Error(err),
				)
				stats = &CourseStatistics{
					Course:      code,
					PerTerm:     []models.InstructorTermStat{},
					Instructors: []string{},
				}
			}

			mu.Lock()
			results[code] = stats
			mu.Unlock()
		}(code)
	}

	wg.Wait()

	return results
}

func distinctInstructors(perTerm []models.InstructorTermStat) []string {
	seen := make(map[string]bool, len(perTerm))
	instructors := make([]string, 0, len(perTerm))

	for _, row := range perTerm {
		if seen[row.Instructor] {
			continue
		}
		seen[row.Instructor] = true
		instructors = append(instructors, row.Instructor)
	}

	return instructors
}
