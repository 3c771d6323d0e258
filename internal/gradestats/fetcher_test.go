package gradestats

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradelens/backend/internal/storage/models"
)

type fakeStore struct {
	stats map[string][]models.InstructorTermStat
	errs  map[string]error
	delay time.Duration
	calls int64
}

func (s *fakeStore) CourseTermStats(ctx context.Context, code string) ([]models.InstructorTermStat, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err, ok := s.errs[code]; ok {
		return nil, err
	}
	return s.stats[code], nil
}

func TestFetchCourseDistinctInstructors(t *testing.T) {
	store := &fakeStore{stats: map[string][]models.InstructorTermStat{
		"CSCE 221": {
			{Instructor: "Leyk", Term: "FALL 2023", Sections: 3, AvgGPA: 3.41},
			{Instructor: "Moore", Term: "FALL 2023", Sections: 2, AvgGPA: 3.12},
			{Instructor: "Leyk", Term: "SPRING 2023", Sections: 2, AvgGPA: 3.05},
		},
	}}

	stats, err := NewFetcher(store).FetchCourse(context.Background(), "CSCE 221")
	require.NoError(t, err)
	assert.Len(t, stats.PerTerm, 3)
	assert.Equal(t, []string{"Leyk", "Moore"}, stats.Instructors)
}

func TestFetchCourseEmptyDataset(t *testing.T) {
	store := &fakeStore{stats: map[string][]models.InstructorTermStat{}}

	stats, err := NewFetcher(store).FetchCourse(context.Background(), "CSCE 221")
	require.NoError(t, err)
	assert.Empty(t, stats.PerTerm)
	assert.Empty(t, stats.Instructors)
}

func TestFetchCoursesDegradesFailuresToEmpty(t *testing.T) {
	store := &fakeStore{
		stats: map[string][]models.InstructorTermStat{
			"CSCE 221": {{Instructor: "Leyk", Term: "FALL 2023", Sections: 1, AvgGPA: 3.4}},
		},
		errs: map[string]error{"MATH 151": errors.New("db locked")},
	}

	results := NewFetcher(store).FetchCourses(context.Background(), []string{"CSCE 221", "MATH 151"})

	require.Len(t, results, 2)
	assert.Len(t, results["CSCE 221"].PerTerm, 1)
	assert.Empty(t, results["MATH 151"].PerTerm)
	assert.Empty(t, results["MATH 151"].Instructors)
}

func TestFetchCoursesRunsConcurrently(t *testing.T) {
	store := &fakeStore{
		stats: map[string][]models.InstructorTermStat{},
		delay: 50 * time.Millisecond,
	}

	codes := []string{"CSCE 121", "CSCE 221", "CSCE 314", "MATH 151"}

	start := time.Now()
	results := NewFetcher(store).FetchCourses(context.Background(), codes)
	elapsed := time.Since(start)

	assert.Len(t, results, len(codes))
	assert.EqualValues(t, len(codes), atomic.LoadInt64(&store.calls))
	// Serial execution would take at least 200ms.
	assert.Less(t, elapsed, 150*time.Millisecond)
}
