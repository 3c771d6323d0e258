package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradelens/backend/internal/gradestats"
	"github.com/gradelens/backend/internal/reviews"
	"github.com/gradelens/backend/internal/storage/models"
)

type fakeStore struct {
	courses    map[string]bool
	professors map[string]string
	existErr   error
	records    []*models.ChatRecord
}

func (s *fakeStore) CoursesExist(ctx context.Context, codes []string) (map[string]bool, error) {
	if s.existErr != nil {
		return nil, s.existErr
	}
	out := make(map[string]bool, len(codes))
	for _, code := range codes {
		out[code] = s.courses[code]
	}
	return out, nil
}

func (s *fakeStore) ProfessorsByName(ctx context.Context, names []string) ([]models.Professor, error) {
	out := make([]models.Professor, 0)
	for _, name := range names {
		if id, ok := s.professors[name]; ok {
			out = append(out, models.Professor{Name: name, ReviewID: id})
		}
	}
	return out, nil
}

func (s *fakeStore) InsertChatRecord(ctx context.Context, record *models.ChatRecord) error {
	s.records = append(s.records, record)
	return nil
}

type fakeStats struct {
	byCourse map[string]*gradestats.CourseStatistics
	calls    int
}

func (f *fakeStats) FetchCourses(ctx context.Context, codes []string) map[string]*gradestats.CourseStatistics {
	f.calls++
	out := make(map[string]*gradestats.CourseStatistics, len(codes))
	for _, code := range codes {
		if stats, ok := f.byCourse[code]; ok {
			out[code] = stats
		} else {
			out[code] = &gradestats.CourseStatistics{Course: code}
		}
	}
	return out
}

type fakeReviews struct {
	byID  map[string]*reviews.ProfessorReview
	calls int
}

func (f *fakeReviews) FetchAll(ctx context.Context, ids []string) map[string]*reviews.ProfessorReview {
	f.calls++
	out := make(map[string]*reviews.ProfessorReview, len(ids))
	for _, id := range ids {
		if r, ok := f.byID[id]; ok {
			out[id] = r
		}
	}
	return out
}

type fakeModel struct {
	answer    string
	chunks    []string
	err       error
	streamErr error
	prompts   []string
}

func (m *fakeModel) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.prompts = append(m.prompts, userPrompt)
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

func (m *fakeModel) CompleteStream(ctx context.Context, systemPrompt, userPrompt string, onDelta func(string) error) (string, error) {
	m.prompts = append(m.prompts, userPrompt)
	if m.err != nil {
		return "", m.err
	}
	var b strings.Builder
	for _, chunk := range m.chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := onDelta(chunk); err != nil {
			return "", err
		}
		b.WriteString(chunk)
		if m.streamErr != nil {
			return "", m.streamErr
		}
	}
	return b.String(), nil
}

func newTestEngine(store *fakeStore, stats *fakeStats, revs *fakeReviews, model *fakeModel) *Engine {
	return NewEngine(store, stats, revs, model, EngineConfig{})
}

func defaultFixtures() (*fakeStore, *fakeStats, *fakeReviews, *fakeModel) {
	store := &fakeStore{
		courses:    map[string]bool{"CSCE 221": true, "MATH 151": true},
		professors: map[string]string{"Leyk": "prof-1"},
	}
	stats := &fakeStats{byCourse: map[string]*gradestats.CourseStatistics{
		"CSCE 221": {
			Course:      "CSCE 221",
			PerTerm:     []models.InstructorTermStat{{Instructor: "Leyk", Term: "FALL 2023", Sections: 3, AvgGPA: 3.4}},
			Instructors: []string{"Leyk"},
		},
	}}
	revs := &fakeReviews{byID: map[string]*reviews.ProfessorReview{
		"prof-1": {ID: "prof-1", Name: "Leyk", Rating: 4.2},
	}}
	model := &fakeModel{answer: "Take Leyk! 🎉", chunks: []string{"Take ", "Leyk!", " 🎉"}}
	return store, stats, revs, model
}

func TestRespondNoCourseFound(t *testing.T) {
	store, stats, revs, model := defaultFixtures()
	engine := newTestEngine(store, stats, revs, model)

	resp, err := engine.Respond(context.Background(), Request{Query: "who's the easiest professor?"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeNoCourse, resp.Outcome)
	assert.Contains(t, resp.Answer, "course code")
	assert.Empty(t, resp.Session.ActiveCourses)
	assert.Zero(t, stats.calls, "no fetching should occur")
	assert.Empty(t, model.prompts)
}

func TestRespondFollowUpUsesActiveCourses(t *testing.T) {
	store, stats, revs, model := defaultFixtures()
	engine := newTestEngine(store, stats, revs, model)

	resp, err := engine.Respond(context.Background(), Request{
		Query:   "and who should I avoid?",
		Session: SessionContext{CurrentCourse: "CSCE 221", ActiveCourses: []string{"CSCE 221"}},
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAnswered, resp.Outcome)
	assert.Equal(t, []string{"CSCE 221"}, resp.Session.ActiveCourses)
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "CSCE 221")
}

func TestRespondAllInvalid(t *testing.T) {
	store, stats, revs, model := defaultFixtures()
	engine := newTestEngine(store, stats, revs, model)

	resp, err := engine.Respond(context.Background(), Request{Query: "what about FAKE999?"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAllInvalid, resp.Outcome)
	assert.Contains(t, resp.Answer, "FAKE 999")
	assert.Empty(t, resp.Session.ActiveCourses)
	assert.Zero(t, stats.calls)
	assert.Zero(t, revs.calls)
	assert.Empty(t, model.prompts)
}

func TestRespondPartialValidity(t *testing.T) {
	store, stats, revs, model := defaultFixtures()
	engine := newTestEngine(store, stats, revs, model)

	resp, err := engine.Respond(context.Background(), Request{Query: "compare CSCE 221 and FAKE999"})
	require.NoError(t, err)

	assert.Equal(t, OutcomePartialInvalid, resp.Outcome)
	assert.Contains(t, resp.Answer, "FAKE 999")
	assert.Contains(t, resp.Answer, "CSCE 221")
	assert.Equal(t, []string{"CSCE 221"}, resp.Session.ActiveCourses)
	assert.Equal(t, "CSCE 221", resp.Session.CurrentCourse)
	assert.Empty(t, model.prompts, "model must not be called on a partial-validity turn")
}

func TestRespondAnswersWithGroundingData(t *testing.T) {
	store, stats, revs, model := defaultFixtures()
	engine := newTestEngine(store, stats, revs, model)

	resp, err := engine.Respond(context.Background(), Request{Query: "how hard is CSCE 221?", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAnswered, resp.Outcome)
	assert.Equal(t, "Take Leyk! 🎉", resp.Answer)
	assert.Equal(t, SessionContext{CurrentCourse: "CSCE 221", ActiveCourses: []string{"CSCE 221"}}, resp.Session)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "Leyk | FALL 2023")
	assert.Contains(t, model.prompts[0], "4.2/5")

	require.Len(t, store.records, 1)
	assert.Equal(t, "answered", store.records[0].Outcome)
	assert.Equal(t, "u1", store.records[0].UserID)
}

func TestRespondModelFailureYieldsApology(t *testing.T) {
	store, stats, revs, model := defaultFixtures()
	model.err = errors.New("upstream exploded")
	engine := newTestEngine(store, stats, revs, model)

	resp, err := engine.Respond(context.Background(), Request{
		Query:   "how hard is CSCE 221?",
		Session: SessionContext{ActiveCourses: []string{"MATH 151"}},
	})
	require.NoError(t, err, "model failure is absorbed, not propagated")

	assert.Equal(t, OutcomeError, resp.Outcome)
	assert.Contains(t, resp.Answer, "Sorry")
	// Session context is left as the caller sent it.
	assert.Equal(t, []string{"MATH 151"}, resp.Session.ActiveCourses)
}

func TestStreamEventSequence(t *testing.T) {
	store, stats, revs, model := defaultFixtures()
	engine := newTestEngine(store, stats, revs, model)

	var events []Event
	err := engine.Stream(context.Background(), Request{Query: "how hard is CSCE 221?"}, func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)

	var statuses, completes int
	var concatenated strings.Builder
	var final Event
	for _, ev := range events {
		switch ev.Type {
		case EventStatus:
			statuses++
			assert.Zero(t, completes, "no status after the terminal event")
		case EventChunk:
			concatenated.WriteString(ev.Content)
		case EventComplete:
			completes++
			final = ev
		case EventError:
			t.Fatalf("unexpected error event: %+v", ev)
		}
	}

	assert.GreaterOrEqual(t, statuses, 1)
	assert.Equal(t, 1, completes)
	assert.Equal(t, EventComplete, events[len(events)-1].Type)
	assert.Equal(t, final.Answer, concatenated.String())
	require.NotNil(t, final.Session)
	assert.Equal(t, []string{"CSCE 221"}, final.Session.ActiveCourses)
}

func TestStreamErrorEndsWithSingleErrorEvent(t *testing.T) {
	store, stats, revs, model := defaultFixtures()
	model.err = errors.New("boom")
	engine := newTestEngine(store, stats, revs, model)

	var events []Event
	err := engine.Stream(context.Background(), Request{Query: "CSCE 221?"}, func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Message, "Sorry")
	for _, ev := range events[:len(events)-1] {
		assert.NotEqual(t, EventComplete, ev.Type)
		assert.NotEqual(t, EventError, ev.Type)
	}
}

func TestStreamCancellationCommitsNothing(t *testing.T) {
	store, stats, revs, model := defaultFixtures()
	engine := newTestEngine(store, stats, revs, model)

	ctx, cancel := context.WithCancel(context.Background())

	var events []Event
	err := engine.Stream(ctx, Request{Query: "how hard is CSCE 221?"}, func(ev Event) error {
		events = append(events, ev)
		if ev.Type == EventChunk {
			cancel()
		}
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	for _, ev := range events {
		assert.NotEqual(t, EventComplete, ev.Type, "no complete event after cancellation")
		assert.NotEqual(t, EventError, ev.Type, "cancellation is not an error event")
	}
	assert.Empty(t, store.records, "a cancelled turn is never committed")
}

func TestStreamStatisticsDegradeToEmptyNotError(t *testing.T) {
	store, stats, revs, model := defaultFixtures()
	delete(stats.byCourse, "CSCE 221")
	engine := newTestEngine(store, stats, revs, model)

	resp, err := engine.Respond(context.Background(), Request{Query: "CSCE 221?"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAnswered, resp.Outcome)
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "no recorded sections")
}

func TestValidatorFailureYieldsApology(t *testing.T) {
	store, stats, revs, model := defaultFixtures()
	store.existErr = errors.New("db gone")
	engine := newTestEngine(store, stats, revs, model)

	resp, err := engine.Respond(context.Background(), Request{Query: "CSCE 221?"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeError, resp.Outcome)
	assert.Contains(t, resp.Answer, "Sorry")
}
