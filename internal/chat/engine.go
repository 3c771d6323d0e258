// Package chat orchestrates a conversational turn: extract course codes,
// validate them, gather grade statistics and professor reviews, assemble
// the grounding prompt, and generate the answer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gradelens/backend/internal/extract"
	"github.com/gradelens/backend/internal/gradestats"
	"github.com/gradelens/backend/internal/metrics"
	"github.com/gradelens/backend/internal/prompt"
	"github.com/gradelens/backend/internal/reviews"
	"github.com/gradelens/backend/internal/storage/models"
	"github.com/gradelens/backend/pkg/logger"
)

const (
	msgNoCourse = "I couldn't spot a course code in your question. Ask me about a specific course, like \"CSCE 221\", and I'll pull up the numbers."
	msgApology  = "Sorry, something went wrong while putting your answer together. Please try again in a moment."
)

// Store is the slice of the grade database the engine needs.
type Store interface {
	CoursesExist(ctx context.Context, codes []string) (map[string]bool, error)
	ProfessorsByName(ctx context.Context, names []string) ([]models.Professor, error)
	InsertChatRecord(ctx context.Context, record *models.ChatRecord) error
}

// StatsFetcher loads per-course aggregates; failures degrade per course.
type StatsFetcher interface {
	FetchCourses(ctx context.Context, codes []string) map[string]*gradestats.CourseStatistics
}

// ReviewFetcher merges cached and freshly scraped review records.
type ReviewFetcher interface {
	FetchAll(ctx context.Context, ids []string) map[string]*reviews.ProfessorReview
}

// Model generates the answer from the assembled prompt.
type Model interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteStream(ctx context.Context, systemPrompt, userPrompt string, onDelta func(string) error) (string, error)
}

type Engine struct {
	store      Store
	stats      StatsFetcher
	reviews    ReviewFetcher
	model      Model
	chunkDelay time.Duration
}

type EngineConfig struct {
	// ChunkDelay paces chunk emission to smooth client-side rendering.
	// Zero disables pacing.
	ChunkDelay time.Duration
}

func NewEngine(store Store, stats StatsFetcher, reviewFetcher ReviewFetcher, model Model, cfg EngineConfig) *Engine {
	return &Engine{
		store:      store,
		stats:      stats,
		reviews:    reviewFetcher,
		model:      model,
		chunkDelay: cfg.ChunkDelay,
	}
}

// Respond runs one turn and returns the whole answer at once.
func (e *Engine) Respond(ctx context.Context, req Request) (*Response, error) {
	return e.turn(ctx, req, nil)
}

// Stream runs one turn, forwarding typed events to emit in order. The
// stream ends with exactly one complete or error event. If ctx is
// cancelled mid-stream nothing further is emitted and no session-context
// update is produced; cancellation is returned, not treated as failure.
func (e *Engine) Stream(ctx context.Context, req Request, emit EmitFunc) error {
	_, err := e.turn(ctx, req, emit)
	return err
}

// turn is the state machine shared by both entry points. A nil emit means
// the caller wants a single Response and no intermediate events.
func (e *Engine) turn(ctx context.Context, req Request, emit EmitFunc) (*Response, error) {
	start := time.Now()
	turnID := uuid.New().String()
	streaming := emit != nil

	logger.Info("Processing chat turn",
		zap.String("turn_id", turnID),
		zap.String("query", req.Query),
		zap.Bool("streaming", streaming),
	)

	// Course resolution: codes in the query win; a follow-up with no
	// explicit code falls back to the conversation's active courses.
	codes := extract.Codes(req.Query)
	fromContext := false
	if len(codes) == 0 && len(req.Session.ActiveCourses) > 0 {
		codes = normalizeAll(req.Session.ActiveCourses)
		fromContext = true
	}

	if len(codes) == 0 {
		resp := &Response{
			Answer:  msgNoCourse,
			Session: SessionContext{ActiveCourses: []string{}},
			Outcome: OutcomeNoCourse,
		}
		return e.finish(req, resp, turnID, start, emit, nil)
	}

	if err := e.emitStatus(emit, "Checking course data..."); err != nil {
		return nil, err
	}

	exists, err := e.store.CoursesExist(ctx, codes)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Error("Course validation failed", zap.String("turn_id", turnID), zap.Error(err))
		return e.fail(req, turnID, start, emit)
	}

	valid := make([]string, 0, len(codes))
	invalid := make([]string, 0)
	for _, code := range codes {
		if exists[code] {
			valid = append(valid, code)
		} else {
			invalid = append(invalid, code)
		}
	}

	if len(valid) == 0 {
		resp := &Response{
			Answer: fmt.Sprintf(
				"I don't have any grade data for %s. Double-check the course code and ask again.",
				joinCodes(invalid),
			),
			// Invalid courses are trimmed from the context entirely.
			Session: SessionContext{ActiveCourses: []string{}},
			Outcome: OutcomeAllInvalid,
		}
		return e.finish(req, resp, turnID, start, emit, nil)
	}

	if len(invalid) > 0 && !fromContext {
		resp := &Response{
			Answer: fmt.Sprintf(
				"I don't have data for %s, so I'm setting those aside. Ask again and I'll cover %s.",
				joinCodes(invalid), joinCodes(valid),
			),
			Session: sessionFor(valid),
			Outcome: OutcomePartialInvalid,
		}
		return e.finish(req, resp, turnID, start, emit, valid)
	}

	if err := e.emitStatus(emit, "Gathering grade distributions and professor reviews..."); err != nil {
		return nil, err
	}

	statsByCourse := e.stats.FetchCourses(ctx, valid)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	reviewsByCourse := e.fetchReviews(ctx, valid, statsByCourse)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if err := e.emitStatus(emit, "Putting an answer together..."); err != nil {
		return nil, err
	}

	userPrompt := prompt.Build(req.Query, req.History, statsByCourse, reviewsByCourse, valid)

	var answer string
	if streaming {
		answer, err = e.model.CompleteStream(ctx, prompt.SystemPrompt, userPrompt, func(delta string) error {
			if err := emit(Event{Type: EventChunk, Content: delta}); err != nil {
				return err
			}
			metrics.StreamChunks.Inc()
			return e.pace(ctx)
		})
	} else {
		answer, err = e.model.Complete(ctx, prompt.SystemPrompt, userPrompt)
	}
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			// Client abort: the turn is treated as if it never
			// completed, not as a failure.
			return nil, context.Canceled
		}
		logger.Error("Answer generation failed", zap.String("turn_id", turnID), zap.Error(err))
		return e.fail(req, turnID, start, emit)
	}

	resp := &Response{
		Answer:  answer,
		Session: sessionFor(valid),
		Outcome: OutcomeAnswered,
	}
	return e.finish(req, resp, turnID, start, emit, valid)
}

// fetchReviews resolves the instructors in the fetched stats to review
// ids and pulls their records through the cache. A professor-lookup
// failure degrades to an empty review set.
func (e *Engine) fetchReviews(
	ctx context.Context,
	courses []string,
	statsByCourse map[string]*gradestats.CourseStatistics,
) map[string][]*reviews.ProfessorReview {
	names := make([]string, 0)
	seen := make(map[string]bool)
	for _, course := range courses {
		stats, ok := statsByCourse[course]
		if !ok {
			continue
		}
		for _, name := range stats.Instructors {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	result := make(map[string][]*reviews.ProfessorReview, len(courses))
	if len(names) == 0 {
		return result
	}

	professors, err := e.store.ProfessorsByName(ctx, names)
	if err != nil {
		logger.Warn("Professor lookup failed, continuing without reviews", zap.Error(err))
		return result
	}

	idByName := make(map[string]string, len(professors))
	ids := make([]string, 0, len(professors))
	for _, p := range professors {
		if p.ReviewID == "" {
			continue
		}
		idByName[p.Name] = p.ReviewID
		ids = append(ids, p.ReviewID)
	}

	records := e.reviews.FetchAll(ctx, ids)

	for _, course := range courses {
		stats, ok := statsByCourse[course]
		if !ok {
			continue
		}
		for _, name := range stats.Instructors {
			id, ok := idByName[name]
			if !ok {
				continue
			}
			if record, ok := records[id]; ok {
				result[course] = append(result[course], record)
			}
		}
	}

	return result
}

// fail converts an absorbed failure into the fixed apologetic message.
// The session context is left exactly as the caller sent it.
func (e *Engine) fail(req Request, turnID string, start time.Time, emit EmitFunc) (*Response, error) {
	resp := &Response{
		Answer:  msgApology,
		Session: req.Session,
		Outcome: OutcomeError,
	}

	e.record(req, resp, turnID, start, emit != nil)

	if emit != nil {
		if err := emit(Event{Type: EventError, Message: msgApology}); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// finish emits the terminal complete event, records the audit row, and
// bumps metrics.
func (e *Engine) finish(
	req Request,
	resp *Response,
	turnID string,
	start time.Time,
	emit EmitFunc,
	courses []string,
) (*Response, error) {
	if emit != nil {
		event := Event{
			Type:    EventComplete,
			Answer:  resp.Answer,
			Session: &resp.Session,
		}
		if err := emit(event); err != nil {
			return nil, err
		}
	}

	metrics.CoursesPerTurn.Observe(float64(len(courses)))
	e.record(req, resp, turnID, start, emit != nil)

	logger.Info("Chat turn finished",
		zap.String("turn_id", turnID),
		zap.String("outcome", string(resp.Outcome)),
		zap.Strings("courses", courses),
		zap.Duration("elapsed", time.Since(start)),
	)

	return resp, nil
}

func (e *Engine) record(req Request, resp *Response, turnID string, start time.Time, streaming bool) {
	mode := "whole"
	if streaming {
		mode = "streaming"
	}
	metrics.TurnsTotal.WithLabelValues(string(resp.Outcome)).Inc()
	metrics.TurnDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	record := &models.ChatRecord{
		ID:        turnID,
		UserID:    req.UserID,
		QueryText: req.Query,
		Answer:    resp.Answer,
		Courses:   strings.Join(resp.Session.ActiveCourses, ","),
		Outcome:   string(resp.Outcome),
		LatencyMS: int(time.Since(start).Milliseconds()),
		CreatedAt: time.Now(),
	}

	// The audit row is best-effort; losing it must not affect the turn.
	if err := e.store.InsertChatRecord(context.Background(), record); err != nil {
		logger.Warn("Failed to record chat turn", zap.String("turn_id", turnID), zap.Error(err))
	}
}

func (e *Engine) emitStatus(emit EmitFunc, message string) error {
	if emit == nil {
		return nil
	}
	return emit(Event{Type: EventStatus, Message: message})
}

// pace inserts the configured delay between chunks, yielding immediately
// on cancellation.
func (e *Engine) pace(ctx context.Context) error {
	if e.chunkDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.chunkDelay):
		return nil
	}
}

func sessionFor(valid []string) SessionContext {
	current := ""
	if len(valid) > 0 {
		current = valid[0]
	}
	return SessionContext{
		CurrentCourse: current,
		ActiveCourses: valid,
	}
}

func normalizeAll(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		normalized := extract.Normalize(code)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}

func joinCodes(codes []string) string {
	switch len(codes) {
	case 0:
		return ""
	case 1:
		return codes[0]
	case 2:
		return codes[0] + " or " + codes[1]
	default:
		return strings.Join(codes[:len(codes)-1], ", ") + ", or " + codes[len(codes)-1]
	}
}
