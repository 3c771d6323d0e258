package chat

import "github.com/gradelens/backend/internal/prompt"

// HistoryTurn is one prior conversation message as carried on the wire.
type HistoryTurn = prompt.Turn

// SessionContext is the per-conversation state threaded through turns.
// The pipeline never stores it; the caller passes it in and persists
// whatever comes back.
type SessionContext struct {
	CurrentCourse string   `json:"currentCourse"`
	ActiveCourses []string `json:"activeCourses"`
}

// Request is one chat turn. History is the caller-truncated conversation
// window.
type Request struct {
	Query   string         `json:"query"`
	History []prompt.Turn  `json:"conversationHistory"`
	Session SessionContext `json:"sessionContext"`
	UserID  string         `json:"userId,omitempty"`
}

// Response is the non-streaming result of a turn.
type Response struct {
	Answer  string         `json:"answer"`
	Session SessionContext `json:"sessionContext"`
	Outcome Outcome        `json:"-"`
}

// Outcome labels how a turn ended, for metrics and the audit trail.
type Outcome string

const (
	OutcomeAnswered       Outcome = "answered"
	OutcomeNoCourse       Outcome = "no_course"
	OutcomeAllInvalid     Outcome = "all_invalid"
	OutcomePartialInvalid Outcome = "partial_invalid"
	OutcomeError          Outcome = "error"
)

// EventType tags streamed events. A stream is zero or more status events,
// zero or more chunks, then exactly one complete or error.
type EventType string

const (
	EventStatus   EventType = "status"
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

type Event struct {
	Type    EventType       `json:"type"`
	Message string          `json:"message,omitempty"`
	Content string          `json:"content,omitempty"`
	Answer  string          `json:"answer,omitempty"`
	Session *SessionContext `json:"sessionContext,omitempty"`
}

// EmitFunc receives stream events in order. Returning an error aborts the
// turn (the client went away).
type EmitFunc func(Event) error
