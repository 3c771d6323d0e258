package models

import "time"

// InstructorTermStat is one grouped row from a course's grade table:
// everything one instructor taught in one term, averaged.
type InstructorTermStat struct {
	Instructor string
	Term       string
	Sections   int
	AvgGPA     float64
}

// Professor maps an instructor name from the grade tables to the external
// review site. ReviewID is the opaque id from the review-page URL.
type Professor struct {
	Name       string
	ReviewID   string
	Department string
}

type ChatRecord struct {
	ID        string
	UserID    string
	QueryText string
	Answer    string
	Courses   string
	Outcome   string
	LatencyMS int
	CreatedAt time.Time
}
