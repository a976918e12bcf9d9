package model

import "time"

// ProgressStatus is the state of one user's reading of one book.
//
//	not_started → reading ⇄ paused
//	reading → completed (progress reaches 100)
//	completed → reading (progress drops below 100)
//	any → not_started (explicit reset)
type ProgressStatus string

const (
	StatusNotStarted ProgressStatus = "not_started"
	StatusReading    ProgressStatus = "reading"
	StatusPaused     ProgressStatus = "paused"
	StatusCompleted  ProgressStatus = "completed"
)

// Progress bounds and rating bounds.
const (
	MinProgress = 0
	MaxProgress = 100
	MinRating   = 1
	MaxRating   = 5
)

// ProgressEntry is keyed by (BookID, UserID). It lives inside the owning
// User record, which guarantees one entry per pair.
type ProgressEntry struct {
	BookID      string         `json:"bookId"`
	UserID      string         `json:"userId"`
	Progress    int            `json:"progress"`
	Status      ProgressStatus `json:"status"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Rating      int            `json:"rating,omitempty"` // 0 means unrated
	Review      string         `json:"review,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (p ProgressEntry) Clone() ProgressEntry {
	p.StartedAt = cloneTime(p.StartedAt)
	p.CompletedAt = cloneTime(p.CompletedAt)
	return p
}
