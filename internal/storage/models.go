package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction is one handled user request with its full transcript.
type Interaction struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	SessionID      string    `json:"session_id,omitempty"`
	UserQuery      string    `json:"user_query"`
	Answer         string    `json:"answer"`
	StopReason     string    `json:"stop_reason"`
	Iterations     int       `json:"iterations"`
	TranscriptJSON string    `json:"transcript"` // JSON array stored as text
}
