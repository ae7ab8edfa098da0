// Package history records the commands sent to sessions and how completion
// detection resolved each one.
package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/hay-kot/conch/internal/core/detect"
)

// ShortIDLen is the ID prefix length shown in listings.
const ShortIDLen = 8

// Entry represents one input sent to a session and how detection resolved it.
type Entry struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Origin    string         `json:"origin"`
	Target    string         `json:"target,omitempty"`
	Input     string         `json:"input"`
	Outcome   detect.Outcome `json:"outcome"`
	Complete  bool           `json:"complete"`
	Truncated bool           `json:"truncated,omitempty"`
	LineCount int            `json:"line_count"`
	Elapsed   time.Duration  `json:"elapsed"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEntry builds an entry for input sent to a session at ts. Output is not
// kept; only its shape is.
func NewEntry(sessionID, origin, target, input string, res detect.Result, ts time.Time) Entry {
	return Entry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Origin:    origin,
		Target:    target,
		Input:     input,
		Outcome:   res.Outcome,
		Complete:  res.Complete(),
		Truncated: res.Truncated,
		LineCount: res.LineCount,
		Elapsed:   res.Elapsed,
		Message:   res.Message,
		Timestamp: ts,
	}
}

// Incomplete reports whether detection gave up before seeing a prompt.
func (e *Entry) Incomplete() bool {
	return !e.Complete
}

// ShortID returns the leading part of the ID used in listings.
func (e *Entry) ShortID() string {
	if len(e.ID) <= ShortIDLen {
		return e.ID
	}
	return e.ID[:ShortIDLen]
}
