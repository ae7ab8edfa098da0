package history

import (
	"context"
	"errors"
	"strings"

	"github.com/hay-kot/conch/internal/core/detect"
)

var (
	// ErrNotFound is returned when no entry matches an ID or filter.
	ErrNotFound = errors.New("history entry not found")
	// ErrAmbiguous is returned when an ID prefix matches more than one entry.
	ErrAmbiguous = errors.New("history id prefix is ambiguous")
)

// Filter selects history entries. Zero fields match everything.
type Filter struct {
	SessionID  string
	Outcome    detect.Outcome
	Incomplete bool
	Limit      int
}

// Match reports whether e passes every set field of f. Limit is applied by
// the store, not here.
func (f Filter) Match(e Entry) bool {
	switch {
	case f.SessionID != "" && !strings.HasPrefix(e.SessionID, f.SessionID):
		return false
	case f.Outcome != "" && e.Outcome != f.Outcome:
		return false
	case f.Incomplete && !e.Incomplete():
		return false
	}
	return true
}

// Store persists command history.
type Store interface {
	// Append records a new entry, dropping the oldest entries beyond the
	// configured maximum.
	Append(ctx context.Context, entry Entry) error
	// Find returns entries matching f, newest first.
	Find(ctx context.Context, f Filter) ([]Entry, error)
	// Get returns the entry whose ID starts with id.
	Get(ctx context.Context, id string) (Entry, error)
	// Clear removes every entry.
	Clear(ctx context.Context) error
}

// Latest returns the newest entry matching f.
func Latest(ctx context.Context, s Store, f Filter) (Entry, error) {
	f.Limit = 1
	entries, err := s.Find(ctx, f)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNotFound
	}
	return entries[0], nil
}

// Lookup resolves an ID or unique ID prefix among entries.
func Lookup(entries []Entry, id string) (Entry, error) {
	if id == "" {
		return Entry{}, ErrNotFound
	}

	var (
		found Entry
		n     int
	)
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
		if strings.HasPrefix(e.ID, id) {
			found = e
			n++
		}
	}

	switch n {
	case 0:
		return Entry{}, ErrNotFound
	case 1:
		return found, nil
	default:
		return Entry{}, ErrAmbiguous
	}
}
