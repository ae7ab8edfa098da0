// Package channel defines the byte-stream interface between a pseudo-terminal
// provider and the shell session engine.
package channel

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Write and Resize after a channel has closed.
var ErrClosed = errors.New("channel closed")

// Origin reports where the terminal is running.
type Origin string

const (
	OriginLocal  Origin = "local"  // process spawned on this machine
	OriginRemote Origin = "remote" // terminal opened over SSH
)

// EventKind distinguishes the events a channel emits.
type EventKind int

const (
	EventData EventKind = iota
	EventClose
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by a Channel. Data events carry a chunk the receiver owns.
// Close and Error are terminal: no event follows either one.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
	At   time.Time
}

// Channel is a bidirectional byte stream to an open pseudo-terminal.
type Channel interface {
	// Write sends raw bytes to the terminal input.
	Write(p []byte) (int, error)

	// Close ends the terminal. It is safe to call more than once.
	Close() error

	// Events delivers output chunks followed by exactly one Close or Error.
	Events() <-chan Event

	// Resize changes the terminal window size.
	Resize(cols, rows int) error

	// Origin reports whether the terminal is local or remote.
	Origin() Origin

	// Describe returns a human readable target, e.g. "/bin/bash" or "deploy@db1:22".
	Describe() string
}

// Opener creates channels for one kind of target.
type Opener interface {
	// Name returns the opener name (e.g., "local").
	Name() string

	// Available returns true if the opener can be used on this machine.
	Available() bool

	// Open starts a terminal for target. The meaning of target is specific
	// to the opener; an empty target selects its default.
	Open(ctx context.Context, target string) (Channel, error)
}
