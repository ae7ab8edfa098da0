// Package detect decides when a command written to a pseudo-terminal has
// finished producing output.
//
// A terminal has no end-of-output marker, so completion is inferred from
// periodic samples: time since submission, time since the last byte, and
// whether the last visible line looks like a shell prompt. The Tracker is a
// pure state machine fed one Sample per tick; Poll drives it from a ticker.
package detect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hay-kot/conch/internal/core/prompt"
)

const (
	DefaultQuickTimeout    = 2 * time.Second
	DefaultMaxTimeout      = 5 * time.Second
	DefaultTruncationLines = 200
	DefaultPollInterval    = 100 * time.Millisecond
)

const (
	// promptStableTicks is how many consecutive quiet ticks must pass before
	// a prompt is trusted. Shorter and a prompt echoed mid-write ends the
	// cycle early.
	promptStableTicks = 2

	// waitingStableTicks, waitingSilence and waitingMinElapsed together
	// gate the stabilized-waiting outcome.
	waitingStableTicks = 5
	waitingSilence     = 500 * time.Millisecond
	waitingMinElapsed  = 1 * time.Second
)

// Config holds the detection knobs for one cycle.
type Config struct {
	QuickTimeout    time.Duration
	MaxTimeout      time.Duration
	TruncationLines int
	PollInterval    time.Duration
}

// DefaultConfig returns the default detection settings.
func DefaultConfig() Config {
	return Config{
		QuickTimeout:    DefaultQuickTimeout,
		MaxTimeout:      DefaultMaxTimeout,
		TruncationLines: DefaultTruncationLines,
		PollInterval:    DefaultPollInterval,
	}
}

// WithDefaults returns c with zero or negative fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.QuickTimeout <= 0 {
		c.QuickTimeout = DefaultQuickTimeout
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = DefaultMaxTimeout
	}
	if c.TruncationLines <= 0 {
		c.TruncationLines = DefaultTruncationLines
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Sample is a snapshot of session state taken on one tick.
type Sample struct {
	Now time.Time

	// LastByteAt is when the channel last delivered data. Zero means no data
	// has ever arrived.
	LastByteAt time.Time

	// Lines are the lines completed since submission followed by the pending
	// partial line, if any.
	Lines []string

	// Closed is set once the channel has closed or failed.
	Closed bool
}

// Tracker is the completion state machine for a single submission. It is not
// safe for concurrent use and resolves at most once.
type Tracker struct {
	cfg      Config
	start    time.Time
	lastByte time.Time
	stable   int
	resolved bool
}

// NewTracker starts a detection cycle for a command submitted at start.
func NewTracker(cfg Config, start time.Time) *Tracker {
	return &Tracker{
		cfg:      cfg.WithDefaults(),
		start:    start,
		lastByte: start,
	}
}

// StableCount returns the number of consecutive ticks without new bytes.
func (t *Tracker) StableCount() int {
	return t.stable
}

// Observe advances the machine by one tick. It returns the Result and true
// when the cycle resolves; every later call returns false.
func (t *Tracker) Observe(s Sample) (Result, bool) {
	if t.resolved {
		return Result{}, false
	}

	if s.LastByteAt.After(t.lastByte) {
		t.lastByte = s.LastByteAt
		t.stable = 0
	} else {
		t.stable++
	}

	elapsed := s.Now.Sub(t.start)
	lastByteAt := s.LastByteAt
	if lastByteAt.IsZero() {
		lastByteAt = t.start
	}
	sinceLastByte := s.Now.Sub(lastByteAt)

	hasPrompt := false
	if n := len(s.Lines); n > 0 {
		hasPrompt = prompt.LooksLikePrompt(prompt.VisibleTail(s.Lines[n-1]))
	}

	res, ok := t.evaluate(s, elapsed, sinceLastByte, hasPrompt)
	if ok {
		t.resolved = true
	}
	return res, ok
}

func (t *Tracker) evaluate(s Sample, elapsed, sinceLastByte time.Duration, hasPrompt bool) (Result, bool) {
	cfg := t.cfg

	switch {
	case s.Closed:
		return newResult(OutcomeClosed, s.Lines, elapsed, "channel closed before the command completed"), true

	case hasPrompt && t.stable >= promptStableTicks && elapsed <= cfg.QuickTimeout:
		return newResult(OutcomeFastComplete, s.Lines, elapsed, ""), true

	case hasPrompt && t.stable >= promptStableTicks && elapsed <= cfg.MaxTimeout:
		return newResult(OutcomeSlowComplete, s.Lines, elapsed, ""), true

	case elapsed > cfg.MaxTimeout:
		lines := s.Lines
		truncated := len(lines) > cfg.TruncationLines
		if truncated {
			lines = lines[len(lines)-cfg.TruncationLines:]
		}

		msg := fmt.Sprintf("no stable prompt after %s", cfg.MaxTimeout)
		if truncated {
			msg += fmt.Sprintf("; showing last %d of %d lines", len(lines), len(s.Lines))
		}

		res := newResult(OutcomeTimeoutTruncated, lines, elapsed, msg)
		res.Truncated = truncated
		res.PromptSeen = hasPrompt
		return res, true

	case sinceLastByte > waitingSilence && t.stable >= waitingStableTicks && elapsed > waitingMinElapsed:
		return newResult(OutcomeStabilizedWaiting, s.Lines, elapsed,
			"output stopped without a prompt; the command may be waiting for input"), true
	}

	return Result{}, false
}

func newResult(outcome Outcome, lines []string, elapsed time.Duration, msg string) Result {
	return Result{
		Outcome:   outcome,
		Output:    strings.Join(lines, "\n"),
		LineCount: len(lines),
		Elapsed:   elapsed,
		Message:   msg,
	}
}

// Sampler captures session state at now.
type Sampler func(now time.Time) Sample

// Poll samples every interval until the tracker resolves or ctx is done.
// The first sample is taken one interval after Poll is called.
func Poll(ctx context.Context, t *Tracker, interval time.Duration, sample Sampler) (Result, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case now := <-ticker.C:
			if res, ok := t.Observe(sample(now)); ok {
				return res, nil
			}
		}
	}
}
