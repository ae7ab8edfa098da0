package detect

import (
	"encoding/json"
	"time"
)

// Outcome identifies how a detection cycle resolved. Exactly one outcome is
// reported per cycle.
type Outcome string

const (
	// OutcomeFastComplete: a stable prompt appeared within the quick timeout.
	OutcomeFastComplete Outcome = "fast_complete"
	// OutcomeSlowComplete: a stable prompt appeared after the quick timeout
	// but within the max timeout.
	OutcomeSlowComplete Outcome = "slow_complete"
	// OutcomeTimeoutTruncated: the max timeout elapsed. Output is limited to
	// the most recent lines and a prompt may or may not be visible.
	OutcomeTimeoutTruncated Outcome = "timeout_truncated"
	// OutcomeStabilizedWaiting: output stopped without a recognizable
	// prompt, usually a program blocked on input or a quiet daemon.
	OutcomeStabilizedWaiting Outcome = "stabilized_waiting"
	// OutcomeNotOpen: no live channel when the command was submitted.
	OutcomeNotOpen Outcome = "not_open"
	// OutcomeClosed: the channel closed while the cycle was running.
	OutcomeClosed Outcome = "closed"
)

// Result is the outcome of one detection cycle along with the output
// produced since submission.
type Result struct {
	Outcome   Outcome
	Output    string
	LineCount int
	Elapsed   time.Duration
	Message   string

	// Truncated and PromptSeen are only meaningful for OutcomeTimeoutTruncated.
	Truncated  bool
	PromptSeen bool
}

// Complete reports whether the command is believed to have finished. A
// timed-out cycle counts as complete when a prompt was visible at the end.
func (r Result) Complete() bool {
	switch r.Outcome {
	case OutcomeFastComplete, OutcomeSlowComplete:
		return true
	case OutcomeTimeoutTruncated:
		return r.PromptSeen
	default:
		return false
	}
}

// Slow reports whether completion took longer than the quick timeout.
func (r Result) Slow() bool {
	return r.Outcome == OutcomeSlowComplete
}

// Waiting reports whether the shell appears to be blocked or still busy
// without showing a prompt.
func (r Result) Waiting() bool {
	switch r.Outcome {
	case OutcomeStabilizedWaiting:
		return true
	case OutcomeTimeoutTruncated:
		return !r.PromptSeen
	default:
		return false
	}
}

// MarshalJSON flattens the outcome into the boolean flags agents consume.
// Flags that do not apply to the outcome are omitted.
func (r Result) MarshalJSON() ([]byte, error) {
	type flat struct {
		Outcome   Outcome `json:"outcome"`
		Output    string  `json:"output"`
		LineCount int     `json:"lineCount"`
		Complete  bool    `json:"complete"`
		Truncated *bool   `json:"truncated,omitempty"`
		Slow      *bool   `json:"slow,omitempty"`
		Waiting   *bool   `json:"waiting,omitempty"`
		ElapsedMS int64   `json:"elapsedMs"`
		Message   string  `json:"message,omitempty"`
	}

	out := flat{
		Outcome:   r.Outcome,
		Output:    r.Output,
		LineCount: r.LineCount,
		Complete:  r.Complete(),
		ElapsedMS: r.Elapsed.Milliseconds(),
		Message:   r.Message,
	}

	yes := true
	if r.Outcome == OutcomeTimeoutTruncated {
		truncated := r.Truncated
		out.Truncated = &truncated
	}
	if r.Slow() {
		out.Slow = &yes
	}
	if r.Waiting() {
		out.Waiting = &yes
	}

	return json.Marshal(out)
}
