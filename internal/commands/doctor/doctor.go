// Package doctor runs environment health checks for conch.
package doctor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds a single check when RunAll is given no timeout.
const DefaultCheckTimeout = 10 * time.Second

// Status is the outcome of one check item. Higher is worse.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckItem is one line of a check result.
type CheckItem struct {
	Label  string `json:"label"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Result groups the items reported by one check.
type Result struct {
	Name  string      `json:"name"`
	Items []CheckItem `json:"items"`
}

func (r *Result) add(label string, status Status, detail string) {
	r.Items = append(r.Items, CheckItem{Label: label, Status: status, Detail: detail})
}

func (r *Result) pass(label, detail string) { r.add(label, StatusPass, detail) }
func (r *Result) warn(label, detail string) { r.add(label, StatusWarn, detail) }
func (r *Result) fail(label, detail string) { r.add(label, StatusFail, detail) }

// Worst returns the most severe status among the items.
func (r Result) Worst() Status {
	worst := StatusPass
	for _, item := range r.Items {
		worst = max(worst, item.Status)
	}
	return worst
}

// Check is a single health check.
type Check interface {
	Name() string
	Run(ctx context.Context) Result
}

// Select returns the checks whose name starts with one of names, ignoring
// case. No names selects everything.
func Select(checks []Check, names []string) ([]Check, error) {
	if len(names) == 0 {
		return checks, nil
	}

	var out []Check
	for _, name := range names {
		n := len(out)
		for _, c := range checks {
			if strings.HasPrefix(strings.ToLower(c.Name()), strings.ToLower(name)) {
				out = append(out, c)
			}
		}
		if len(out) == n {
			return nil, fmt.Errorf("unknown check %q", name)
		}
	}
	return out, nil
}

// RunAll runs the checks concurrently, each bounded by timeout, and returns
// the results in the order the checks were given. A check that does not
// return in time is reported as failed.
func RunAll(ctx context.Context, checks []Check, timeout time.Duration) []Result {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}

	results := make([]Result, len(checks))

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runOne(ctx, check, timeout)
		}()
	}
	wg.Wait()

	return results
}

func runOne(ctx context.Context, check Check, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() { done <- check.Run(ctx) }()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		r := Result{Name: check.Name()}
		r.fail("Completed", fmt.Sprintf("check did not finish: %v", ctx.Err()))
		return r
	}
}

// Counts tallies item statuses across results.
type Counts struct {
	Passed int `json:"passed"`
	Warned int `json:"warned"`
	Failed int `json:"failed"`
}

// Healthy reports whether nothing failed.
func (c Counts) Healthy() bool {
	return c.Failed == 0
}

// Summary counts the items in results by status.
func Summary(results []Result) Counts {
	var c Counts
	for _, r := range results {
		for _, item := range r.Items {
			switch item.Status {
			case StatusPass:
				c.Passed++
			case StatusWarn:
				c.Warned++
			case StatusFail:
				c.Failed++
			}
		}
	}
	return c
}
