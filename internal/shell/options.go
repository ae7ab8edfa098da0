package shell

import (
	"time"

	"github.com/hay-kot/conch/internal/core/detect"
	"github.com/hay-kot/conch/internal/core/linebuf"
)

// Config holds session-wide settings.
type Config struct {
	// Detection is the default for every Send; options override it per call.
	Detection detect.Config

	// MaxBufferLines caps retained completed lines. It is fixed for the life
	// of the session.
	MaxBufferLines int
}

// DefaultConfig returns the default session settings.
func DefaultConfig() Config {
	return Config{
		Detection:      detect.DefaultConfig(),
		MaxBufferLines: linebuf.DefaultMaxLines,
	}
}

// SendOption overrides detection settings for a single Send.
type SendOption func(*detect.Config)

// WithQuickTimeout sets the window for a fast completion.
func WithQuickTimeout(d time.Duration) SendOption {
	return func(c *detect.Config) { c.QuickTimeout = d }
}

// WithMaxTimeout sets the deadline after which output is truncated.
func WithMaxTimeout(d time.Duration) SendOption {
	return func(c *detect.Config) { c.MaxTimeout = d }
}

// WithTruncationLines sets how many lines a timed-out cycle returns.
func WithTruncationLines(n int) SendOption {
	return func(c *detect.Config) { c.TruncationLines = n }
}

// WithPollInterval sets the sampling period.
func WithPollInterval(d time.Duration) SendOption {
	return func(c *detect.Config) { c.PollInterval = d }
}

// WithDetection applies every non-zero field of o.
func WithDetection(o detect.Config) SendOption {
	return func(c *detect.Config) {
		if o.QuickTimeout > 0 {
			c.QuickTimeout = o.QuickTimeout
		}
		if o.MaxTimeout > 0 {
			c.MaxTimeout = o.MaxTimeout
		}
		if o.TruncationLines > 0 {
			c.TruncationLines = o.TruncationLines
		}
		if o.PollInterval > 0 {
			c.PollInterval = o.PollInterval
		}
	}
}
