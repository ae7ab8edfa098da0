// Package channeltest provides an in-memory channel.Channel for tests.
package channeltest

import (
	"bytes"
	"sync"

	"github.com/hay-kot/conch/internal/integration/channel"
)

// Channel is a scripted channel. Writes are recorded and output is injected
// with Emit. It is safe for concurrent use.
type Channel struct {
	// OnWrite, when set, is called after every successful write with the
	// bytes written. Tests use it to emit responses to commands.
	OnWrite func(c *Channel, p []byte)

	// WriteErr, when set, is returned from Write and nothing is recorded.
	WriteErr error

	mu     sync.Mutex
	writes [][]byte
	closed bool
	cols   int
	rows   int
	origin channel.Origin
	target string
	pump   *channel.Pump
}

// New creates an open local fake channel.
func New() *Channel {
	return &Channel{
		cols:   80,
		rows:   24,
		origin: channel.OriginLocal,
		target: "fake",
		pump:   channel.NewPump(channel.DefaultEventBuffer),
	}
}

// NewRemote creates an open fake channel that reports a remote origin.
func NewRemote(target string) *Channel {
	c := New()
	c.origin = channel.OriginRemote
	c.target = target
	return c
}

func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, channel.ErrClosed
	}
	if c.WriteErr != nil {
		c.mu.Unlock()
		return 0, c.WriteErr
	}
	c.writes = append(c.writes, bytes.Clone(p))
	hook := c.OnWrite
	c.mu.Unlock()

	if hook != nil {
		hook(c, p)
	}
	return len(p), nil
}

// Close marks the channel closed and emits a close event.
func (c *Channel) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()

	if !already {
		c.pump.End()
		c.pump.Stop()
	}
	return nil
}

func (c *Channel) Events() <-chan channel.Event {
	return c.pump.Events()
}

func (c *Channel) Resize(cols, rows int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return channel.ErrClosed
	}
	c.cols, c.rows = cols, rows
	return nil
}

func (c *Channel) Origin() channel.Origin {
	return c.origin
}

func (c *Channel) Describe() string {
	return c.target
}

// Emit delivers output as a data event.
func (c *Channel) Emit(s string) {
	c.pump.Emit([]byte(s))
}

// EmitClose simulates the remote end hanging up.
func (c *Channel) EmitClose() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.pump.End()
}

// EmitError simulates a transport failure.
func (c *Channel) EmitError(err error) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.pump.Fail(err)
}

// Writes returns a copy of every recorded write in order.
func (c *Channel) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]byte, len(c.writes))
	for i, w := range c.writes {
		out[i] = bytes.Clone(w)
	}
	return out
}

// Written returns all recorded writes concatenated.
func (c *Channel) Written() string {
	return string(bytes.Join(c.Writes(), nil))
}

// Closed reports whether Close, EmitClose, or EmitError was called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Size returns the last size passed to Resize.
func (c *Channel) Size() (cols, rows int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cols, c.rows
}

var _ channel.Channel = (*Channel)(nil)
