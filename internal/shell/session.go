// Package shell drives an interactive pseudo-terminal on behalf of a caller
// that cannot see the screen.
//
// A Session owns the line buffer for one channel. Every buffer mutation and
// read runs on the session's own goroutine: channel events and caller
// requests are funneled through it, so the buffer needs no locking. Writes to
// the channel happen on the caller's goroutine so a stalled terminal never
// blocks event processing.
package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hay-kot/conch/internal/core/detect"
	"github.com/hay-kot/conch/internal/core/linebuf"
	"github.com/hay-kot/conch/internal/integration/channel"
)

var (
	// ErrNotOpen is returned by operations that need a live channel.
	ErrNotOpen = errors.New("session is not open")

	// ErrUnknownSignal is returned for signal names other than interrupt,
	// suspend and quit.
	ErrUnknownSignal = errors.New("unknown signal")

	// ErrBusy is returned by Send while another Send is still detecting.
	ErrBusy = errors.New("a command is already running")
)

// MaxDimension bounds Resize in both directions.
const MaxDimension = 500

const notOpenMessage = "no open terminal session; open one before sending commands"

// Info describes an open session.
type Info struct {
	ID       string         `json:"id"`
	Origin   channel.Origin `json:"origin"`
	Target   string         `json:"target"`
	OpenedAt time.Time      `json:"openedAt"`
}

// state is owned by the run goroutine.
type state struct {
	buf        *linebuf.Buffer
	lastByteAt time.Time
}

// Session is one open pseudo-terminal plus its output buffer.
type Session struct {
	ch   channel.Channel
	cfg  Config
	info Info
	log  zerolog.Logger

	requests chan func(*state)
	closing  chan struct{}
	done     chan struct{}
	err      error // set before done is closed

	busy      atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New wraps an open channel and starts processing its events.
func New(ch channel.Channel, cfg Config, log zerolog.Logger) *Session {
	cfg.Detection = cfg.Detection.WithDefaults()
	if cfg.MaxBufferLines <= 0 {
		cfg.MaxBufferLines = linebuf.DefaultMaxLines
	}

	info := Info{
		ID:       uuid.NewString(),
		Origin:   ch.Origin(),
		Target:   ch.Describe(),
		OpenedAt: time.Now(),
	}

	s := &Session{
		ch:       ch,
		cfg:      cfg,
		info:     info,
		log:      log.With().Str("component", "session").Str("session_id", info.ID).Logger(),
		requests: make(chan func(*state)),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	go s.run()

	s.log.Info().Str("origin", string(info.Origin)).Str("target", info.Target).Msg("session opened")
	return s
}

func (s *Session) run() {
	st := &state{buf: linebuf.New(s.cfg.MaxBufferLines)}
	events := s.ch.Events()

	defer func() {
		st.buf.Clear()
		close(s.done)
	}()

	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case channel.EventData:
				st.buf.Ingest(ev.Data)
				st.lastByteAt = ev.At
			case channel.EventClose:
				s.log.Info().Msg("channel closed")
				_ = s.ch.Close()
				return
			case channel.EventError:
				s.log.Error().Err(ev.Err).Msg("channel error")
				s.err = ev.Err
				_ = s.ch.Close()
				return
			}
		case fn := <-s.requests:
			fn(st)
		case <-s.closing:
			return
		}
	}
}

// do runs fn on the session goroutine and waits for it. It returns false
// without running fn once the session has closed.
func (s *Session) do(fn func(*state)) bool {
	finished := make(chan struct{})
	req := func(st *state) {
		fn(st)
		close(finished)
	}

	select {
	case s.requests <- req:
		<-finished
		return true
	case <-s.done:
		return false
	}
}

// Info returns the session metadata.
func (s *Session) Info() Info {
	return s.info
}

// IsOpen reports whether the channel is still live.
func (s *Session) IsOpen() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Done is closed when the session closes for any reason.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the channel error that closed the session, if any.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Send writes input followed by a newline and waits until the output looks
// complete. The returned Result describes which detection outcome fired.
//
// A closed session yields a Result with outcome NotOpen rather than an
// error. Errors are returned for context cancellation, write failures, and
// ErrBusy.
func (s *Session) Send(ctx context.Context, input string, opts ...SendOption) (detect.Result, error) {
	cfg := s.cfg.Detection
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.WithDefaults()

	if !s.busy.CompareAndSwap(false, true) {
		return detect.Result{}, ErrBusy
	}
	defer s.busy.Store(false)

	var mark linebuf.Mark
	if !s.do(func(st *state) { mark = st.buf.Mark() }) {
		return notOpenResult(), nil
	}

	if !strings.HasSuffix(input, "\n") {
		input += "\n"
	}

	start := time.Now()
	if _, err := s.ch.Write([]byte(input)); err != nil {
		if errors.Is(err, channel.ErrClosed) {
			return notOpenResult(), nil
		}
		return detect.Result{}, fmt.Errorf("write command: %w", err)
	}
	s.log.Debug().Int("bytes", len(input)).Msg("command sent")

	// Output gathered before a close is kept so the Closed result can carry it.
	var lastLines []string
	sample := func(now time.Time) detect.Sample {
		smp := detect.Sample{Now: now}
		ok := s.do(func(st *state) {
			smp.Lines = st.buf.Since(mark)
			smp.LastByteAt = st.lastByteAt
		})
		if ok {
			lastLines = smp.Lines
		} else {
			smp.Lines = lastLines
			smp.Closed = true
		}
		return smp
	}

	res, err := detect.Poll(ctx, detect.NewTracker(cfg, start), cfg.PollInterval, sample)
	if err != nil {
		return detect.Result{}, err
	}

	s.log.Debug().
		Str("outcome", string(res.Outcome)).
		Int("lines", res.LineCount).
		Dur("elapsed", res.Elapsed).
		Msg("detection resolved")
	return res, nil
}

func notOpenResult() detect.Result {
	return detect.Result{Outcome: detect.OutcomeNotOpen, Message: notOpenMessage}
}

// Write sends raw input with no newline and no completion detection.
func (s *Session) Write(input string) error {
	if !s.IsOpen() {
		return ErrNotOpen
	}
	if _, err := s.ch.Write([]byte(input)); err != nil {
		if errors.Is(err, channel.ErrClosed) {
			return ErrNotOpen
		}
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// ReadRequest selects a window of the buffer.
type ReadRequest struct {
	// Count is the number of lines: 0 means the most recent 20, linebuf.All
	// means everything from Offset.
	Count  int
	Offset int

	// Clear discards the buffer after the window is taken.
	Clear bool
}

// ReadResult is a window of buffered output.
type ReadResult struct {
	Output    string `json:"output"`
	LineCount int    `json:"lineCount"`

	// BufferLines is the retained line count before any clear.
	BufferLines int    `json:"bufferLines"`
	Cleared     bool   `json:"cleared,omitempty"`
	Open        bool   `json:"open"`
	Message     string `json:"message,omitempty"`
}

// Read returns buffered output without sending anything. It never blocks on
// the terminal and never fails on an empty buffer.
func (s *Session) Read(req ReadRequest) ReadResult {
	var res ReadResult
	ok := s.do(func(st *state) {
		lines := st.buf.Window(req.Count, req.Offset)
		res = ReadResult{
			Output:      strings.Join(lines, "\n"),
			LineCount:   len(lines),
			BufferLines: st.buf.Len(),
			Open:        true,
		}
		if req.Clear {
			st.buf.Clear()
			res.Cleared = true
		}
	})
	if !ok {
		return ReadResult{Message: notOpenMessage}
	}
	return res
}

// BufferLineCount returns the number of retained completed lines.
func (s *Session) BufferLineCount() int {
	n := 0
	s.do(func(st *state) { n = st.buf.Len() })
	return n
}

// SendSignal writes the control byte for name. It returns false without
// writing if the session is closed or the name is unknown.
func (s *Session) SendSignal(name string) bool {
	b, ok := SignalByte(name)
	if !ok {
		s.log.Debug().Str("signal", name).Msg("unknown signal")
		return false
	}
	if !s.IsOpen() {
		return false
	}

	if _, err := s.ch.Write([]byte{b}); err != nil {
		s.log.Warn().Err(err).Str("signal", name).Msg("signal write failed")
		return false
	}

	s.log.Debug().Str("signal", name).Msg("signal sent")
	return true
}

// Signal is SendSignal with an error describing why nothing was sent.
func (s *Session) Signal(name string) error {
	if _, ok := SignalByte(name); !ok {
		return fmt.Errorf("%w %q (want one of %s)", ErrUnknownSignal, name, strings.Join(SignalNames(), ", "))
	}
	if !s.SendSignal(name) {
		return ErrNotOpen
	}
	return nil
}

// Resize changes the terminal window size.
func (s *Session) Resize(cols, rows int) error {
	if cols < 1 || rows < 1 || cols > MaxDimension || rows > MaxDimension {
		return fmt.Errorf("invalid size %dx%d: must be between 1 and %d", cols, rows, MaxDimension)
	}
	if !s.IsOpen() {
		return ErrNotOpen
	}
	if err := s.ch.Resize(cols, rows); err != nil {
		return fmt.Errorf("resize: %w", err)
	}
	return nil
}

// Settle waits until output has been quiet for quiet, or until limit has
// passed, whichever comes first. Callers use it after opening a session so
// login banners land in the buffer before the first command.
func (s *Session) Settle(ctx context.Context, quiet, limit time.Duration) error {
	start := time.Now()
	deadline := start.Add(limit)

	ticker := time.NewTicker(min(quiet/4, 50*time.Millisecond) + time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			var last time.Time
			if !s.do(func(st *state) { last = st.lastByteAt }) {
				return ErrNotOpen
			}
			if last.Before(start) {
				last = start
			}
			if now.Sub(last) >= quiet || now.After(deadline) {
				return nil
			}
		}
	}
}

// Close ends the channel and discards the buffer. It is safe to call more
// than once; later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		<-s.done
		if err := s.ch.Close(); err != nil {
			s.closeErr = fmt.Errorf("close channel: %w", err)
		}
		s.log.Info().Msg("session closed")
	})
	return s.closeErr
}
