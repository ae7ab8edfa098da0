package channel

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// DefaultEventBuffer is the event queue depth used by providers.
const DefaultEventBuffer = 64

// Pump turns a blocking reader into a stream of events. Providers embed a
// Pump to implement Events.
//
// Exactly one terminal event is delivered, whichever of reader EOF, reader
// error, or Fail happens first. Once Stop is called pending sends are
// abandoned so the read goroutine never blocks on an absent consumer.
type Pump struct {
	events chan Event
	done   chan struct{}

	stopOnce   sync.Once
	finishOnce sync.Once
	finished   chan struct{}
}

// NewPump creates a pump with the given event queue depth.
func NewPump(buffer int) *Pump {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Pump{
		events:   make(chan Event, buffer),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Events returns the event stream.
func (p *Pump) Events() <-chan Event {
	return p.events
}

// Finished is closed after the terminal event has been queued or abandoned.
func (p *Pump) Finished() <-chan struct{} {
	return p.finished
}

// Run copies r into data events until it fails. It blocks and is meant to be
// run in its own goroutine.
//
// io.EOF and closed-file errors end the stream with EventClose; anything else
// ends it with EventError.
func (p *Pump) Run(r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 && !p.Emit(buf[:n]) {
			p.End()
			return
		}
		if err != nil {
			if IsClosedErr(err) {
				p.End()
			} else {
				p.Fail(err)
			}
			return
		}
	}
}

// Emit queues a copy of data as a data event. It returns false once the
// stream has ended or the pump was stopped.
func (p *Pump) Emit(data []byte) bool {
	chunk := make([]byte, len(data))
	copy(chunk, data)
	return p.send(Event{Kind: EventData, Data: chunk, At: time.Now()})
}

// End ends the stream with a close event. It has no effect after the stream
// has already ended.
func (p *Pump) End() {
	p.finish(Event{Kind: EventClose, At: time.Now()})
}

// Fail ends the stream with an error event. It has no effect after the
// stream has already ended.
func (p *Pump) Fail(err error) {
	p.finish(Event{Kind: EventError, Err: err, At: time.Now()})
}

// Stop abandons any pending or future sends.
func (p *Pump) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

func (p *Pump) finish(ev Event) {
	p.finishOnce.Do(func() {
		p.send(ev)
		close(p.finished)
	})
}

func (p *Pump) send(ev Event) bool {
	select {
	case <-p.finished:
		return false
	default:
	}

	select {
	case p.events <- ev:
		return true
	case <-p.done:
		return false
	}
}

// IsClosedErr reports whether err means the stream ended normally.
func IsClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, ErrClosed)
}
