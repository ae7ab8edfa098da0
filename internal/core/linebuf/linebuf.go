// Package linebuf reassembles a terminal byte stream into an ordered,
// bounded buffer of completed lines plus one pending partial line.
//
// A Buffer is not safe for concurrent use. The shell session owns exactly
// one Buffer and funnels every mutation and read through its own goroutine.
package linebuf

import "strings"

const (
	// DefaultMaxLines is the completed-line cap used when none is configured.
	DefaultMaxLines = 10000

	// DefaultReadLines is how many trailing lines Window returns when no
	// count is requested.
	DefaultReadLines = 20

	// All requests every retained line starting at the offset.
	All = -1
)

// Buffer holds completed lines (oldest first) and the bytes received after
// the last line terminator.
//
// Pending has no size limit: a stream that never emits a terminator grows it
// without bound.
type Buffer struct {
	lines   []string
	pending string
	max     int

	// total counts every line ever completed and received counts every byte
	// ingested. Both survive eviction and Clear so marks taken before either
	// stay comparable.
	total    uint64
	received uint64
}

// Mark is a stream position taken with Buffer.Mark.
type Mark struct {
	lines uint64
	bytes uint64
}

// New creates a Buffer that retains at most maxLines completed lines.
// If maxLines <= 0, DefaultMaxLines is used.
func New(maxLines int) *Buffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Buffer{max: maxLines}
}

// Ingest appends chunk to the pending line and finalizes every segment that
// ends in a line terminator. "\n" and "\r\n" terminate a line; a lone "\r"
// does not, since terminals use it to redraw a line in place.
func (b *Buffer) Ingest(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	b.received += uint64(len(chunk))

	combined := b.pending + string(chunk)
	segments := strings.Split(combined, "\n")

	for _, seg := range segments[:len(segments)-1] {
		b.push(strings.TrimSuffix(seg, "\r"))
	}
	b.pending = segments[len(segments)-1]
}

// push appends a completed line, dropping the oldest once max is exceeded.
// Eviction reslices; the retained lines are copied into a fresh array only
// when the headroom behind them is used up, so a full buffer copies max
// lines once per max/4 pushes.
func (b *Buffer) push(line string) {
	if len(b.lines) >= b.max && len(b.lines) == cap(b.lines) {
		kept := make([]string, b.max, b.max+b.headroom())
		copy(kept, b.lines[len(b.lines)-b.max:])
		b.lines = kept
	}

	b.lines = append(b.lines, line)
	b.total++

	if over := len(b.lines) - b.max; over > 0 {
		b.lines = b.lines[over:]
	}
}

func (b *Buffer) headroom() int {
	return max(b.max/4, 1)
}

// Len returns the number of retained completed lines.
func (b *Buffer) Len() int {
	return len(b.lines)
}

// Pending returns the partial line received after the last terminator.
func (b *Buffer) Pending() string {
	return b.pending
}

// Mark returns the current stream position for Since.
func (b *Buffer) Mark() Mark {
	return Mark{lines: b.total, bytes: b.received}
}

// Since returns the completed lines finalized after mark, followed by the
// pending line when it is non-empty and at least one byte has arrived since
// mark. A pending line left over from before mark, typically the previous
// prompt, is held back until new output reaches it. Lines evicted since mark
// are not returned. The cost is proportional to the number of new lines.
func (b *Buffer) Since(mark Mark) []string {
	n := 0
	if b.total > mark.lines {
		n = int(min(b.total-mark.lines, uint64(len(b.lines))))
	}

	out := make([]string, 0, n+1)
	out = append(out, b.lines[len(b.lines)-n:]...)
	if b.pending != "" && b.received > mark.bytes {
		out = append(out, b.pending)
	}
	return out
}

// Window returns a copy of a range of retained lines.
//
//   - count == 0 returns the most recent DefaultReadLines lines; offset is ignored.
//   - count == All returns every line from offset.
//   - count > 0 returns up to count lines starting at offset.
//
// The pending line is appended whenever the window reaches the end of the
// completed lines and pending is non-empty.
func (b *Buffer) Window(count, offset int) []string {
	if offset < 0 {
		offset = 0
	}

	var start, end int
	switch {
	case count == 0:
		start = max(len(b.lines)-DefaultReadLines, 0)
		end = len(b.lines)
	case count < 0:
		start = min(offset, len(b.lines))
		end = len(b.lines)
	default:
		start = min(offset, len(b.lines))
		end = min(start+count, len(b.lines))
	}

	out := make([]string, 0, end-start+1)
	out = append(out, b.lines[start:end]...)
	if end == len(b.lines) && b.pending != "" {
		out = append(out, b.pending)
	}
	return out
}

// Clear discards every completed line and the pending line.
func (b *Buffer) Clear() {
	b.lines = nil
	b.pending = ""
}
