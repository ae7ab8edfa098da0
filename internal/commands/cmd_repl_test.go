package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/conch/internal/core/detect"
	"github.com/hay-kot/conch/internal/core/linebuf"
	"github.com/hay-kot/conch/internal/integration/channel/channeltest"
	"github.com/hay-kot/conch/internal/printer"
	"github.com/hay-kot/conch/internal/shell"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    replLine
		wantErr string
	}{
		{name: "plain command", input: "ls -la", want: replLine{kind: lineSend, text: "ls -la"}},
		{name: "empty line", input: "", want: replLine{kind: lineSend}},
		{name: "escaped colon", input: "::wq", want: replLine{kind: lineSend, text: ":wq"}},
		{name: "read default", input: ":read", want: replLine{kind: lineRead}},
		{name: "read count", input: ":read 50", want: replLine{kind: lineRead, count: 50}},
		{name: "read count offset", input: ":read 10 30", want: replLine{kind: lineRead, count: 10, offset: 30}},
		{name: "read all", input: ":read all", want: replLine{kind: lineRead, count: linebuf.All}},
		{name: "read alias", input: ":r 5", want: replLine{kind: lineRead, count: 5}},
		{name: "read zero count", input: ":read 0", wantErr: "invalid count"},
		{name: "read negative offset", input: ":read 5 -1", wantErr: "invalid offset"},
		{name: "read too many args", input: ":read 1 2 3", wantErr: "usage"},
		{name: "clear", input: ":clear", want: replLine{kind: lineClear}},
		{name: "signal", input: ":signal interrupt", want: replLine{kind: lineSignal, text: "interrupt"}},
		{name: "signal case", input: ":sig QUIT", want: replLine{kind: lineSignal, text: "quit"}},
		{name: "signal unknown", input: ":signal kill", wantErr: "unknown signal"},
		{name: "signal missing", input: ":signal", wantErr: "usage"},
		{name: "raw", input: `:raw y\n`, want: replLine{kind: lineRaw, text: "y\n"}},
		{name: "raw keeps spaces", input: ":raw  a b", want: replLine{kind: lineRaw, text: " a b"}},
		{name: "raw empty", input: ":raw", wantErr: "usage"},
		{name: "resize", input: ":resize 120 40", want: replLine{kind: lineResize, cols: 120, rows: 40}},
		{name: "resize bad", input: ":resize wide 40", wantErr: "usage"},
		{name: "info", input: ":info", want: replLine{kind: lineInfo}},
		{name: "help", input: ":help", want: replLine{kind: lineHelp}},
		{name: "quit", input: ":quit", want: replLine{kind: lineQuit}},
		{name: "quit alias", input: ":q", want: replLine{kind: lineQuit}},
		{name: "unknown", input: ":frobnicate", wantErr: "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLine(tt.input)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLine_UnknownSignalIsSentinel(t *testing.T) {
	_, err := parseLine(":signal hup")
	assert.True(t, errors.Is(err, shell.ErrUnknownSignal))
}

func testSessionConfig() shell.Config {
	return shell.Config{
		Detection: detect.Config{
			QuickTimeout:    400 * time.Millisecond,
			MaxTimeout:      800 * time.Millisecond,
			TruncationLines: 200,
			PollInterval:    10 * time.Millisecond,
		},
	}
}

// newEchoSession returns a session whose fake shell answers every command
// line with "out: <cmd>" and a fresh prompt.
func newEchoSession(t *testing.T) (*shell.Session, *channeltest.Channel) {
	t.Helper()

	ch := channeltest.New()
	ch.OnWrite = func(c *channeltest.Channel, p []byte) {
		s := string(p)
		if !strings.HasSuffix(s, "\n") {
			return
		}
		cmd := strings.TrimSuffix(s, "\n")
		if cmd == "exit" {
			c.EmitClose()
			return
		}
		c.Emit(cmd + "\r\nout: " + cmd + "\r\nuser@host:~$ ")
	}

	sess := shell.New(ch, testSessionConfig(), zerolog.New(io.Discard))
	t.Cleanup(func() { _ = sess.Close() })
	return sess, ch
}

func newTestRepl(sess *shell.Session) (*repl, *bytes.Buffer) {
	var buf bytes.Buffer
	return &repl{
		sess:      sess,
		out:       &buf,
		p:         printer.New(&buf),
		readLines: 20,
	}, &buf
}

func TestRepl_Send(t *testing.T) {
	sess, _ := newEchoSession(t)
	r, buf := newTestRepl(sess)

	stop := r.handle(context.Background(), "whoami")
	assert.False(t, stop)
	assert.Contains(t, buf.String(), "fast_complete")
	assert.Contains(t, buf.String(), "out: whoami")
}

func TestRepl_SendStopsWhenClosed(t *testing.T) {
	sess, _ := newEchoSession(t)
	r, buf := newTestRepl(sess)

	assert.True(t, r.handle(context.Background(), "exit"))
	assert.Contains(t, buf.String(), "closed")
}

func TestRepl_ReadAndClear(t *testing.T) {
	sess, ch := newEchoSession(t)
	r, buf := newTestRepl(sess)

	ch.Emit("one\r\ntwo\r\nthree\r\n")
	require.Eventually(t, func() bool { return sess.BufferLineCount() == 3 }, 2*time.Second, 5*time.Millisecond)

	assert.False(t, r.handle(context.Background(), ":read 2 1"))
	assert.Contains(t, buf.String(), "two\nthree")
	assert.Contains(t, buf.String(), "2 of 3 lines")
	assert.NotContains(t, buf.String(), "one")

	buf.Reset()
	assert.False(t, r.handle(context.Background(), ":clear"))
	assert.Contains(t, buf.String(), "cleared 3 lines")
	assert.Equal(t, 0, sess.BufferLineCount())
}

func TestRepl_ReadDefaultShowsNewest(t *testing.T) {
	sess, ch := newEchoSession(t)
	r, buf := newTestRepl(sess)
	r.readLines = 2

	ch.Emit("a\r\nb\r\nc\r\nd\r\n")
	require.Eventually(t, func() bool { return sess.BufferLineCount() == 4 }, 2*time.Second, 5*time.Millisecond)

	r.handle(context.Background(), ":read")
	assert.Contains(t, buf.String(), "c\nd")
	assert.NotContains(t, buf.String(), "b\n")
}

func TestRepl_SignalRawResize(t *testing.T) {
	sess, ch := newEchoSession(t)
	r, buf := newTestRepl(sess)
	ctx := context.Background()

	assert.False(t, r.handle(ctx, ":signal interrupt"))
	assert.False(t, r.handle(ctx, `:raw y`))
	assert.False(t, r.handle(ctx, ":resize 132 43"))

	writes := ch.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, []byte{0x03}, writes[0])
	assert.Equal(t, []byte("y"), writes[1])

	cols, rows := ch.Size()
	assert.Equal(t, 132, cols)
	assert.Equal(t, 43, rows)

	assert.Contains(t, buf.String(), "sent interrupt")
	assert.Contains(t, buf.String(), "resized to 132x43")
}

func TestRepl_ResizeOutOfRange(t *testing.T) {
	sess, ch := newEchoSession(t)
	r, buf := newTestRepl(sess)

	assert.False(t, r.handle(context.Background(), ":resize 0 10"))
	assert.Contains(t, buf.String(), "invalid size")

	cols, rows := ch.Size()
	assert.Equal(t, 80, cols)
	assert.Equal(t, 24, rows)
}

func TestRepl_InfoHelpQuit(t *testing.T) {
	sess, _ := newEchoSession(t)
	r, buf := newTestRepl(sess)
	ctx := context.Background()

	assert.False(t, r.handle(ctx, ":info"))
	var info shell.Info
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, sess.Info().ID, info.ID)

	buf.Reset()
	assert.False(t, r.handle(ctx, ":help"))
	assert.Contains(t, buf.String(), ":signal NAME")

	assert.True(t, r.handle(ctx, ":quit"))
}

func TestRepl_ParseErrorContinues(t *testing.T) {
	sess, ch := newEchoSession(t)
	r, buf := newTestRepl(sess)

	assert.False(t, r.handle(context.Background(), ":bogus"))
	assert.Contains(t, buf.String(), "unknown command")
	assert.Empty(t, ch.Writes())
}

func TestRepl_ClosedSession(t *testing.T) {
	sess, _ := newEchoSession(t)
	r, _ := newTestRepl(sess)
	require.NoError(t, sess.Close())

	assert.True(t, r.handle(context.Background(), "ls"))
	assert.True(t, r.handle(context.Background(), ":read"))
	assert.True(t, r.handle(context.Background(), ":signal quit"))
}
