package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/conch/internal/core/detect"
	"github.com/hay-kot/conch/internal/core/linebuf"
	"github.com/hay-kot/conch/internal/printer"
	"github.com/hay-kot/conch/internal/shell"
	"github.com/hay-kot/conch/internal/styles"
)

type ReplCmd struct {
	flags *Flags
	conn  connectFlags
}

// NewReplCmd creates a new repl command
func NewReplCmd(flags *Flags) *ReplCmd {
	return &ReplCmd{flags: flags}
}

// Register adds the repl command to the application
func (cmd *ReplCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "repl",
		Usage:     "Drive a terminal session line by line",
		UsageText: "conch repl [options]",
		Description: `Opens a session and reads lines from stdin. Each line is sent as a command
and conch waits until the shell is ready for the next one.

Lines starting with ':' control the session instead:

` + replHelp + `
Ctrl-C forwards an interrupt to the running command.`,
		Flags:  cmd.Flags(),
		Action: cmd.run,
	})

	return app
}

// Flags returns the connection flags so the root command can start a REPL
// without a subcommand.
func (cmd *ReplCmd) Flags() []cli.Flag {
	return cmd.conn.cliFlags()
}

// Run starts the REPL.
func (cmd *ReplCmd) Run(ctx context.Context, c *cli.Command) error {
	return cmd.run(ctx, c)
}

const replHelp = `  :read                    show the most recent buffered lines
  :read COUNT [OFFSET]     show COUNT lines starting OFFSET lines from the oldest
  :read all                show the whole buffer
  :clear                   discard buffered output
  :signal NAME             send interrupt, suspend or quit
  :raw TEXT                write TEXT without a newline (\n \r \t allowed)
  :resize COLS ROWS        resize the terminal
  :info                    show session details
  :help                    show this help
  :quit                    close the session and exit
  ::TEXT                   send a line that starts with ':'
`

type lineKind int

const (
	lineSend lineKind = iota
	lineRead
	lineClear
	lineSignal
	lineRaw
	lineResize
	lineInfo
	lineHelp
	lineQuit
)

// replLine is one parsed line of REPL input.
type replLine struct {
	kind   lineKind
	text   string
	count  int
	offset int
	cols   int
	rows   int
}

var rawEscapes = strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t", `\\`, `\`)

func parseLine(line string) (replLine, error) {
	if !strings.HasPrefix(line, ":") {
		return replLine{kind: lineSend, text: line}, nil
	}
	if strings.HasPrefix(line, "::") {
		return replLine{kind: lineSend, text: line[1:]}, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	args := strings.Fields(rest)

	switch name {
	case "read", "r":
		return parseRead(args)
	case "clear":
		return replLine{kind: lineClear}, nil
	case "signal", "sig":
		if len(args) != 1 {
			return replLine{}, fmt.Errorf("usage: :signal %s", strings.Join(shell.SignalNames(), "|"))
		}
		if _, ok := shell.SignalByte(args[0]); !ok {
			return replLine{}, fmt.Errorf("%w %q", shell.ErrUnknownSignal, args[0])
		}
		return replLine{kind: lineSignal, text: strings.ToLower(args[0])}, nil
	case "raw":
		if rest == "" {
			return replLine{}, errors.New("usage: :raw TEXT")
		}
		return replLine{kind: lineRaw, text: rawEscapes.Replace(rest)}, nil
	case "resize":
		if len(args) != 2 {
			return replLine{}, errors.New("usage: :resize COLS ROWS")
		}
		cols, err1 := strconv.Atoi(args[0])
		rows, err2 := strconv.Atoi(args[1])
		if err1 != nil || err2 != nil {
			return replLine{}, errors.New("usage: :resize COLS ROWS")
		}
		return replLine{kind: lineResize, cols: cols, rows: rows}, nil
	case "info":
		return replLine{kind: lineInfo}, nil
	case "help", "h", "?":
		return replLine{kind: lineHelp}, nil
	case "quit", "q", "exit":
		return replLine{kind: lineQuit}, nil
	default:
		return replLine{}, fmt.Errorf("unknown command :%s (try :help)", name)
	}
}

func parseRead(args []string) (replLine, error) {
	l := replLine{kind: lineRead}

	switch {
	case len(args) == 0:
		return l, nil
	case len(args) == 1 && args[0] == "all":
		l.count = linebuf.All
		return l, nil
	case len(args) > 2:
		return replLine{}, errors.New("usage: :read [COUNT [OFFSET]] | :read all")
	}

	count, err := strconv.Atoi(args[0])
	if err != nil || count < 1 {
		return replLine{}, fmt.Errorf("invalid count %q", args[0])
	}
	l.count = count

	if len(args) == 2 {
		offset, err := strconv.Atoi(args[1])
		if err != nil || offset < 0 {
			return replLine{}, fmt.Errorf("invalid offset %q", args[1])
		}
		l.offset = offset
	}
	return l, nil
}

func (cmd *ReplCmd) run(ctx context.Context, c *cli.Command) error {
	sess, err := cmd.conn.open(ctx, cmd.flags.Config)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	out := c.Root().Writer
	r := &repl{
		sess:      sess,
		out:       out,
		p:         printer.New(out),
		rec:       newRecorder(cmd.flags, sess.Info()),
		opts:      cmd.conn.sendOptions(),
		readLines: cmd.flags.Config.Detection.ReadLines,
	}

	in := c.Root().Reader
	if in == nil {
		in = os.Stdin
	}
	interactive := in == os.Stdin && term.IsTerminal(int(os.Stdin.Fd()))

	if interactive {
		_, _ = fmt.Fprintln(out, styles.BannerStyle.Render(styles.Banner))
		r.p.Infof("%s session %s on %s (:help for commands)", sess.Info().Origin, sess.Info().ID, sess.Info().Target)
		r.showBanner()
	}

	stop := forwardInterrupts(sess)
	defer stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		if interactive {
			_, _ = fmt.Fprint(out, styles.PromptStyle.Render("conch› "))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sess.Done():
			r.p.Warnf("session closed")
			return sessionErr(sess)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if r.handle(ctx, line) {
				return sessionErr(sess)
			}
		}
	}
}

// forwardInterrupts sends an interrupt to the session for every SIGINT
// conch receives, including while a command is being sent.
func forwardInterrupts(sess *shell.Session) (stop func()) {
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-interrupts:
				sess.SendSignal(shell.SignalInterrupt)
			}
		}
	}()

	return func() {
		signal.Stop(interrupts)
		close(done)
	}
}

func sessionErr(sess *shell.Session) error {
	if err := sess.Err(); err != nil {
		return fmt.Errorf("session ended: %w", err)
	}
	return nil
}

// repl executes parsed lines against one session.
type repl struct {
	sess      *shell.Session
	out       io.Writer
	p         *printer.Printer
	rec       recorder
	opts      []shell.SendOption
	readLines int
}

func (r *repl) showBanner() {
	res := r.sess.Read(shell.ReadRequest{Count: linebuf.All, Clear: true})
	if res.Output != "" {
		_, _ = fmt.Fprintln(r.out, res.Output)
	}
}

// handle runs one line and reports whether the REPL should stop.
func (r *repl) handle(ctx context.Context, input string) bool {
	l, err := parseLine(input)
	if err != nil {
		r.p.Errorf("%v", err)
		return false
	}

	switch l.kind {
	case lineSend:
		res, err := r.sess.Send(ctx, l.text, r.opts...)
		if err != nil {
			r.p.Errorf("%v", err)
			return errors.Is(err, context.Canceled)
		}
		r.rec.record(ctx, l.text, res)
		r.p.Result(res)
		return res.Outcome == detect.OutcomeClosed || res.Outcome == detect.OutcomeNotOpen

	case lineRead:
		req := shell.ReadRequest{Count: l.count, Offset: l.offset}
		if req.Count == 0 && r.readLines > 0 {
			req.Count = r.readLines
			req.Offset = max(r.sess.BufferLineCount()-r.readLines, 0)
		}
		res := r.sess.Read(req)
		if !res.Open {
			r.p.Warnf("%s", res.Message)
			return true
		}
		if res.Output != "" {
			_, _ = fmt.Fprintln(r.out, res.Output)
		}
		r.p.Infof("%d of %d lines", res.LineCount, res.BufferLines)

	case lineClear:
		res := r.sess.Read(shell.ReadRequest{Count: 1, Clear: true})
		r.p.Infof("cleared %d lines", res.BufferLines)

	case lineSignal:
		if err := r.sess.Signal(l.text); err != nil {
			r.p.Errorf("%v", err)
			return errors.Is(err, shell.ErrNotOpen)
		}
		r.p.Infof("sent %s", l.text)

	case lineRaw:
		if err := r.sess.Write(l.text); err != nil {
			r.p.Errorf("%v", err)
			return errors.Is(err, shell.ErrNotOpen)
		}

	case lineResize:
		if err := r.sess.Resize(l.cols, l.rows); err != nil {
			r.p.Errorf("%v", err)
			return false
		}
		r.p.Infof("resized to %dx%d", l.cols, l.rows)

	case lineInfo:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(r.sess.Info())

	case lineHelp:
		_, _ = fmt.Fprint(r.out, replHelp)

	case lineQuit:
		return true
	}

	return false
}
