// Package local opens a shell on this machine under a pseudo-terminal.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/rs/zerolog"

	"github.com/hay-kot/conch/internal/integration/channel"
	"github.com/hay-kot/conch/pkg/executil"
)

// Options configures the spawned shell.
type Options struct {
	Shell string            // executable; defaults to $SHELL, then /bin/bash
	Args  []string          // arguments passed to Shell
	Dir   string            // working directory; empty inherits ours
	Env   map[string]string // added to the inherited environment
	Term  string            // TERM value; defaults to xterm-256color
	Cols  int
	Rows  int
}

func (o Options) withDefaults() Options {
	if o.Shell == "" {
		o.Shell = DefaultShell()
	}
	if o.Term == "" {
		o.Term = "xterm-256color"
	}
	if o.Cols <= 0 {
		o.Cols = 80
	}
	if o.Rows <= 0 {
		o.Rows = 24
	}
	return o
}

// DefaultShell returns $SHELL or /bin/bash.
func DefaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

// Channel is a shell process attached to a pseudo-terminal.
type Channel struct {
	opts Options
	cmd  *exec.Cmd
	ptmx *os.File
	pump *channel.Pump
	log  zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// Start spawns the shell and begins pumping its output.
func Start(opts Options, log zerolog.Logger) (*Channel, error) {
	opts = opts.withDefaults()

	cmd := exec.Command(opts.Shell, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), "TERM="+opts.Term)
	cmd.Env = append(cmd.Env, executil.EnvList(opts.Env)...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(opts.Cols),
		Rows: uint16(opts.Rows),
	})
	if err != nil {
		return nil, fmt.Errorf("start %s under pty: %w", opts.Shell, err)
	}

	c := &Channel{
		opts: opts,
		cmd:  cmd,
		ptmx: ptmx,
		pump: channel.NewPump(channel.DefaultEventBuffer),
		log:  log.With().Str("component", "local").Int("pid", cmd.Process.Pid).Logger(),
	}

	go c.pump.Run(eioReader{ptmx})
	go c.wait()

	c.log.Debug().Str("shell", opts.Shell).Msg("shell started")
	return c, nil
}

// wait reaps the process. The pty read side sees EIO once the child exits,
// which ends the event stream.
func (c *Channel) wait() {
	err := c.cmd.Wait()
	c.log.Debug().Err(err).Msg("shell exited")
}

func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, channel.ErrClosed
	}
	return c.ptmx.Write(p)
}

// Close terminates the shell and releases the pseudo-terminal.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.pump.Stop()

	var errs []error
	if c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill shell: %w", err))
		}
	}
	if err := c.ptmx.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, fmt.Errorf("close pty: %w", err))
	}
	return errors.Join(errs...)
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
	return pty.Setsize(c.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

func (c *Channel) Origin() channel.Origin {
	return channel.OriginLocal
}

func (c *Channel) Describe() string {
	return c.opts.Shell
}

// eioReader maps EIO, which Linux returns from the pty master after the
// child exits, to io.EOF.
type eioReader struct {
	r io.Reader
}

func (e eioReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if errors.Is(err, syscall.EIO) {
		err = io.EOF
	}
	return n, err
}

// Opener opens local shells with fixed options.
type Opener struct {
	Options Options
	Log     zerolog.Logger
}

func (o *Opener) Name() string {
	return "local"
}

// Available returns true if the configured shell can be found.
func (o *Opener) Available() bool {
	_, err := exec.LookPath(o.Options.withDefaults().Shell)
	return err == nil
}

// Open starts a shell. A non-empty target overrides the configured shell.
func (o *Opener) Open(ctx context.Context, target string) (channel.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := o.Options
	if target != "" {
		opts.Shell = target
	}
	return Start(opts, o.Log)
}

var (
	_ channel.Channel = (*Channel)(nil)
	_ channel.Opener  = (*Opener)(nil)
)
