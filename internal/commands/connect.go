package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/conch/internal/core/config"
	"github.com/hay-kot/conch/internal/core/detect"
	"github.com/hay-kot/conch/internal/core/history"
	"github.com/hay-kot/conch/internal/integration/channel"
	"github.com/hay-kot/conch/internal/integration/channel/local"
	"github.com/hay-kot/conch/internal/integration/channel/remote"
	"github.com/hay-kot/conch/internal/shell"
)

const (
	openerLocal = "local"
	openerSSH   = "ssh"

	// A freshly opened shell prints its banner and first prompt before we
	// send anything.
	settleQuiet = 300 * time.Millisecond
	settleLimit = 3 * time.Second
)

// connectFlags are shared by every command that opens a session.
type connectFlags struct {
	target   string
	shell    string
	password bool
	keyPath  string
	insecure bool

	quickTimeout    time.Duration
	maxTimeout      time.Duration
	truncationLines int
}

func (cf *connectFlags) cliFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "ssh",
			Usage:       "open a remote session on `user@host[:port]` instead of a local shell",
			Sources:     cli.EnvVars("CONCH_SSH"),
			Destination: &cf.target,
		},
		&cli.StringFlag{
			Name:        "shell",
			Usage:       "local shell to spawn (overrides shell.path)",
			Destination: &cf.shell,
		},
		&cli.BoolFlag{
			Name:        "password",
			Usage:       "prompt for an SSH password",
			Destination: &cf.password,
		},
		&cli.StringFlag{
			Name:        "identity",
			Aliases:     []string{"i"},
			Usage:       "SSH private key (overrides ssh.key_path)",
			Destination: &cf.keyPath,
		},
		&cli.BoolFlag{
			Name:        "insecure",
			Usage:       "skip SSH host key verification",
			Destination: &cf.insecure,
		},
		&cli.DurationFlag{
			Name:        "quick-timeout",
			Usage:       "window for fast completion (overrides detection.quick_timeout)",
			Destination: &cf.quickTimeout,
		},
		&cli.DurationFlag{
			Name:        "max-timeout",
			Usage:       "hard limit per command (overrides detection.max_timeout)",
			Destination: &cf.maxTimeout,
		},
		&cli.IntFlag{
			Name:        "truncation-lines",
			Usage:       "lines kept when a command times out (overrides detection.truncation_lines)",
			Destination: &cf.truncationLines,
		},
	}
}

// sendOptions returns per-call detection overrides for the flags that were set.
func (cf *connectFlags) sendOptions() []shell.SendOption {
	return []shell.SendOption{
		shell.WithDetection(detect.Config{
			QuickTimeout:    cf.quickTimeout,
			MaxTimeout:      cf.maxTimeout,
			TruncationLines: cf.truncationLines,
		}),
	}
}

// openerName picks the provider and target for the flags.
func (cf *connectFlags) openerName() (name, target string) {
	if cf.target != "" {
		return openerSSH, cf.target
	}
	return openerLocal, cf.shell
}

// newManager registers the local and SSH providers configured from cfg.
func (cf *connectFlags) newManager(cfg *config.Config, cols, rows int) *channel.Manager {
	m := channel.NewManager()
	m.Register(&local.Opener{
		Options: localOptions(cfg, cols, rows),
		Log:     log.With().Str("component", "local").Logger(),
	})
	m.Register(&remote.Opener{
		Options: cf.remoteOptions(cfg, cols, rows),
		Log:     log.With().Str("component", "ssh").Logger(),
	})
	return m
}

func localOptions(cfg *config.Config, cols, rows int) local.Options {
	return local.Options{
		Shell: cfg.Shell.Path,
		Args:  cfg.Shell.Args,
		Dir:   cfg.Shell.Dir,
		Env:   cfg.Shell.Env,
		Term:  cfg.Shell.Term,
		Cols:  cols,
		Rows:  rows,
	}
}

func (cf *connectFlags) remoteOptions(cfg *config.Config, cols, rows int) remote.Options {
	opts := remote.Options{
		Port:                  cfg.SSH.Port,
		User:                  cfg.SSH.User,
		UseAgent:              cfg.SSH.UseAgent,
		KeyPath:               cfg.SSH.KeyPath,
		KnownHosts:            cfg.SSH.KnownHosts,
		InsecureIgnoreHostKey: cfg.SSH.InsecureIgnoreHostKey || cf.insecure,
		DialTimeout:           cfg.SSH.DialTimeout,
		KeepaliveInterval:     cfg.SSH.KeepaliveInterval,
		Term:                  cfg.Shell.Term,
		Cols:                  cols,
		Rows:                  rows,
	}
	if cf.keyPath != "" {
		opts.KeyPath = config.ExpandHome(cf.keyPath)
	}
	if opts.KeyPath != "" {
		opts.PassphraseFunc = readSecret(fmt.Sprintf("Passphrase for %s: ", opts.KeyPath))
	}
	return opts
}

// open starts a session for the flags and waits for the shell to settle. The
// startup output is left in the buffer.
func (cf *connectFlags) open(ctx context.Context, cfg *config.Config) (*shell.Session, error) {
	cols, rows := terminalSize(cfg)
	m := cf.newManager(cfg, cols, rows)

	name, target := cf.openerName()
	if name == openerSSH && cf.password {
		secret, err := readSecret(fmt.Sprintf("Password for %s: ", target))()
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		o := m.Get(openerSSH).(*remote.Opener)
		o.Options.Password = string(secret)
	}

	ch, err := m.Open(ctx, name, target)
	if err != nil {
		return nil, err
	}

	sess := shell.New(ch, shell.Config{
		Detection:      cfg.Detect(),
		MaxBufferLines: cfg.Detection.MaxBufferLines,
	}, log.Logger)

	if err := sess.Settle(ctx, settleQuiet, settleLimit); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("wait for shell: %w", err)
	}

	return sess, nil
}

// terminalSize uses the controlling terminal's size when stdout is a
// terminal and the configured size otherwise.
func terminalSize(cfg *config.Config) (cols, rows int) {
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		if w, h, err := term.GetSize(fd); err == nil && w > 0 && h > 0 {
			return min(w, config.MaxDimension), min(h, config.MaxDimension)
		}
	}
	return cfg.Shell.Cols, cfg.Shell.Rows
}

// readSecret returns a function that prompts on stderr and reads a line from
// the terminal without echo.
func readSecret(label string) func() ([]byte, error) {
	return func() ([]byte, error) {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return nil, fmt.Errorf("cannot prompt for secret: stdin is not a terminal")
		}
		_, _ = fmt.Fprint(os.Stderr, label)
		defer func() { _, _ = fmt.Fprintln(os.Stderr) }()
		return term.ReadPassword(fd)
	}
}

// recorder saves sent commands to history.
type recorder struct {
	store   history.Store
	enabled bool
	info    shell.Info
}

func newRecorder(flags *Flags, info shell.Info) recorder {
	return recorder{
		store:   flags.HistoryStore,
		enabled: flags.HistoryStore != nil && flags.Config != nil && flags.Config.History.Enabled,
		info:    info,
	}
}

func (r recorder) record(ctx context.Context, input string, res detect.Result) {
	if !r.enabled || res.Outcome == detect.OutcomeNotOpen {
		return
	}

	entry := history.NewEntry(r.info.ID, string(r.info.Origin), r.info.Target, input, res, time.Now())
	if err := r.store.Append(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("failed to record history")
	}
}
