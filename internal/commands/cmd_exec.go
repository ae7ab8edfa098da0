package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/conch/internal/core/detect"
	"github.com/hay-kot/conch/internal/core/linebuf"
	"github.com/hay-kot/conch/internal/printer"
	"github.com/hay-kot/conch/internal/shell"
)

type ExecCmd struct {
	flags *Flags
	conn  connectFlags

	// Command-specific flags
	format string
	banner bool
}

// NewExecCmd creates a new exec command
func NewExecCmd(flags *Flags) *ExecCmd {
	return &ExecCmd{flags: flags}
}

// Register adds the exec command to the application
func (cmd *ExecCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "exec",
		Usage:     "Run commands in a fresh terminal session",
		UsageText: "conch exec [options] -- COMMAND [COMMAND...]",
		Description: `Opens a session, sends each argument as one command line and prints how
each command finished along with its output. The session is closed afterwards.

Commands run in order in the same shell, so state such as the working
directory carries over:

  conch exec -- 'cd /tmp' 'ls -la'
  conch exec --ssh deploy@web1 --format json -- 'systemctl status nginx'

Exits non-zero when the session closes before every command has run.`,
		Flags: append(cmd.conn.cliFlags(),
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "banner",
				Usage:       "print the shell's startup output before the first command",
				Destination: &cmd.banner,
			},
		),
		Action: cmd.run,
	})

	return app
}

// execResult pairs a command with its detection result for JSON output.
type execResult struct {
	Input  string        `json:"input"`
	Result detect.Result `json:"result"`
}

func (cmd *ExecCmd) run(ctx context.Context, c *cli.Command) error {
	inputs := c.Args().Slice()
	if len(inputs) == 0 {
		return fmt.Errorf("no commands given; usage: %s", c.UsageText)
	}
	if cmd.format != "text" && cmd.format != "json" {
		return fmt.Errorf("invalid format %q (want text or json)", cmd.format)
	}

	sess, err := cmd.conn.open(ctx, cmd.flags.Config)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	out := c.Root().Writer
	banner := sess.Read(shell.ReadRequest{Count: linebuf.All, Clear: true})
	if cmd.banner && cmd.format == "text" && banner.Output != "" {
		_, _ = fmt.Fprintln(out, banner.Output)
	}

	results, err := cmd.sendAll(ctx, sess, inputs)
	if err != nil {
		return err
	}

	if cmd.format == "json" {
		if err := encodeJSON(out, results); err != nil {
			return err
		}
	} else {
		printResults(out, results)
	}

	if len(results) < len(inputs) {
		return cli.Exit("", 1)
	}
	return nil
}

// sendAll sends inputs in order and stops at the first result that leaves
// the session unusable.
func (cmd *ExecCmd) sendAll(ctx context.Context, sess *shell.Session, inputs []string) ([]execResult, error) {
	rec := newRecorder(cmd.flags, sess.Info())
	opts := cmd.conn.sendOptions()

	results := make([]execResult, 0, len(inputs))
	for _, input := range inputs {
		res, err := sess.Send(ctx, input, opts...)
		if err != nil {
			return results, fmt.Errorf("send %q: %w", input, err)
		}
		rec.record(ctx, input, res)
		results = append(results, execResult{Input: input, Result: res})

		if res.Outcome == detect.OutcomeClosed || res.Outcome == detect.OutcomeNotOpen {
			break
		}
	}
	return results, nil
}

func printResults(w io.Writer, results []execResult) {
	p := printer.New(w)
	for i, r := range results {
		if i > 0 {
			p.Printf("")
		}
		p.Printf("%s %s", printer.Dot, p.Bold(r.Input))
		p.Result(r.Result)
	}
}
