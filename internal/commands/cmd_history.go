package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/conch/internal/core/detect"
	"github.com/hay-kot/conch/internal/core/history"
	"github.com/hay-kot/conch/internal/printer"
)

var knownOutcomes = []detect.Outcome{
	detect.OutcomeFastComplete,
	detect.OutcomeSlowComplete,
	detect.OutcomeTimeoutTruncated,
	detect.OutcomeStabilizedWaiting,
	detect.OutcomeClosed,
}

type HistoryCmd struct {
	flags *Flags

	clear      bool
	incomplete bool
	last       bool
	session    string
	outcome    string
	limit      int
	format     string
}

// NewHistoryCmd creates a new history command
func NewHistoryCmd(flags *Flags) *HistoryCmd {
	return &HistoryCmd{flags: flags}
}

// Register adds the history command to the application
func (cmd *HistoryCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "history",
		Usage:     "View or manage command history",
		UsageText: "conch history [options] [ID]",
		Description: `Lists the commands sent through 'exec' and 'repl' with how completion
detection resolved each one, newest first.

Pass an ID (or a unique prefix of one) to show a single entry. --last shows
the newest entry matching the filters in full.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "clear",
				Usage:       "remove all command history",
				Destination: &cmd.clear,
			},
			&cli.BoolFlag{
				Name:        "incomplete",
				Usage:       "only commands that never reached a prompt",
				Destination: &cmd.incomplete,
			},
			&cli.BoolFlag{
				Name:        "last",
				Usage:       "show only the newest matching entry",
				Destination: &cmd.last,
			},
			&cli.StringFlag{
				Name:        "session",
				Usage:       "only commands from the session with this ID prefix",
				Destination: &cmd.session,
			},
			&cli.StringFlag{
				Name:        "outcome",
				Usage:       "only commands with this detection outcome",
				Destination: &cmd.outcome,
			},
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "maximum entries to list (0 for all)",
				Value:       50,
				Destination: &cmd.limit,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *HistoryCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.format != "text" && cmd.format != "json" {
		return fmt.Errorf("invalid format %q: want text or json", cmd.format)
	}

	if cmd.clear {
		if err := cmd.flags.HistoryStore.Clear(ctx); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		printer.Ctx(ctx).Successf("Command history cleared")
		return nil
	}

	if c.Args().Len() > 0 {
		entry, err := cmd.flags.HistoryStore.Get(ctx, c.Args().First())
		return cmd.showOne(ctx, c.Root().Writer, entry, err)
	}

	filter, err := cmd.filter()
	if err != nil {
		return err
	}

	if cmd.last {
		entry, err := history.Latest(ctx, cmd.flags.HistoryStore, filter)
		return cmd.showOne(ctx, c.Root().Writer, entry, err)
	}

	entries, err := cmd.flags.HistoryStore.Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	return cmd.list(ctx, c.Root().Writer, entries)
}

func (cmd *HistoryCmd) filter() (history.Filter, error) {
	f := history.Filter{
		SessionID:  cmd.session,
		Incomplete: cmd.incomplete,
		Limit:      max(cmd.limit, 0),
	}

	if cmd.outcome != "" {
		o := detect.Outcome(cmd.outcome)
		if !slices.Contains(knownOutcomes, o) {
			names := make([]string, len(knownOutcomes))
			for i, k := range knownOutcomes {
				names[i] = string(k)
			}
			return f, fmt.Errorf("unknown outcome %q: want one of %s", cmd.outcome, strings.Join(names, ", "))
		}
		f.Outcome = o
	}

	return f, nil
}

func (cmd *HistoryCmd) list(ctx context.Context, out io.Writer, entries []history.Entry) error {
	if cmd.format == "json" {
		return encodeJSON(out, entries)
	}

	if len(entries) == 0 {
		printer.Ctx(ctx).Infof("No command history")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tINPUT\tOUTCOME\tLINES\tELAPSED\tTIME")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ShortID(),
			truncate(e.Input, 50),
			outcomeStatus(e),
			e.LineCount,
			e.Elapsed.Round(time.Millisecond),
			e.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	return w.Flush()
}

func (cmd *HistoryCmd) showOne(ctx context.Context, out io.Writer, entry history.Entry, err error) error {
	switch {
	case errors.Is(err, history.ErrNotFound):
		printer.Ctx(ctx).Infof("No matching history entry")
		return nil
	case errors.Is(err, history.ErrAmbiguous):
		return fmt.Errorf("%w: use more characters of the ID", err)
	case err != nil:
		return fmt.Errorf("get history entry: %w", err)
	}

	if cmd.format == "json" {
		return encodeJSON(out, entry)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID\t%s\n", entry.ID)
	_, _ = fmt.Fprintf(w, "Session\t%s (%s %s)\n", entry.SessionID, entry.Origin, entry.Target)
	_, _ = fmt.Fprintf(w, "Input\t%s\n", entry.Input)
	_, _ = fmt.Fprintf(w, "Outcome\t%s\n", outcomeStatus(entry))
	_, _ = fmt.Fprintf(w, "Lines\t%d\n", entry.LineCount)
	if entry.Truncated {
		_, _ = fmt.Fprintf(w, "Truncated\tyes\n")
	}
	_, _ = fmt.Fprintf(w, "Elapsed\t%s\n", entry.Elapsed.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "Time\t%s\n", entry.Timestamp.Format(time.RFC3339))
	if entry.Message != "" {
		_, _ = fmt.Fprintf(w, "Message\t%s\n", entry.Message)
	}
	return w.Flush()
}

func outcomeStatus(e history.Entry) string {
	if e.Incomplete() {
		return printer.StatusWarn(string(e.Outcome))
	}
	return printer.StatusOK(string(e.Outcome))
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
