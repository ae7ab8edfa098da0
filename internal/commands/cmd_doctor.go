package commands

import (
	"context"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/conch/internal/commands/doctor"
	"github.com/hay-kot/conch/internal/printer"
	"github.com/hay-kot/conch/pkg/executil"
)

type DoctorCmd struct {
	flags   *Flags
	format  string
	only    []string
	timeout time.Duration
}

func NewDoctorCmd(flags *Flags) *DoctorCmd {
	return &DoctorCmd{flags: flags}
}

func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "doctor",
		Usage:       "Run health checks on your conch setup",
		UsageText:   "conch doctor [options]",
		Description: "Checks the configuration, that the local shell starts, and the SSH agent, key and known_hosts used for remote sessions.",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "only",
				Usage:       "run only the named checks (config, local, ssh)",
				Destination: &cmd.only,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "time limit for each check",
				Value:       doctor.DefaultCheckTimeout,
				Destination: &cmd.timeout,
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

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	checks := []doctor.Check{
		doctor.NewConfigCheck(cfg, cmd.flags.ConfigPath),
	}
	if cfg != nil {
		checks = append(checks,
			doctor.NewShellCheck(cfg.Shell, executil.RealExecutor{}),
			doctor.NewSSHCheck(cfg.SSH, os.Getenv("SSH_AUTH_SOCK")),
		)
	}

	checks, err := doctor.Select(checks, cmd.only)
	if err != nil {
		return err
	}

	results := doctor.RunAll(ctx, checks, cmd.timeout)

	if cmd.format == "json" {
		return cmd.outputJSON(c, results)
	}

	return cmd.outputText(ctx, results)
}

func (cmd *DoctorCmd) outputJSON(c *cli.Command, results []doctor.Result) error {
	counts := doctor.Summary(results)

	out := struct {
		Healthy bool            `json:"healthy"`
		Summary doctor.Counts   `json:"summary"`
		Checks  []doctor.Result `json:"checks"`
	}{
		Healthy: counts.Healthy(),
		Summary: counts,
		Checks:  results,
	}

	if err := encodeJSON(c.Root().Writer, out); err != nil {
		return err
	}
	if !counts.Healthy() {
		return cli.Exit("", 1)
	}
	return nil
}

func (cmd *DoctorCmd) outputText(ctx context.Context, results []doctor.Result) error {
	p := printer.Ctx(ctx)

	for _, result := range results {
		p.Section(result.Name)

		for _, item := range result.Items {
			switch item.Status {
			case doctor.StatusPass:
				p.CheckItem(item.Label, item.Detail)
			case doctor.StatusWarn:
				p.WarnItem(item.Label, item.Detail)
			case doctor.StatusFail:
				p.FailItem(item.Label, item.Detail)
			}
		}

		p.Printf("")
	}

	counts := doctor.Summary(results)
	p.Printf("Summary: %d passed, %d warnings, %d failed", counts.Passed, counts.Warned, counts.Failed)

	if !counts.Healthy() {
		return cli.Exit("", 1)
	}

	return nil
}
