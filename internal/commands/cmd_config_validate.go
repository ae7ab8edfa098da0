package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/conch/internal/commands/doctor"
	"github.com/hay-kot/conch/internal/printer"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
	strict bool
}

// NewConfigValidateCmd creates a new config validate command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config validate command to the application.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate configuration file",
				UsageText: "conch config validate [options]",
				Description: `Validates the configuration file: detection timeouts, terminal size, the
local shell, the SSH key and known_hosts paths. Exits non-zero on errors, or
on warnings with --strict.`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "strict",
						Usage:       "treat warnings as errors",
						Destination: &cmd.strict,
					},
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

// validationIssue is one error or warning, keyed by the config field it
// concerns.
type validationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type validationReport struct {
	Valid      bool              `json:"valid"`
	ConfigFile string            `json:"config_file"`
	Errors     []validationIssue `json:"errors,omitempty"`
	Warnings   []validationIssue `json:"warnings,omitempty"`
}

func newValidationReport(r doctor.Result, path string, strict bool) validationReport {
	rep := validationReport{ConfigFile: path}
	for _, item := range r.Items {
		issue := validationIssue{Field: item.Label, Message: item.Detail}
		switch item.Status {
		case doctor.StatusFail:
			rep.Errors = append(rep.Errors, issue)
		case doctor.StatusWarn:
			rep.Warnings = append(rep.Warnings, issue)
		}
	}

	rep.Valid = len(rep.Errors) == 0 && (!strict || len(rep.Warnings) == 0)
	return rep
}

func (cmd *ConfigValidateCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.flags.Config == nil {
		return fmt.Errorf("configuration not loaded")
	}

	check := doctor.NewConfigCheck(cmd.flags.Config, cmd.flags.ConfigPath)
	rep := newValidationReport(check.Run(ctx), cmd.flags.ConfigPath, cmd.strict)

	if cmd.format == "json" {
		if err := encodeJSON(c.Root().Writer, rep); err != nil {
			return err
		}
	} else {
		cmd.printReport(printer.Ctx(ctx), rep)
	}

	if !rep.Valid {
		return cli.Exit("", 1)
	}
	return nil
}

func (cmd *ConfigValidateCmd) printReport(p *printer.Printer, rep validationReport) {
	p.Infof("Checking %s", rep.ConfigFile)
	p.Printf("")

	if len(rep.Errors) > 0 {
		p.Printf("Errors")
		for _, e := range rep.Errors {
			p.Printf("  %s %s: %s", printer.Cross, e.Field, e.Message)
		}
		p.Printf("")
	}

	if len(rep.Warnings) > 0 {
		p.Printf("Warnings")
		for _, w := range rep.Warnings {
			p.Printf("  %s %s: %s", printer.Dot, w.Field, w.Message)
		}
		p.Printf("")
	}

	switch {
	case rep.Valid && len(rep.Warnings) > 0:
		p.Successf("Configuration is valid (%d warning(s))", len(rep.Warnings))
	case rep.Valid:
		p.Successf("Configuration is valid")
	default:
		p.Errorf("%d error(s), %d warning(s)", len(rep.Errors), len(rep.Warnings))
	}
}
