package commands

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

//go:embed guide.md
var guide string

const guideWrap = 100

type DocCmd struct {
	flags *Flags
	raw   bool
}

func NewDocCmd(flags *Flags) *DocCmd {
	return &DocCmd{flags: flags}
}

func (cmd *DocCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "doc",
		Usage: "Show the usage guide",
		Description: `Prints a guide to conch's commands and completion outcomes, written to be
handed to an LLM agent that drives terminals through conch.

The guide is rendered for the terminal when stdout is one. Use --raw to get
plain markdown.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "raw",
				Usage:       "print markdown without rendering",
				Destination: &cmd.raw,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DocCmd) run(_ context.Context, c *cli.Command) error {
	w := c.Root().Writer

	width, render := 0, false
	if f, ok := w.(*os.File); ok && !cmd.raw {
		fd := int(f.Fd())
		if term.IsTerminal(fd) {
			render = true
			width = guideWrap
			if tw, _, err := term.GetSize(fd); err == nil && tw > 0 {
				width = min(tw, guideWrap)
			}
		}
	}

	if !render {
		_, _ = io.WriteString(w, guide)
		return nil
	}

	out, err := renderMarkdown(guide, width)
	if err != nil {
		return err
	}
	_, _ = io.WriteString(w, out)
	return nil
}

func renderMarkdown(md string, width int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("tokyo-night"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}

	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("render guide: %w", err)
	}
	return strings.TrimLeft(out, "\n"), nil
}
