// Package printer writes styled status messages and detection results to the
// terminal.
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hay-kot/criterio"

	"github.com/hay-kot/conch/internal/core/detect"
	"github.com/hay-kot/conch/internal/styles"
)

const (
	Check = "✔"
	Cross = "✘"
	Dot   = "•"
)

type ctxKey struct{}

// Printer handles formatted output with colors and styles. Colors are
// dropped automatically when the writer is not a terminal.
type Printer struct {
	writer   io.Writer
	renderer *lipgloss.Renderer

	red       lipgloss.Style
	green     lipgloss.Style
	yellow    lipgloss.Style
	gray      lipgloss.Style
	bold      lipgloss.Style
	underline lipgloss.Style
}

// New returns a Printer for w. Styles are bound to w so color is only
// emitted when w is a terminal.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		writer:    w,
		renderer:  r,
		red:       r.NewStyle().Foreground(styles.ColorRed),
		green:     r.NewStyle().Foreground(styles.ColorGreen),
		yellow:    r.NewStyle().Foreground(styles.ColorYellow),
		gray:      r.NewStyle().Foreground(styles.ColorGray),
		bold:      r.NewStyle().Bold(true),
		underline: r.NewStyle().Bold(true).Underline(true),
	}
}

func NewContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx returns the printer stored by NewContext, or a stderr printer.
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok {
		return p
	}
	return New(os.Stderr)
}

func (p *Printer) write(s string) {
	_, _ = io.WriteString(p.writer, s)
}

// FatalError prints err in a boxed block. It does not exit.
func (p *Printer) FatalError(err error) {
	if err == nil {
		return
	}

	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		p.printValidationErrors(err, fieldErrs)
		return
	}

	lines := []string{
		p.red.Render("╭ Error"),
		p.red.Render("│") + " " + p.gray.Render(err.Error()),
		p.red.Render("╵"),
	}

	p.write(strings.Join(lines, "\n") + "\n")
}

// printValidationErrors lists each field error under the wrapping context.
func (p *Printer) printValidationErrors(wrappedErr error, fieldErrs criterio.FieldErrors) {
	// "load config: invalid config: <fields>" keeps only the prefix
	errStr := wrappedErr.Error()
	fieldErrStr := fieldErrs.Error()

	errContext := ""
	if idx := strings.Index(errStr, fieldErrStr); idx > 0 {
		errContext = strings.TrimSuffix(errStr[:idx], ": ")
	}

	p.write(p.red.Render("╭ Validation Error") + "\n")

	if errContext != "" {
		p.write(p.red.Render("│") + " " + p.gray.Render(errContext) + "\n")
		p.write(p.red.Render("│") + "\n")
	}

	for _, fe := range fieldErrs {
		line := p.red.Render("│") + " " + p.red.Render(Cross) + " "
		if fe.Field != "" {
			line += p.gray.Render(fe.Field + ": ")
		}
		line += fe.Err.Error()
		p.write(line + "\n")
	}

	p.write(p.red.Render("╵") + "\n")
}

func (p *Printer) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.write(p.red.Render(Cross+" "+msg) + "\n")
}

func (p *Printer) Successf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.write(p.green.Render(Check+" "+msg) + "\n")
}

// Infof prints a dimmed informational line.
func (p *Printer) Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.write(p.gray.Render(Dot+" "+msg) + "\n")
}

func (p *Printer) Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.write(p.yellow.Render(Dot+" "+msg) + "\n")
}

// Printf prints an unstyled line.
func (p *Printer) Printf(format string, args ...any) {
	p.write(fmt.Sprintf(format, args...) + "\n")
}

func (p *Printer) Bold(text string) string {
	return p.bold.Render(text)
}

func (p *Printer) Section(title string) {
	p.write(p.underline.Render(title) + "\n")
}

// CheckItem, WarnItem and FailItem print indented doctor-style items.
func (p *Printer) CheckItem(label, detail string) {
	p.printItem(p.green, Check, label, detail)
}

func (p *Printer) WarnItem(label, detail string) {
	p.printItem(p.yellow, Dot, label, detail)
}

func (p *Printer) FailItem(label, detail string) {
	p.printItem(p.red, Cross, label, detail)
}

func (p *Printer) printItem(style lipgloss.Style, symbol, label, detail string) {
	line := "  " + style.Render(symbol) + " " + label
	if detail != "" {
		line += ": " + detail
	}
	p.write(line + "\n")
}

// ResultHeader renders the one-line summary shown above command output, for
// example "fast_complete · 3 lines · 240ms".
func (p *Printer) ResultHeader(res detect.Result) string {
	outcome := p.renderer.NewStyle().Inherit(styles.OutcomeStyle(res.Outcome))
	parts := []string{
		outcome.Render(string(res.Outcome)),
		p.gray.Render(fmt.Sprintf("%d lines", res.LineCount)),
		p.gray.Render(res.Elapsed.Round(time.Millisecond).String()),
	}
	return strings.Join(parts, p.gray.Render(" · "))
}

// Result prints a detection result: the header, the captured output and the
// explanatory message when there is one.
func (p *Printer) Result(res detect.Result) {
	p.write(p.ResultHeader(res) + "\n")

	if res.Output != "" {
		out := res.Output
		if !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		p.write(out)
	}

	if res.Message != "" {
		p.write(p.yellow.Render(Dot+" "+res.Message) + "\n")
	}
}

// StatusOK prefixes msg with a green check for table cells.
func StatusOK(msg string) string {
	return lipgloss.NewStyle().Foreground(styles.ColorGreen).Render(Check) + " " + msg
}

// StatusWarn prefixes msg with a yellow dot for table cells.
func StatusWarn(msg string) string {
	return lipgloss.NewStyle().Foreground(styles.ColorYellow).Render(Dot) + " " + msg
}
