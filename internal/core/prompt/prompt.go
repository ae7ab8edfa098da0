// Package prompt classifies terminal lines that look like an interactive
// shell prompt waiting for input.
//
// Classification is a heuristic. Output that happens to end in "$" is a
// false positive and exotic custom prompts are false negatives; callers
// treat a match as a hint, not a guarantee.
package prompt

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// rule is a named prompt pattern applied to a cleaned line.
type rule struct {
	name    string
	pattern *regexp.Regexp
}

// rules are checked in order and the first match wins. Order only affects
// which name Classify reports.
var rules = []rule{
	// [user@host dir]$ and [user@host dir]#
	{name: "bracketed", pattern: regexp.MustCompile(`\][$#]$`)},
	// user@host:~/src$
	{name: "user-host", pattern: regexp.MustCompile(`^[\w.-]+@[\w.-]+(:\S*)?\s*[$#%>]$`)},
	// ~$, ~/src #, ~ >
	{name: "tilde", pattern: regexp.MustCompile(`~\S*\s*[$#>]$`)},
	// bare sigils: "$", "sh-5.1$", "root #", "PS C:\>", ">>>"
	{name: "sigil", pattern: regexp.MustCompile(`[$#>]$`)},
	// zsh defaults "host%" and "user@host ~ %"; a bare "45%" is progress, not a prompt
	{name: "zsh", pattern: regexp.MustCompile(`^(?:[\w.-]+@[\w.-]+(?:\s+\S+)?\s*|[A-Za-z][\w.-]*)%$`)},
	// starship, pure, spaceship and similar themes end on a glyph
	{name: "glyph", pattern: regexp.MustCompile(`[❯➜λ»›▶→\x{E0B0}\x{E0B1}]$`)},
	// oh-my-zsh robbyrussell starts with an arrow: "➜  src git:(main) ✗"
	{name: "robbyrussell", pattern: regexp.MustCompile(`^➜\s`)},
}

// LooksLikePrompt reports whether line, once cleaned, matches any prompt rule.
// An empty cleaned line is never a prompt.
func LooksLikePrompt(line string) bool {
	_, ok := Classify(line)
	return ok
}

// Classify returns the name of the first rule matching the cleaned line.
func Classify(line string) (string, bool) {
	cleaned := Clean(line)
	if cleaned == "" {
		return "", false
	}

	for _, r := range rules {
		if r.pattern.MatchString(cleaned) {
			return r.name, true
		}
	}
	return "", false
}

// Clean strips escape sequences (cursor movement, SGR colors, OSC title
// sets) and remaining control characters, then trims surrounding whitespace.
func Clean(line string) string {
	if line == "" {
		return ""
	}

	stripped := ansi.Strip(line)
	stripped = strings.ReplaceAll(stripped, "\u00A0", " ")

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case r == '\t':
			b.WriteRune(' ')
		case r < 0x20, r == 0x7f, r >= 0x80 && r < 0xa0:
			// drop C0 and C1 controls, including stray BEL and ESC
		default:
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(b.String())
}

// VisibleTail returns the text after the last carriage return in line.
// Terminals redraw a line in place with "\r", so only that tail is on screen.
func VisibleTail(line string) string {
	if i := strings.LastIndexByte(line, '\r'); i >= 0 {
		return line[i+1:]
	}
	return line
}
