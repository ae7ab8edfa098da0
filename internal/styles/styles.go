// Package styles provides shared lipgloss styles for CLI output.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/conch/internal/core/detect"
)

// Tokyo Night color palette.
var (
	ColorRed    = lipgloss.Color("#d75f6b")
	ColorGreen  = lipgloss.Color("#9ece6a")
	ColorYellow = lipgloss.Color("#e0af68")
	ColorBlue   = lipgloss.Color("#7aa2f7")
	ColorPurple = lipgloss.Color("#bb9af7")
	ColorGray   = lipgloss.Color("#565f89")
	ColorWhite  = lipgloss.Color("#c0caf5")
)

// Banner ASCII art for the REPL header.
const Banner = `
 ╔═╗╔═╗╔╗╔╔═╗╦ ╦
 ║  ║ ║║║║║  ╠═╣
 ╚═╝╚═╝╝╚╝╚═╝╩ ╩`

// BannerStyle styles the ASCII art banner.
var BannerStyle = lipgloss.NewStyle().
	Foreground(ColorBlue).
	Bold(true)

// PromptStyle styles the REPL input prompt.
var PromptStyle = lipgloss.NewStyle().
	Foreground(ColorPurple).
	Bold(true)

// CommandStyle styles echoed input.
var CommandStyle = lipgloss.NewStyle().
	Foreground(ColorWhite)

// DividerStyle styles horizontal dividers and secondary text.
var DividerStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// OutcomeStyle returns the style for a detection outcome label.
func OutcomeStyle(o detect.Outcome) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch o {
	case detect.OutcomeFastComplete:
		return base.Foreground(ColorGreen)
	case detect.OutcomeSlowComplete:
		return base.Foreground(ColorBlue)
	case detect.OutcomeTimeoutTruncated, detect.OutcomeStabilizedWaiting:
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorRed)
	}
}
