package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette. Dim grays for inactive chrome, one accent per engine outcome, and
// a high-contrast banner for degraded states.
const (
	colorAccent = lipgloss.Color("62")
	colorDim    = lipgloss.Color("240")
	colorFaint  = lipgloss.Color("241")
	colorOK     = lipgloss.Color("42")
	colorWarn   = lipgloss.Color("214")
	colorBad    = lipgloss.Color("196")
	colorAlert  = lipgloss.Color("208")
)

var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorAccent)

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorDim)

	StyleStatusRunning  = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	StyleStatusComplete = lipgloss.NewStyle().Foreground(colorOK).Bold(true)
	StyleStatusFailed   = lipgloss.NewStyle().Foreground(colorBad).Bold(true)
	StyleStatusPaused   = lipgloss.NewStyle().Foreground(colorDim)

	StyleTitle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleHelp  = lipgloss.NewStyle().Foreground(colorFaint)

	// Rate-limit / fallback banner
	StyleBanner = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(colorAlert).
			Bold(true).
			Padding(0, 1)
)
