// Package styles holds the terminal palette used by the command line client.
package styles

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	Base     = lipgloss.Color("#1e1e2e")
	Text     = lipgloss.Color("#cdd6f4")
	Subtext0 = lipgloss.Color("#a6adc8")
	Surface0 = lipgloss.Color("#313244")

	Mauve  = lipgloss.Color("#cba6f7")
	Red    = lipgloss.Color("#f38ba8")
	Peach  = lipgloss.Color("#fab387")
	Yellow = lipgloss.Color("#f9e2af")
	Green  = lipgloss.Color("#a6e3a1")
	Teal   = lipgloss.Color("#94e2d5")
)

var (
	ListItemStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(Text)

	ProgressBarEmptyStyle = lipgloss.NewStyle().Foreground(Surface0)

	StatusPending     = lipgloss.NewStyle().Foreground(Yellow).Bold(true)
	StatusDownloading = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	StatusFinalizing  = lipgloss.NewStyle().Foreground(Peach).Bold(true)
	StatusCompleted   = lipgloss.NewStyle().Foreground(Green).Bold(true)
	StatusFailed      = lipgloss.NewStyle().Foreground(Red).Bold(true)

	InfoStyle = lipgloss.NewStyle().Foreground(Subtext0)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Base).
			Background(Green).
			Padding(0, 1)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Base).
			Background(Red).
			Padding(0, 1)
)
