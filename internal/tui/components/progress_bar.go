package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/NamanBalaji/vodbatch/internal/status"
	"github.com/NamanBalaji/vodbatch/internal/tui/styles"
)

// ProgressBar returns a styled progress bar. fraction is clamped to [0, 1].
func ProgressBar(width int, fraction float64, s status.Status) string {
	if width <= 0 {
		return ""
	}

	fraction = max(0, min(fraction, 1))

	filledWidth := int(float64(width) * fraction)
	emptyWidth := width - filledWidth

	filledStr := strings.Repeat("█", filledWidth)
	emptyStr := strings.Repeat("░", emptyWidth)

	var filledStyle lipgloss.Style

	switch s {
	case status.Downloading:
		filledStyle = lipgloss.NewStyle().Foreground(styles.Teal)
	case status.Finalizing:
		filledStyle = lipgloss.NewStyle().Foreground(styles.Peach)
	case status.Completed:
		filledStyle = lipgloss.NewStyle().Foreground(styles.Green)
	case status.Failed:
		filledStyle = lipgloss.NewStyle().Foreground(styles.Red)
	default:
		filledStyle = lipgloss.NewStyle().Foreground(styles.Yellow)
	}

	return filledStyle.Render(filledStr) + styles.ProgressBarEmptyStyle.Render(emptyStr)
}
