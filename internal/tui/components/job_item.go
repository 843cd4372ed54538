package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/NamanBalaji/vodbatch/internal/progress"
	"github.com/NamanBalaji/vodbatch/internal/status"
	"github.com/NamanBalaji/vodbatch/internal/tui/styles"
)

const maxIDLen = 16

// JobItem renders one line for a job given its latest event. err marks the
// job as failed.
func JobItem(id string, ev progress.Event, err error, width int) string {
	if len(id) > maxIDLen {
		id = id[:maxIDLen-3] + "..."
	}

	phase := phaseOf(ev, err)

	percent := ev.Percent
	if phase == status.Completed {
		percent = 100
	}

	label := statusLabel(phase)
	formattedPercent := lipgloss.NewStyle().Width(7).Align(lipgloss.Right).Render(fmt.Sprintf("%.1f%%", percent))

	var info string
	switch {
	case err != nil:
		info = err.Error()
	case phase == status.Completed:
		info = ev.Filename
	default:
		speed := ev.Speed
		if speed == "" {
			speed = "--/s"
		}
		eta := ev.ETA
		if eta == "" {
			eta = "--"
		}
		info = fmt.Sprintf("%s  ETA %s", speed, eta)
	}

	barWidth := width - maxIDLen - lipgloss.Width(label) - lipgloss.Width(formattedPercent) - lipgloss.Width(info) - 6
	if barWidth < 10 {
		barWidth = 10
	}

	bar := ProgressBar(barWidth, percent/100, phase)

	line := strings.Join([]string{
		fmt.Sprintf("%-*s", maxIDLen, id),
		label,
		bar,
		formattedPercent,
		styles.InfoStyle.Render(info),
	}, " ")

	return styles.ListItemStyle.Render(line)
}

func phaseOf(ev progress.Event, err error) status.Status {
	switch {
	case err != nil:
		return status.Failed
	case ev.Type == progress.KindComplete:
		return status.Completed
	case ev.Status == status.Finalizing.String():
		return status.Finalizing
	case ev.Type == progress.KindProgress:
		return status.Downloading
	default:
		return status.Pending
	}
}

func statusLabel(s status.Status) string {
	switch s {
	case status.Downloading:
		return styles.StatusDownloading.Render("● downloading")
	case status.Finalizing:
		return styles.StatusFinalizing.Render("◐ finalizing")
	case status.Completed:
		return styles.StatusCompleted.Render("✔ completed")
	case status.Failed:
		return styles.StatusFailed.Render("✖ failed")
	default:
		return styles.StatusPending.Render("○ pending")
	}
}
