package bubbletea

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/pulse"
	"github.com/mattn/go-runewidth"
)

const keyHelp = "Enter send · Ctrl+R retry · Ctrl+L clear · Ctrl+C quit"

// statusText describes the connection for the status bar.
func statusText(c pulse.Connectivity, now time.Time, styles Styles) (string, lipgloss.Style) {
	switch c.Phase {
	case pulse.PhaseConnecting:
		if c.Attempt > 0 {
			return fmt.Sprintf("Connecting (retry %d)...", c.Attempt), styles.Muted
		}
		return "Connecting...", styles.Muted
	case pulse.PhaseConnected:
		return "● Connected", styles.Success
	case pulse.PhaseReconnecting:
		s := fmt.Sprintf("Reconnecting in %ds (retry %d) · Ctrl+R now", c.SecondsUntilRetry(now), c.Attempt)
		if c.LastError != "" {
			s += " · " + c.LastError
		}
		return s, styles.Warning
	case pulse.PhaseFailed:
		return "✗ " + c.LastError, styles.Error
	default:
		return keyHelp, styles.Muted
	}
}

// truncate fits s into width terminal cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
