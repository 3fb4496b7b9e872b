package bubbletea_test

import (
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/pulse"
	bt "github.com/fwojciec/pulse/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestNewStyles(t *testing.T) {
	t.Parallel()

	t.Run("maps theme indices to ANSI colors", func(t *testing.T) {
		t.Parallel()
		s := bt.NewStyles(pulse.DefaultTheme())
		assert.Equal(t, lipgloss.Color("4"), s.UserMsg.GetForeground())
		assert.Equal(t, lipgloss.Color("1"), s.Error.GetForeground())
		assert.Equal(t, lipgloss.Color("2"), s.Success.GetForeground())
		assert.Equal(t, lipgloss.Color("3"), s.Warning.GetForeground())
		assert.Equal(t, lipgloss.Color("5"), s.Accent.GetForeground())
	})

	t.Run("negative index means no color", func(t *testing.T) {
		t.Parallel()
		theme := pulse.DefaultTheme()
		theme.Error = -1
		s := bt.NewStyles(theme)
		assert.Equal(t, lipgloss.NoColor{}, s.Error.GetForeground())
	})
}

func TestStatusText(t *testing.T) {
	t.Parallel()

	styles := bt.NewStyles(pulse.DefaultTheme())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		conn pulse.Connectivity
		want string
	}{
		{
			name: "idle shows key help",
			conn: pulse.Connectivity{Phase: pulse.PhaseIdle},
			want: "Enter send · Ctrl+R retry · Ctrl+L clear · Ctrl+C quit",
		},
		{
			name: "first connect",
			conn: pulse.Connectivity{Phase: pulse.PhaseConnecting},
			want: "Connecting...",
		},
		{
			name: "reconnect dial",
			conn: pulse.Connectivity{Phase: pulse.PhaseConnecting, Attempt: 2},
			want: "Connecting (retry 2)...",
		},
		{
			name: "connected",
			conn: pulse.Connectivity{Phase: pulse.PhaseConnected},
			want: "● Connected",
		},
		{
			name: "countdown rounds up",
			conn: pulse.Connectivity{
				Phase:     pulse.PhaseReconnecting,
				Attempt:   2,
				RetryAt:   now.Add(3500 * time.Millisecond),
				LastError: "connection refused",
			},
			want: "Reconnecting in 4s (retry 2) · Ctrl+R now · connection refused",
		},
		{
			name: "failed",
			conn: pulse.Connectivity{Phase: pulse.PhaseFailed, LastError: "retries exhausted after 5 attempts: EOF"},
			want: "✗ retries exhausted after 5 attempts: EOF",
		},
		{
			name: "disconnected shows key help",
			conn: pulse.Connectivity{Phase: pulse.PhaseDisconnected},
			want: "Enter send · Ctrl+R retry · Ctrl+L clear · Ctrl+C quit",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, bt.StatusText(tt.conn, now, styles))
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abcdef", bt.Truncate("abcdef", 10))
	assert.Equal(t, "abc…", bt.Truncate("abcdef", 4))
	assert.Equal(t, "売…", bt.Truncate("売上高", 4))
	assert.Equal(t, "abcdef", bt.Truncate("abcdef", 0))
}
