package bubbletea

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*UserMessageBlock)(nil)

// UserMessageBlock renders a query after a "> " marker, followed by the time
// it was asked. Long queries wrap under the marker.
type UserMessageBlock struct {
	query   string
	askedAt time.Time
	styles  Styles
}

// NewUserMessageBlock creates a UserMessageBlock. A zero askedAt hides the
// time.
func NewUserMessageBlock(query string, askedAt time.Time, styles Styles) *UserMessageBlock {
	return &UserMessageBlock{query: query, askedAt: askedAt, styles: styles}
}

func (b *UserMessageBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *UserMessageBlock) View(width int) string {
	text := b.query
	if !b.askedAt.IsZero() {
		text += " " + b.styles.Muted.Render(b.askedAt.Format("15:04"))
	}
	wrapped := lipgloss.NewStyle().Width(max(width-2, 1)).Render(text)
	lines := strings.Split(wrapped, "\n")
	for i := range lines {
		if i == 0 {
			lines[i] = b.styles.UserMsg.Render("> ") + lines[i]
		} else {
			lines[i] = "  " + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}
