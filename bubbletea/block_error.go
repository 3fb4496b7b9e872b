package bubbletea

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*ErrorBlock)(nil)

// ErrorBlock renders a failed answer with a hint to retry.
type ErrorBlock struct {
	content string // already carries the "Error: " prefix
	styles  Styles
}

// NewErrorBlock creates an ErrorBlock.
func NewErrorBlock(content string, styles Styles) *ErrorBlock {
	return &ErrorBlock{content: content, styles: styles}
}

func (b *ErrorBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *ErrorBlock) View(width int) string {
	wrap := lipgloss.NewStyle().Width(width)
	return wrap.Render(b.styles.Error.Render(b.content)) + "\n" +
		wrap.Render(b.styles.Muted.Render("Ctrl+R to retry"))
}
