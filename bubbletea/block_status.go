package bubbletea

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*StatusBlock)(nil)

// StatusBlock stands in for an answer that has not arrived yet. It shows
// the latest progress message next to a spinner frame.
type StatusBlock struct {
	line    string
	spinner string
	styles  Styles
}

// NewStatusBlock creates a StatusBlock. With no progress message yet it
// says it is waiting for the server.
func NewStatusBlock(line, spinner string, styles Styles) *StatusBlock {
	if line == "" {
		line = "Waiting for the server"
	}
	return &StatusBlock{line: line, spinner: spinner, styles: styles}
}

func (b *StatusBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *StatusBlock) View(width int) string {
	content := b.spinner + " " + b.styles.Status.Render(b.line+"...")
	return lipgloss.NewStyle().Width(width).Render(content)
}
