package bubbletea

import tea "github.com/charmbracelet/bubbletea"

// MessageBlock is a renderable element in the conversation.
// Unlike tea.Model, View takes a width parameter so the root model
// controls layout and blocks are testable in isolation.
type MessageBlock interface {
	Update(tea.Msg) (MessageBlock, tea.Cmd)
	View(width int) string
}

// ToggleMsg tells a collapsible block to toggle its collapsed state.
// Sent by the root model when the user presses Tab.
type ToggleMsg struct{}

// blockSeparator returns the spacing between two adjacent blocks. A user
// block starts a new exchange and gets a blank line before it; the answer
// sits directly under its question.
func blockSeparator(_, curr MessageBlock) string {
	if _, ok := curr.(*UserMessageBlock); ok {
		return "\n\n"
	}
	return "\n"
}
