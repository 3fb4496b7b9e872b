package bubbletea

import (
	"time"

	"github.com/fwojciec/pulse"
)

// BlockSeparator exports blockSeparator for testing.
func BlockSeparator(prev, curr MessageBlock) string {
	return blockSeparator(prev, curr)
}

// RenderContent exports renderContent for testing.
func RenderContent(m Model) string {
	return m.renderContent()
}

// StatusLine exports statusLine for testing.
func StatusLine(m Model) string {
	return m.statusLine()
}

// StatusText exports statusText for testing.
func StatusText(c pulse.Connectivity, now time.Time, styles Styles) string {
	s, _ := statusText(c, now, styles)
	return s
}

// Truncate exports truncate for testing.
func Truncate(s string, width int) string {
	return truncate(s, width)
}

// Blocks returns the model's current blocks.
func Blocks(m Model) []MessageBlock {
	return m.blocks
}
