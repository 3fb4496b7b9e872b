// Package goldmark renders answer markdown to ANSI-styled terminal output
// using goldmark for parsing and lipgloss for styling. GitHub tables and
// strikethrough are supported because analytics answers use them often.
package goldmark

import "github.com/fwojciec/pulse"

// defaultWidth is used when the caller does not know the terminal width.
const defaultWidth = 80

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs, quotes and list items are word-wrapped to width. Code blocks
// and tables are never reflowed.
func Render(source string, width int, theme pulse.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}
	return newRenderer(theme, width).render([]byte(source))
}
