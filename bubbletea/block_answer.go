package bubbletea

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/pulse"
	"github.com/fwojciec/pulse/goldmark"
	"github.com/rivo/uniseg"
)

var _ MessageBlock = (*AnswerBlock)(nil)

// AnswerBlock renders a completed answer: the markdown text, a metrics
// table, and a collapsible list of charts. The markdown is rendered once per
// width and cached, since answers never change after they arrive.
type AnswerBlock struct {
	content  string
	result   *pulse.Result
	theme    pulse.Theme
	styles   Styles
	expanded bool

	byWidth map[int]string
}

// NewAnswerBlock creates an AnswerBlock. res may be nil.
func NewAnswerBlock(content string, res *pulse.Result, theme pulse.Theme, styles Styles) *AnswerBlock {
	return &AnswerBlock{
		content: content,
		result:  res,
		theme:   theme,
		styles:  styles,
		byWidth: make(map[int]string),
	}
}

// Expanded reports whether chart specs are shown.
func (b *AnswerBlock) Expanded() bool { return b.expanded }

func (b *AnswerBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	if _, ok := msg.(ToggleMsg); ok {
		b.expanded = !b.expanded
	}
	return b, nil
}

func (b *AnswerBlock) View(width int) string {
	parts := []string{b.renderMarkdown(width)}
	if b.result == nil {
		return parts[0]
	}
	if len(b.result.Metrics) > 0 {
		parts = append(parts, b.metricsTable(b.result.Metrics))
	}
	if len(b.result.Charts) > 0 {
		parts = append(parts, b.chartList(b.result.Charts, width))
	}
	if b.result.Confidence > 0 {
		parts = append(parts, b.styles.Muted.Render(fmt.Sprintf("confidence %.0f%%", b.result.Confidence*100)))
	}
	return strings.Join(parts, "\n\n")
}

func (b *AnswerBlock) renderMarkdown(width int) string {
	if cached, ok := b.byWidth[width]; ok {
		return cached
	}
	rendered := goldmark.Render(b.content, width, b.theme)
	b.byWidth[width] = rendered
	return rendered
}

// metricsTable aligns values by the display width of the labels.
func (b *AnswerBlock) metricsTable(metrics []pulse.Metric) string {
	labelWidth := 0
	for _, m := range metrics {
		labelWidth = max(labelWidth, uniseg.StringWidth(m.Label))
	}
	lines := make([]string, 0, len(metrics))
	for _, m := range metrics {
		pad := strings.Repeat(" ", labelWidth-uniseg.StringWidth(m.Label))
		value := m.Value
		if m.Unit != "" {
			value += " " + m.Unit
		}
		lines = append(lines, b.styles.Muted.Render(m.Label)+pad+"  "+b.styles.Accent.Render(value))
	}
	return strings.Join(lines, "\n")
}

func (b *AnswerBlock) chartList(charts []pulse.Chart, width int) string {
	indicator := "▶"
	if b.expanded {
		indicator = "▼"
	}
	noun := "charts"
	if len(charts) == 1 {
		noun = "chart"
	}
	lines := []string{b.styles.Muted.Render(fmt.Sprintf("%s %d %s (Tab)", indicator, len(charts), noun))}
	wrap := lipgloss.NewStyle().Width(max(width-4, 10))
	for _, c := range charts {
		title := c.Title
		if title == "" {
			title = "untitled"
		}
		lines = append(lines, "  • "+title+" "+b.styles.Muted.Render("("+c.Type+")"))
		if b.expanded && len(c.Raw) > 0 {
			for _, l := range strings.Split(wrap.Render(string(c.Raw)), "\n") {
				lines = append(lines, "    "+b.styles.Muted.Render(l))
			}
		}
	}
	return strings.Join(lines, "\n")
}
