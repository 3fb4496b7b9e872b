package bubbletea

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/pulse"
	"github.com/jonboulle/clockwork"
)

var _ tea.Model = Model{}

// tickInterval drives the reconnect countdown. Session changes arrive
// through the change channel; the tick only keeps the seconds fresh.
const tickInterval = 500 * time.Millisecond

// Model is the Bubble Tea model for the pulse TUI.
type Model struct {
	// Input is the query input. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable conversation area. Exported for test access.
	Viewport viewport.Model
	// Spinner animates pending answers.
	Spinner spinner.Model

	session Session
	changes <-chan struct{}
	clock   clockwork.Clock
	theme   pulse.Theme
	styles  Styles

	exchanges []pulse.Exchange
	conn      pulse.Connectivity
	busy      bool

	// answers keeps rendered answers across redraws, keyed by exchange id.
	answers    map[string]*AnswerBlock
	blocks     []MessageBlock
	blockFocus int // index of the focused answer with charts (-1 = none)

	err   error
	ready bool
}

// Option configures a Model.
type Option func(*Model)

// WithClock sets the clock used for the reconnect countdown.
func WithClock(c clockwork.Clock) Option {
	return func(m *Model) { m.clock = c }
}

// New creates a TUI Model over a session. changes should receive a value
// whenever the session's state changes; see Notifier.
func New(session Session, changes <-chan struct{}, theme pulse.Theme, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about your data..."
	ti.Prompt = "› "
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := Model{
		Input:      ti,
		Spinner:    sp,
		session:    session,
		changes:    changes,
		clock:      clockwork.NewRealClock(),
		theme:      theme,
		styles:     NewStyles(theme),
		answers:    make(map[string]*AnswerBlock),
		blockFocus: -1,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m.sync()
}

// Busy returns whether an answer is in flight.
func (m Model) Busy() bool { return m.busy }

// Err returns the last error, if any.
func (m Model) Err() error { return m.err }

// Connectivity returns the last observed connection snapshot.
func (m Model) Connectivity() pulse.Connectivity { return m.conn }

type tickMsg struct{}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.Spinner.Tick, listenForChange(m.changes), tick())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.handleWindowSize(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ChangedMsg:
		m = m.sync()
		m = m.redraw(true)
		return m, listenForChange(m.changes)

	case tickMsg:
		m = m.sync()
		m = m.redraw(false)
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		if m.busy {
			m = m.rebuild()
			m = m.redraw(false)
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder

	b.WriteString(m.Viewport.View())
	b.WriteString("\n")

	b.WriteString(m.statusLine())
	b.WriteString("\n")

	b.WriteString(m.Input.View())

	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputH := 1
	statusHeight := 1
	borderHeight := 2
	vpHeight := msg.Height - inputH - statusHeight - borderHeight

	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}
	m.Input.Width = msg.Width
	return m.redraw(true)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEnter:
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		if err := m.session.Send(text); err != nil {
			m.err = err
			return m, nil
		}
		m.Input.SetValue("")
		m.err = nil
		m = m.sync()
		return m.redraw(true), nil

	case tea.KeyCtrlR:
		m.err = nil
		if m.conn.Phase == pulse.PhaseReconnecting {
			m.session.ReconnectNow()
		} else if err := m.session.RetryLast(); err != nil {
			m.err = err
		}
		m = m.sync()
		return m.redraw(true), nil

	case tea.KeyCtrlL:
		m.session.Clear()
		m.err = nil
		m = m.sync()
		return m.redraw(true), nil

	case tea.KeyTab:
		if m.blockFocus >= 0 {
			block, cmd := m.blocks[m.blockFocus].Update(ToggleMsg{})
			m.blocks[m.blockFocus] = block
			return m.redraw(false), cmd
		}
		return m, nil

	case tea.KeyShiftTab:
		m = m.cycleFocusPrev()
		return m, nil
	}

	// Only forward non-character keys to the viewport so that typing 'j'
	// or 'k' does not scroll.
	var cmd tea.Cmd
	var cmds []tea.Cmd

	if msg.Type != tea.KeyRunes {
		m.Viewport, cmd = m.Viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// sync pulls the session state and rebuilds the blocks.
func (m Model) sync() Model {
	m.exchanges = m.session.Exchanges()
	m.busy = m.session.Busy()
	m.conn = m.session.Connectivity()
	return m.rebuild()
}

// rebuild derives blocks from the exchanges. Answer blocks are reused so
// their render cache and expanded state survive redraws.
func (m Model) rebuild() Model {
	seen := make(map[string]bool, len(m.exchanges))
	blocks := make([]MessageBlock, 0, 2*len(m.exchanges))
	focus := -1
	for _, x := range m.exchanges {
		seen[x.ID] = true
		blocks = append(blocks, NewUserMessageBlock(x.User.Content, x.User.Timestamp, m.styles))
		switch x.Assistant.Status {
		case pulse.TurnComplete:
			ab, ok := m.answers[x.ID]
			if !ok {
				ab = NewAnswerBlock(x.Assistant.Content, x.Assistant.Result, m.theme, m.styles)
				m.answers[x.ID] = ab
			}
			blocks = append(blocks, ab)
			if x.Assistant.Result != nil && len(x.Assistant.Result.Charts) > 0 {
				focus = len(blocks) - 1
			}
		case pulse.TurnError:
			blocks = append(blocks, NewErrorBlock(x.Assistant.Content, m.styles))
		default:
			blocks = append(blocks, NewStatusBlock(x.Assistant.StatusLine, m.Spinner.View(), m.styles))
		}
	}
	for id := range m.answers {
		if !seen[id] {
			delete(m.answers, id)
		}
	}
	// Keep a focus the user picked with Shift+Tab while it still points at
	// an answer with charts.
	if m.blockFocus < 0 || m.blockFocus >= len(blocks) || !hasCharts(blocks[m.blockFocus]) || len(blocks) != len(m.blocks) {
		m.blockFocus = focus
	}
	m.blocks = blocks
	return m
}

func (m Model) redraw(bottom bool) Model {
	if !m.ready {
		return m
	}
	m.Viewport.SetContent(m.renderContent())
	if bottom {
		m.Viewport.GotoBottom()
	}
	return m
}

func (m Model) renderContent() string {
	if len(m.blocks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, block := range m.blocks {
		if i > 0 {
			b.WriteString(blockSeparator(m.blocks[i-1], block))
		}
		b.WriteString(block.View(m.Viewport.Width))
	}
	return b.String()
}

// cycleFocusPrev moves blockFocus to the previous answer with charts,
// wrapping around.
func (m Model) cycleFocusPrev() Model {
	if len(m.blocks) == 0 {
		return m
	}
	start := m.blockFocus - 1
	if start < 0 {
		start = len(m.blocks) - 1
	}
	for i := range len(m.blocks) {
		idx := (start - i + len(m.blocks)) % len(m.blocks)
		if hasCharts(m.blocks[idx]) {
			m.blockFocus = idx
			return m
		}
	}
	m.blockFocus = -1
	return m
}

func hasCharts(b MessageBlock) bool {
	ab, ok := b.(*AnswerBlock)
	return ok && ab.result != nil && len(ab.result.Charts) > 0
}

func (m Model) statusLine() string {
	width := m.Viewport.Width
	if m.err != nil {
		return m.styles.Error.Render(truncate(fmt.Sprintf("Error: %v", m.err), width))
	}
	text, style := statusText(m.conn, m.clock.Now(), m.styles)
	if m.conn.Phase == pulse.PhaseFailed {
		text += " · Ctrl+R to retry"
	}
	return style.Render(truncate(text, width))
}
