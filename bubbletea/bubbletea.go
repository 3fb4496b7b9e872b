// Package bubbletea provides a Bubble Tea TUI for asking streaming
// analytics questions.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/pulse"
)

// Session is the part of session.Session the TUI drives.
type Session interface {
	Send(text string) error
	RetryLast() error
	ReconnectNow()
	Clear()
	Exchanges() []pulse.Exchange
	Busy() bool
	Connectivity() pulse.Connectivity
}

// Run creates and runs the Bubble Tea TUI program. It blocks until the program
// exits. The context is used for graceful shutdown: when cancelled, the
// program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// ChangedMsg tells the model that session state changed and must be redrawn.
type ChangedMsg struct{}

// Notifier coalesces session change notifications into a channel the model
// listens on. Notify never blocks, so it is safe as a session callback.
type Notifier struct {
	ch chan struct{}
}

// NewNotifier creates a Notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Notify records that something changed.
func (n *Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// C returns the channel that receives change signals.
func (n *Notifier) C() <-chan struct{} { return n.ch }

// listenForChange waits for the next change signal.
func listenForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return ChangedMsg{}
	}
}
