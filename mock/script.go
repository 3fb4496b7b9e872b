package mock

import (
	"context"
	"io"
	"sync"

	"github.com/fwojciec/pulse"
)

// Step is one scripted return value of Stream.Next.
type Step struct {
	Event pulse.Event
	Err   error
}

// Status is a shorthand for a Step yielding an EventStatus.
func Status(msg string) Step { return Step{Event: pulse.EventStatus{Message: msg}} }

// Result is a shorthand for a Step yielding an EventResult.
func Result(res pulse.Result) Step { return Step{Event: pulse.EventResult{Result: res}} }

// Fail is a shorthand for a Step yielding a transport error.
func Fail(err error) Step { return Step{Err: err} }

// Script returns a Stream that plays steps in order. A result step is
// followed by io.EOF, like a real stream. When the steps run out without a
// terminal step, Next blocks until ctx is done or the stream is closed, then
// returns pulse.ErrStreamClosed. Steps can be appended later with Push.
func Script(ctx context.Context, steps ...Step) *ScriptedStream {
	s := &ScriptedStream{
		ctx:    ctx,
		steps:  append([]Step(nil), steps...),
		more:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	s.Stream = Stream{NextFn: s.next, CloseFn: s.close}
	return s
}

// ScriptedStream is a Stream driven by a list of steps.
type ScriptedStream struct {
	Stream

	ctx  context.Context
	once sync.Once

	mu     sync.Mutex
	steps  []Step
	done   bool // terminal step returned
	more   chan struct{}
	closed chan struct{}
}

// Push appends steps and wakes a blocked Next.
func (s *ScriptedStream) Push(steps ...Step) {
	s.mu.Lock()
	s.steps = append(s.steps, steps...)
	s.mu.Unlock()
	select {
	case s.more <- struct{}{}:
	default:
	}
}

// Closed reports whether Close has been called.
func (s *ScriptedStream) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *ScriptedStream) next() (pulse.Event, error) {
	for {
		s.mu.Lock()
		if s.done {
			s.mu.Unlock()
			return nil, io.EOF
		}
		if len(s.steps) > 0 {
			step := s.steps[0]
			s.steps = s.steps[1:]
			if _, ok := step.Event.(pulse.EventResult); ok {
				s.done = true
			}
			s.mu.Unlock()
			return step.Event, step.Err
		}
		s.mu.Unlock()

		select {
		case <-s.more:
		case <-s.closed:
			return nil, pulse.ErrStreamClosed
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	}
}

func (s *ScriptedStream) close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
