// Package stream keeps one logical server-push subscription alive across
// transport failures, retrying with capped exponential backoff.
//
// A Connection runs a single goroutine that owns the retry timer, the live
// transport, and the attempt counters. Transport readers and timers only post
// messages to it, so every state transition and every callback happens on
// that goroutine, in order.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fwojciec/pulse"
	"github.com/jonboulle/clockwork"
)

type msgKind int

const (
	msgOpened msgKind = iota
	msgEvent
	msgDecodeError
	msgFailed
	msgTimer
	msgReconnect
)

type message struct {
	kind   msgKind
	gen    uint64
	event  pulse.Event
	err    error
	stream pulse.Stream
}

// Connection is a handle to one logical subscription. All methods are safe
// for concurrent use and none of them block.
type Connection struct {
	transport pulse.Transport
	req       pulse.Request
	cfg       Config
	backoff   pulse.Backoff
	log       *slog.Logger

	closing  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	inboxMu sync.Mutex
	inbox   []message
	wake    chan struct{}

	mu       sync.Mutex // guards snap and attempts
	snap     pulse.Connectivity
	attempts []pulse.Attempt

	// Owned by the run goroutine.
	gen     uint64
	retry   int // effective attempt counter, drives backoff and exhaustion
	healthy bool
	delay   time.Duration // backoff scheduled for the next dial
	timer   clockwork.Timer
	cancel  context.CancelFunc
	stream  pulse.Stream
}

// Open starts a connection for req and dials attempt 0 without delay (or as
// soon as cfg.WaitFor is closed). It returns immediately.
//
// With cfg.MaxRetries of zero, or an invalid request, the returned
// connection is already failed and no attempt is made.
func Open(t pulse.Transport, req pulse.Request, cfg Config) *Connection {
	cfg = cfg.withDefaults()
	c := &Connection{
		transport: t,
		req:       req,
		cfg:       cfg,
		backoff:   pulse.Backoff{Initial: cfg.InitialBackoff, Max: cfg.MaxBackoff},
		log:       cfg.Logger.With("request_id", req.RequestID),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		wake:      make(chan struct{}, 1),
		snap:      pulse.Connectivity{Phase: pulse.PhaseIdle},
	}
	var reason string
	if cfg.MaxRetries <= 0 {
		reason = "no connection attempted: max retries is 0"
	} else if err := req.Validate(); err != nil {
		reason = err.Error()
	}
	if reason != "" {
		c.snap = pulse.Connectivity{Phase: pulse.PhaseFailed, LastError: reason}
		go c.failFast()
		return c
	}
	go c.run()
	return c
}

// Close cancels any pending retry, tears down the transport and emits a
// final disconnected status. No event is delivered once the loop observes
// Close. A callback that was already running when Close was called from
// another goroutine may still finish; wait on Done for a hard barrier, or
// guard the callback the way session.Session does with its bound exchange.
// Calling Close again, or on a failed connection, has no effect.
func (c *Connection) Close() {
	c.closing.Store(true)
	c.stopOnce.Do(func() { close(c.stop) })
}

// ReconnectNow skips the remaining backoff wait and dials immediately. The
// attempt still counts against MaxRetries. It does nothing unless the
// connection is reconnecting.
func (c *Connection) ReconnectNow() {
	if c.closing.Load() {
		return
	}
	c.post(message{kind: msgReconnect})
}

// Done is closed once the connection has reached a terminal phase and all
// of its callbacks have returned.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Connectivity returns the latest snapshot.
func (c *Connection) Connectivity() pulse.Connectivity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Attempts returns every physical attempt made so far, oldest first.
func (c *Connection) Attempts() []pulse.Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pulse.Attempt(nil), c.attempts...)
}

func (c *Connection) failFast() {
	defer close(c.done)
	c.log.Warn("connection not started", "reason", c.Connectivity().LastError)
	c.notify(false)
}

func (c *Connection) run() {
	defer close(c.done)

	if c.cfg.WaitFor != nil {
		select {
		case <-c.cfg.WaitFor:
		case <-c.stop:
			c.shutdown()
			return
		}
	}
	c.dial()

	for {
		select {
		case <-c.stop:
			c.shutdown()
			return
		case <-c.wake:
			for _, m := range c.drain() {
				if c.closing.Load() {
					break
				}
				if !c.handle(m) {
					return
				}
			}
		}
	}
}

// handle applies one message. It returns false once the connection failed.
func (c *Connection) handle(m message) bool {
	if m.kind != msgReconnect && m.gen != c.gen {
		return true
	}
	switch m.kind {
	case msgOpened:
		c.stream = m.stream
		c.finishAttempt(pulse.OutcomeSuccess, "")
		if c.cfg.Reset == ResetOnOpen {
			c.retry = 0
		}
		c.update(func(s *pulse.Connectivity) {
			s.Phase = pulse.PhaseConnected
			s.Attempt = c.retry
			s.RetryAt = time.Time{}
		})
		c.log.Debug("connected")
		c.notify(false)

	case msgEvent:
		if !c.healthy {
			c.healthy = true
			if c.cfg.Reset == ResetOnFirstEvent {
				c.retry = 0
			}
		}
		if u, ok := m.event.(pulse.EventUnknown); ok {
			c.log.Debug("ignoring unknown event", "event", u.Name)
			return true
		}
		c.update(func(s *pulse.Connectivity) { s.LastEvent = m.event })
		if c.cfg.OnEvent != nil && !c.closing.Load() {
			c.cfg.OnEvent(m.event)
		}
		if _, ok := m.event.(pulse.EventResult); ok {
			c.log.Debug("result received, closing")
			c.Close()
		}

	case msgDecodeError:
		c.log.Warn("dropping malformed event", "error", m.err)

	case msgFailed:
		return c.fail(m.err)

	case msgTimer:
		c.timer = nil
		c.dial()

	case msgReconnect:
		if c.timer == nil {
			return true
		}
		c.timer.Stop()
		c.timer = nil
		c.log.Debug("reconnecting now", "attempt", c.retry)
		c.dial()
	}
	return true
}

func (c *Connection) dial() {
	c.gen++
	gen := c.gen
	c.healthy = false
	c.stream = nil
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	now := c.cfg.Clock.Now()
	c.mu.Lock()
	req := c.req
	req.RetryAttempt = len(c.attempts)
	c.attempts = append(c.attempts, pulse.Attempt{
		Index:     len(c.attempts),
		Delay:     c.delay,
		StartedAt: now,
		Outcome:   pulse.OutcomePending,
	})
	c.snap.Phase = pulse.PhaseConnecting
	c.snap.Attempt = c.retry
	c.snap.RetryAt = time.Time{}
	c.mu.Unlock()

	c.log.Debug("dialing", "attempt", req.RetryAttempt, "delay", c.delay)
	c.notify(false)
	go c.read(ctx, gen, req)
}

// read runs one attempt: open the transport, then pump events into the
// mailbox until the stream ends.
func (c *Connection) read(ctx context.Context, gen uint64, req pulse.Request) {
	s, err := c.transport.Open(ctx, req)
	if err != nil {
		c.post(message{kind: msgFailed, gen: gen, err: err})
		return
	}
	defer s.Close()
	c.post(message{kind: msgOpened, gen: gen, stream: s})

	for {
		evt, err := s.Next()
		var de *pulse.DecodeError
		switch {
		case errors.As(err, &de):
			c.post(message{kind: msgDecodeError, gen: gen, err: err})
			continue
		case errors.Is(err, io.EOF):
			c.post(message{kind: msgFailed, gen: gen, err: pulse.ErrUnexpectedEOF})
			return
		case err != nil:
			c.post(message{kind: msgFailed, gen: gen, err: err})
			return
		}
		c.post(message{kind: msgEvent, gen: gen, event: evt})
		if _, ok := evt.(pulse.EventResult); ok {
			return
		}
	}
}

func (c *Connection) fail(err error) bool {
	c.releaseTransport()
	c.finishAttempt(pulse.OutcomeTransientFailure, err.Error())

	next := c.retry + 1
	if next >= c.cfg.MaxRetries {
		c.gen++
		n := len(c.Attempts())
		msg := fmt.Sprintf("%v after %d attempts: %v", pulse.ErrExhausted, n, err)
		c.mu.Lock()
		c.attempts[n-1].Outcome = pulse.OutcomeTerminalFailure
		c.snap.Phase = pulse.PhaseFailed
		c.snap.Attempt = c.retry
		c.snap.RetryAt = time.Time{}
		c.snap.LastError = msg
		c.mu.Unlock()
		c.log.Warn("connection failed", "attempts", n, "error", err)
		c.notify(false)
		return false
	}

	c.retry = next
	c.delay = c.backoff.Delay(next)
	gen := c.gen
	c.timer = c.cfg.Clock.AfterFunc(c.delay, func() {
		c.post(message{kind: msgTimer, gen: gen})
	})
	retryAt := c.cfg.Clock.Now().Add(c.delay)
	c.update(func(s *pulse.Connectivity) {
		s.Phase = pulse.PhaseReconnecting
		s.Attempt = next
		s.RetryAt = retryAt
		s.LastError = err.Error()
	})
	c.log.Info("connection lost, retrying", "attempt", next, "delay", c.delay, "error", err)
	c.notify(false)
	return true
}

// shutdown runs once on the loop goroutine after Close. The retry timer is
// stopped before the transport is released.
func (c *Connection) shutdown() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.releaseTransport()
	c.update(func(s *pulse.Connectivity) {
		s.Phase = pulse.PhaseDisconnected
		s.RetryAt = time.Time{}
	})
	c.log.Debug("disconnected")
	c.notify(true)
}

func (c *Connection) releaseTransport() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
}

func (c *Connection) finishAttempt(o pulse.Outcome, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.attempts)
	if n == 0 {
		return
	}
	// An attempt that opened and later dropped is recorded as a failure.
	if last := c.attempts[n-1].Outcome; last == pulse.OutcomePending || o != pulse.OutcomeSuccess {
		c.attempts[n-1].Outcome = o
		c.attempts[n-1].Err = errMsg
	}
}

func (c *Connection) update(fn func(*pulse.Connectivity)) {
	c.mu.Lock()
	fn(&c.snap)
	c.mu.Unlock()
}

// notify reports the current snapshot. Only the final disconnected status
// is reported once Close has been called.
func (c *Connection) notify(final bool) {
	if c.cfg.OnStatusChange == nil {
		return
	}
	if !final && c.closing.Load() {
		return
	}
	c.cfg.OnStatusChange(c.Connectivity())
}

func (c *Connection) post(m message) {
	c.inboxMu.Lock()
	c.inbox = append(c.inbox, m)
	c.inboxMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Connection) drain() []message {
	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()
	msgs := c.inbox
	c.inbox = nil
	return msgs
}
