// Package session turns user queries into exchanges and keeps each one bound
// to a resilient stream connection until it completes or fails.
//
// A Session supports one in-flight query at a time. Sending a new query
// retires the previous connection before the new one dials.
package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fwojciec/pulse"
	"github.com/fwojciec/pulse/stream"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Errors shown on an exchange that was still running when its connection
// was retired.
const (
	supersededMessage = "cancelled by a newer query"
	closedMessage     = "connection closed"
)

// Session holds the ordered list of exchanges and the live connection.
// All methods are safe for concurrent use and return without waiting on
// the network.
type Session struct {
	transport pulse.Transport
	endpoint  string
	cfg       stream.Config
	newID     func() string
	onChange  func()
	clock     clockwork.Clock
	log       *slog.Logger

	mu        sync.Mutex
	exchanges []pulse.Exchange
	busy      bool
	boundID   string             // exchange the live connection reports for
	conn      *stream.Connection // nil before the first send and after Clear
	retired   <-chan struct{}    // Done of the last connection we closed
}

// Option configures a [Session].
type Option func(*Session)

// WithConfig sets the retry policy for every connection. Callback fields
// are ignored: the session installs its own.
func WithConfig(cfg stream.Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithIDFunc sets the generator for exchange IDs (and request_id tokens).
func WithIDFunc(fn func() string) Option {
	return func(s *Session) { s.newID = fn }
}

// WithOnChange registers a function called after every state change. It
// runs without the session lock held and may call back into the session.
func WithOnChange(fn func()) Option {
	return func(s *Session) { s.onChange = fn }
}

// WithClock sets the clock used for timestamps and backoff timers.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// New creates a session that streams answers from endpoint through t.
func New(t pulse.Transport, endpoint string, opts ...Option) *Session {
	s := &Session{
		transport: t,
		endpoint:  endpoint,
		cfg:       stream.DefaultConfig(),
		newID:     uuid.NewString,
		onChange:  func() {},
		clock:     clockwork.NewRealClock(),
		log:       slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Send starts a new exchange for text. Empty text is rejected with
// pulse.ErrValidation and leaves the session unchanged.
func (s *Session) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("query must not be empty: %w", pulse.ErrValidation)
	}

	s.mu.Lock()
	id := s.newID()
	s.retireLocked(supersededMessage)
	s.exchanges = append(s.exchanges, pulse.NewExchange(id, text, s.clock.Now()))
	s.busy = true
	s.boundID = id

	cfg := s.cfg
	cfg.Clock = s.clock
	cfg.Logger = s.log
	cfg.WaitFor = s.retired
	cfg.OnEvent = func(e pulse.Event) { s.handleEvent(id, e) }
	cfg.OnStatusChange = func(c pulse.Connectivity) { s.handleStatus(id, c) }
	s.conn = stream.Open(s.transport, pulse.Request{
		Endpoint:  s.endpoint,
		Query:     text,
		RequestID: id,
	}, cfg)
	s.mu.Unlock()

	s.log.Info("query sent", "request_id", id)
	s.onChange()
	return nil
}

// RetryLast re-sends the most recent query as a new exchange with a new
// request_id. Returns pulse.ErrNothingToRetry when there is no exchange.
func (s *Session) RetryLast() error {
	s.mu.Lock()
	if len(s.exchanges) == 0 {
		s.mu.Unlock()
		return pulse.ErrNothingToRetry
	}
	text := s.exchanges[len(s.exchanges)-1].User.Content
	s.mu.Unlock()
	return s.Send(text)
}

// ReconnectNow skips the backoff wait of the live connection, if any.
func (s *Session) ReconnectNow() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.ReconnectNow()
	}
}

// Clear closes the live connection and forgets every exchange.
func (s *Session) Clear() {
	s.mu.Lock()
	s.retireLocked(closedMessage)
	s.exchanges = nil
	s.busy = false
	s.boundID = ""
	s.mu.Unlock()

	s.log.Debug("session cleared")
	s.onChange()
}

// Close closes the live connection and keeps the exchanges.
func (s *Session) Close() {
	s.mu.Lock()
	s.retireLocked(closedMessage)
	s.busy = false
	s.boundID = ""
	s.mu.Unlock()
	s.onChange()
}

// retireLocked closes the live connection. A still-running exchange is
// marked as failed with msg so it does not spin forever.
func (s *Session) retireLocked(msg string) {
	if s.conn == nil {
		return
	}
	s.conn.Close()
	s.retired = s.conn.Done()
	s.conn = nil
	if i := s.indexLocked(s.boundID); i >= 0 {
		s.exchanges[i] = pulse.Fail(s.exchanges[i], msg)
	}
}

func (s *Session) handleEvent(id string, e pulse.Event) {
	s.mu.Lock()
	if id != s.boundID {
		s.mu.Unlock()
		s.log.Debug("discarding event for stale exchange", "request_id", id)
		return
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.exchanges[i] = pulse.Fold(s.exchanges[i], e)
	if _, ok := e.(pulse.EventResult); ok {
		s.busy = false
		s.conn.Close()
	}
	s.mu.Unlock()
	s.onChange()
}

func (s *Session) handleStatus(id string, c pulse.Connectivity) {
	s.mu.Lock()
	if id != s.boundID {
		s.mu.Unlock()
		return
	}
	if c.Phase == pulse.PhaseFailed {
		if i := s.indexLocked(id); i >= 0 {
			s.exchanges[i] = pulse.Fail(s.exchanges[i], c.LastError)
		}
		s.busy = false
		s.log.Warn("query failed", "request_id", id, "error", c.LastError)
	}
	s.mu.Unlock()
	s.onChange()
}

// indexLocked finds an exchange by ID, searching from the newest.
func (s *Session) indexLocked(id string) int {
	for i := len(s.exchanges) - 1; i >= 0; i-- {
		if s.exchanges[i].ID == id {
			return i
		}
	}
	return -1
}

// Exchanges returns a copy of all exchanges, oldest first.
func (s *Session) Exchanges() []pulse.Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pulse.Exchange(nil), s.exchanges...)
}

// Busy reports whether an exchange is waiting for its result.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Connectivity returns the live connection's snapshot, or an idle one.
func (s *Session) Connectivity() pulse.Connectivity {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return pulse.Connectivity{Phase: pulse.PhaseIdle}
	}
	return conn.Connectivity()
}

// Snapshot is a consistent view of the session for rendering.
type Snapshot struct {
	Exchanges    []pulse.Exchange
	Busy         bool
	Connectivity pulse.Connectivity
}

// Snapshot returns exchanges, busy flag and connectivity read together.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Exchanges:    append([]pulse.Exchange(nil), s.exchanges...),
		Busy:         s.busy,
		Connectivity: pulse.Connectivity{Phase: pulse.PhaseIdle},
	}
	if s.conn != nil {
		snap.Connectivity = s.conn.Connectivity()
	}
	return snap
}
