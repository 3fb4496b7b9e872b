package pulse

import (
	"math"
	"time"
)

// Phase is the state of a connection's finite-state machine.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseReconnecting Phase = "reconnecting" // waiting out a backoff window
	PhaseFailed       Phase = "failed"       // retries exhausted
	PhaseDisconnected Phase = "disconnected" // closed by result or by the caller
)

// Terminal reports whether no further transitions can happen.
func (p Phase) Terminal() bool {
	return p == PhaseFailed || p == PhaseDisconnected
}

// Connectivity is an observable snapshot of one connection.
type Connectivity struct {
	Phase     Phase
	Attempt   int       // current attempt index, 0-based
	RetryAt   time.Time // end of the backoff window; zero unless reconnecting
	LastError string
	LastEvent Event
}

// SecondsUntilRetry returns the whole seconds left in the backoff window,
// rounded up. Zero when not reconnecting.
func (c Connectivity) SecondsUntilRetry(now time.Time) int {
	if c.Phase != PhaseReconnecting || c.RetryAt.IsZero() {
		return 0
	}
	left := c.RetryAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

// Outcome classifies how an attempt ended.
type Outcome string

const (
	OutcomePending          Outcome = "pending"
	OutcomeSuccess          Outcome = "success"
	OutcomeTransientFailure Outcome = "transient-failure"
	OutcomeTerminalFailure  Outcome = "terminal-failure"
)

// Attempt records a single physical connection try.
type Attempt struct {
	Index     int
	Delay     time.Duration // backoff waited before dialing
	StartedAt time.Time
	Outcome   Outcome
	Err       string
}
