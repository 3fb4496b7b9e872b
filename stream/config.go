package stream

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fwojciec/pulse"
	"github.com/jonboulle/clockwork"
)

// ResetPolicy decides when a connection that recovered forgets its earlier
// failures, so a later drop starts again from the shortest backoff.
type ResetPolicy int

const (
	// ResetOnFirstEvent resets the retry counter once an attempt has opened
	// and delivered at least one decoded event. A server that accepts the
	// request and then drops it immediately still exhausts MaxRetries.
	ResetOnFirstEvent ResetPolicy = iota

	// ResetOnOpen resets the retry counter as soon as the transport opens.
	// An endpoint that keeps opening and failing retries indefinitely.
	ResetOnOpen

	// ResetNever keeps counting failures for the whole logical request.
	ResetNever
)

var resetPolicyNames = map[ResetPolicy]string{
	ResetOnFirstEvent: "first-event",
	ResetOnOpen:       "open",
	ResetNever:        "never",
}

func (p ResetPolicy) String() string {
	if name, ok := resetPolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("ResetPolicy(%d)", int(p))
}

// ParseResetPolicy parses "first-event", "open" or "never". The empty string
// is the default policy.
func ParseResetPolicy(s string) (ResetPolicy, error) {
	if s == "" {
		return ResetOnFirstEvent, nil
	}
	for p, name := range resetPolicyNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown reset policy %q: %w", s, pulse.ErrValidation)
}

// Config configures a Connection.
type Config struct {
	// MaxRetries is the total number of attempts, including the first.
	// Zero makes Open return an already-failed connection.
	MaxRetries int

	// InitialBackoff and MaxBackoff shape the retry schedule:
	// delay(k) = min(InitialBackoff * 2^k, MaxBackoff). Zero uses the default.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Reset ResetPolicy

	// OnEvent receives status and result events in stream order. It is never
	// called after Done is closed.
	OnEvent func(pulse.Event)

	// OnStatusChange receives a snapshot after every phase transition.
	OnStatusChange func(pulse.Connectivity)

	// WaitFor, when set, holds the first attempt until the channel is
	// closed. Used to let a predecessor connection finish tearing down.
	WaitFor <-chan struct{}

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// DefaultConfig returns the standard retry policy: 5 attempts, backoff from
// 2s doubling up to 16s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     pulse.DefaultMaxRetries,
		InitialBackoff: pulse.DefaultInitialBackoff,
		MaxBackoff:     pulse.DefaultMaxBackoff,
	}
}

func (c Config) withDefaults() Config {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = pulse.DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = pulse.DefaultMaxBackoff
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}
