package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fwojciec/pulse"
	"github.com/fwojciec/pulse/mock"
	"github.com/fwojciec/pulse/session"
	"github.com/fwojciec/pulse/stream"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const endpoint = "http://localhost:8080/api/query"

var errRefused = errors.New("connection refused")

// scripts hands out one scripted stream per dial and records requests.
type scripts struct {
	mu      sync.Mutex
	reqs    []pulse.Request
	streams []*mock.ScriptedStream
	steps   func(n int) []mock.Step
	err     error
}

func (s *scripts) Transport() *mock.Transport {
	return &mock.Transport{
		OpenFn: func(ctx context.Context, req pulse.Request) (pulse.Stream, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.reqs = append(s.reqs, req)
			if s.err != nil {
				return nil, s.err
			}
			var steps []mock.Step
			if s.steps != nil {
				steps = s.steps(len(s.reqs) - 1)
			}
			st := mock.Script(ctx, steps...)
			s.streams = append(s.streams, st)
			return st, nil
		},
	}
}

func (s *scripts) Requests() []pulse.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pulse.Request(nil), s.reqs...)
}

func (s *scripts) Stream(i int) *mock.ScriptedStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.streams) {
		return nil
	}
	return s.streams[i]
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("x-%d", n.Add(1)) }
}

func open(tr pulse.Transport, opts ...session.Option) *session.Session {
	base := []session.Option{
		session.WithClock(clockwork.NewFakeClock()),
		session.WithIDFunc(sequentialIDs()),
	}
	return session.New(tr, endpoint, append(base, opts...)...)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}

var mobileResult = pulse.Result{
	Answer:     "Mobile conversions rose 12%",
	Charts:     []pulse.Chart{},
	Metrics:    []pulse.Metric{},
	Confidence: 0.9,
}

func TestSession_Send(t *testing.T) {
	t.Parallel()

	t.Run("folds status then result", func(t *testing.T) {
		t.Parallel()

		sc := &scripts{steps: func(int) []mock.Step {
			return []mock.Step{mock.Status("Thinking..."), mock.Result(mobileResult)}
		}}
		s := open(sc.Transport())

		require.NoError(t, s.Send("show mobile conversions"))
		assert.True(t, s.Busy())
		eventually(t, func() bool { return !s.Busy() })

		xs := s.Exchanges()
		require.Len(t, xs, 1)
		x := xs[0]
		assert.Equal(t, "x-1", x.ID)
		assert.Equal(t, "show mobile conversions", x.User.Content)
		assert.Equal(t, pulse.TurnComplete, x.Assistant.Status)
		assert.Equal(t, "Mobile conversions rose 12%", x.Assistant.Content)
		assert.Empty(t, x.Assistant.StatusLine)
		require.NotNil(t, x.Assistant.Result)
		assert.InDelta(t, 0.9, x.Assistant.Result.Confidence, 1e-9)

		reqs := sc.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, pulse.Request{Endpoint: endpoint, Query: "show mobile conversions", RequestID: "x-1"}, reqs[0])

		eventually(t, func() bool { return s.Connectivity().Phase == pulse.PhaseDisconnected })
	})

	t.Run("status updates the streaming line", func(t *testing.T) {
		t.Parallel()

		sc := &scripts{steps: func(int) []mock.Step {
			return []mock.Step{mock.Status("Querying warehouse")}
		}}
		s := open(sc.Transport())
		t.Cleanup(s.Close)

		require.NoError(t, s.Send("show mobile conversions"))
		eventually(t, func() bool {
			xs := s.Exchanges()
			return len(xs) == 1 && xs[0].Assistant.StatusLine == "Querying warehouse"
		})

		snap := s.Snapshot()
		assert.True(t, snap.Busy)
		assert.Equal(t, pulse.TurnStreaming, snap.Exchanges[0].Assistant.Status)
		assert.Equal(t, pulse.PhaseConnected, snap.Connectivity.Phase)
	})

	t.Run("rejects empty text without state change", func(t *testing.T) {
		t.Parallel()

		sc := &scripts{}
		var changes atomic.Int32
		s := open(sc.Transport(), session.WithOnChange(func() { changes.Add(1) }))

		for _, text := range []string{"", "   ", "\n\t"} {
			err := s.Send(text)
			assert.ErrorIs(t, err, pulse.ErrValidation)
		}
		assert.Empty(t, s.Exchanges())
		assert.False(t, s.Busy())
		assert.Empty(t, sc.Requests())
		assert.Zero(t, changes.Load())
		assert.Equal(t, pulse.PhaseIdle, s.Connectivity().Phase)
	})

	t.Run("new send supersedes a running exchange", func(t *testing.T) {
		t.Parallel()

		sc := &scripts{steps: func(n int) []mock.Step {
			if n == 0 {
				return []mock.Step{mock.Status("slow")}
			}
			return []mock.Step{mock.Result(pulse.Result{Answer: "second"})}
		}}
		s := open(sc.Transport())

		require.NoError(t, s.Send("first"))
		eventually(t, func() bool { return s.Exchanges()[0].Assistant.StatusLine == "slow" })

		require.NoError(t, s.Send("second"))
		eventually(t, func() bool { return !s.Busy() })

		first := sc.Stream(0)
		require.NotNil(t, first)
		first.Push(mock.Result(pulse.Result{Answer: "too late"}))

		assert.Never(t, func() bool {
			return s.Exchanges()[0].Assistant.Content == "too late"
		}, 50*time.Millisecond, 5*time.Millisecond)

		xs := s.Exchanges()
		require.Len(t, xs, 2)
		assert.Equal(t, pulse.TurnError, xs[0].Assistant.Status)
		assert.Equal(t, "Error: cancelled by a newer query", xs[0].Assistant.Content)
		assert.Equal(t, pulse.TurnComplete, xs[1].Assistant.Status)
		assert.Equal(t, "second", xs[1].Assistant.Content)
		assert.True(t, first.Closed())
	})

	t.Run("notifies on change", func(t *testing.T) {
		t.Parallel()

		sc := &scripts{steps: func(int) []mock.Step {
			return []mock.Step{mock.Status("Thinking..."), mock.Result(mobileResult)}
		}}
		var changes atomic.Int32
		s := open(sc.Transport(), session.WithOnChange(func() { changes.Add(1) }))

		require.NoError(t, s.Send("show mobile conversions"))
		eventually(t, func() bool { return !s.Busy() })
		// send, connecting, connected, status, result at the least
		eventually(t, func() bool { return changes.Load() >= 5 })
	})
}

func TestSession_Exhaustion(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	sc := &scripts{err: errRefused}
	cfg := stream.DefaultConfig()
	cfg.MaxRetries = 2
	s := open(sc.Transport(), session.WithClock(clock), session.WithConfig(cfg))

	require.NoError(t, s.Send("show mobile conversions"))
	eventually(t, func() bool { return s.Connectivity().Phase == pulse.PhaseReconnecting })
	assert.True(t, s.Busy())
	assert.Equal(t, 4, s.Connectivity().SecondsUntilRetry(clock.Now()))

	clock.Advance(4 * time.Second)
	eventually(t, func() bool { return !s.Busy() })

	xs := s.Exchanges()
	require.Len(t, xs, 1)
	assert.Equal(t, pulse.TurnError, xs[0].Assistant.Status)
	assert.Equal(t, "Error: retries exhausted after 2 attempts: connection refused", xs[0].Assistant.Content)
	assert.Equal(t, "show mobile conversions", xs[0].User.Content)
	assert.Equal(t, pulse.PhaseFailed, s.Connectivity().Phase)
	assert.Len(t, sc.Requests(), 2)
}

func TestSession_RetryLast(t *testing.T) {
	t.Parallel()

	t.Run("uses a new request id", func(t *testing.T) {
		t.Parallel()

		sc := &scripts{err: errRefused}
		cfg := stream.DefaultConfig()
		cfg.MaxRetries = 1
		s := open(sc.Transport(), session.WithConfig(cfg))

		require.NoError(t, s.Send("show mobile conversions"))
		eventually(t, func() bool { return !s.Busy() })

		require.NoError(t, s.RetryLast())
		eventually(t, func() bool { return len(sc.Requests()) == 2 && !s.Busy() })

		reqs := sc.Requests()
		assert.NotEqual(t, reqs[0].RequestID, reqs[1].RequestID)
		assert.Equal(t, reqs[0].Query, reqs[1].Query)
		assert.Zero(t, reqs[1].RetryAttempt)

		xs := s.Exchanges()
		require.Len(t, xs, 2)
		assert.Equal(t, "x-1", xs[0].ID)
		assert.Equal(t, "x-2", xs[1].ID)
		assert.Equal(t, pulse.TurnError, xs[0].Assistant.Status)
	})

	t.Run("default ids are distinct", func(t *testing.T) {
		t.Parallel()

		sc := &scripts{err: errRefused}
		cfg := stream.DefaultConfig()
		cfg.MaxRetries = 1
		s := session.New(sc.Transport(), endpoint, session.WithConfig(cfg))

		require.NoError(t, s.Send("q"))
		eventually(t, func() bool { return !s.Busy() })
		require.NoError(t, s.RetryLast())
		eventually(t, func() bool { return len(sc.Requests()) == 2 && !s.Busy() })

		reqs := sc.Requests()
		assert.NotEmpty(t, reqs[0].RequestID)
		assert.NotEqual(t, reqs[0].RequestID, reqs[1].RequestID)
	})

	t.Run("nothing to retry", func(t *testing.T) {
		t.Parallel()

		s := open(&mock.Transport{})
		assert.ErrorIs(t, s.RetryLast(), pulse.ErrNothingToRetry)
	})
}

func TestSession_Clear(t *testing.T) {
	t.Parallel()

	sc := &scripts{steps: func(int) []mock.Step {
		return []mock.Step{mock.Status("Thinking...")}
	}}
	s := open(sc.Transport())

	require.NoError(t, s.Send("show mobile conversions"))
	eventually(t, func() bool {
		xs := s.Exchanges()
		return len(xs) == 1 && xs[0].Assistant.StatusLine == "Thinking..."
	})
	require.Equal(t, pulse.PhaseConnected, s.Connectivity().Phase)

	s.Clear()
	assert.Empty(t, s.Exchanges())
	assert.False(t, s.Busy())
	assert.Equal(t, pulse.PhaseIdle, s.Connectivity().Phase)

	st := sc.Stream(0)
	st.Push(mock.Status("still going"), mock.Result(mobileResult))
	assert.Never(t, func() bool { return len(s.Exchanges()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	eventually(t, st.Closed)

	// The session is usable after clearing.
	sc.mu.Lock()
	sc.steps = func(int) []mock.Step { return []mock.Step{mock.Result(mobileResult)} }
	sc.mu.Unlock()
	require.NoError(t, s.Send("again"))
	eventually(t, func() bool { return !s.Busy() })
	require.Len(t, s.Exchanges(), 1)
	assert.Equal(t, pulse.TurnComplete, s.Exchanges()[0].Assistant.Status)
}

func TestSession_Close(t *testing.T) {
	t.Parallel()

	sc := &scripts{steps: func(int) []mock.Step {
		return []mock.Step{mock.Status("Thinking...")}
	}}
	s := open(sc.Transport())

	require.NoError(t, s.Send("show mobile conversions"))
	eventually(t, func() bool {
		xs := s.Exchanges()
		return len(xs) == 1 && xs[0].Assistant.StatusLine == "Thinking..."
	})

	s.Close()

	xs := s.Exchanges()
	require.Len(t, xs, 1)
	assert.Equal(t, pulse.TurnError, xs[0].Assistant.Status)
	assert.Equal(t, "Error: connection closed", xs[0].Assistant.Content)
	assert.False(t, s.Busy())
	eventually(t, sc.Stream(0).Closed)
}
