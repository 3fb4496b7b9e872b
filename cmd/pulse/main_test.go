package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fwojciec/pulse"
	bt "github.com/fwojciec/pulse/bubbletea"
	"github.com/fwojciec/pulse/mock"
	"github.com/fwojciec/pulse/session"
	"github.com/fwojciec/pulse/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsk(t *testing.T) {
	t.Parallel()

	t.Run("prints the answer and metrics", func(t *testing.T) {
		t.Parallel()
		tr := &mock.Transport{
			OpenFn: func(ctx context.Context, req pulse.Request) (pulse.Stream, error) {
				return mock.Script(ctx,
					mock.Status("Querying warehouse"),
					mock.Result(pulse.Result{
						Answer:  "Revenue grew 8%.",
						Metrics: []pulse.Metric{{Label: "Revenue", Value: "1.2", Unit: "M$"}},
						Charts:  []pulse.Chart{{Type: "line", Title: "Revenue by week"}},
					}),
				), nil
			},
		}
		n := bt.NewNotifier()
		sess := session.New(tr, "http://localhost/query", session.WithOnChange(n.Notify))
		t.Cleanup(sess.Close)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var out bytes.Buffer
		require.NoError(t, ask(ctx, sess, n.C(), "revenue trend", &out))

		assert.Contains(t, out.String(), "Revenue grew 8%.")
		assert.Contains(t, out.String(), "Revenue: 1.2 M$")
		assert.Contains(t, out.String(), "chart: Revenue by week (line)")
	})

	t.Run("returns the failure message", func(t *testing.T) {
		t.Parallel()
		tr := &mock.Transport{
			OpenFn: func(ctx context.Context, req pulse.Request) (pulse.Stream, error) {
				return nil, errors.New("connection refused")
			},
		}
		n := bt.NewNotifier()
		cfg := stream.DefaultConfig()
		cfg.MaxRetries = 1
		sess := session.New(tr, "http://localhost/query",
			session.WithOnChange(n.Notify),
			session.WithConfig(cfg),
		)
		t.Cleanup(sess.Close)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := ask(ctx, sess, n.C(), "revenue trend", &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.NotContains(t, err.Error(), "Error: ")
	})

	t.Run("rejects an empty question", func(t *testing.T) {
		t.Parallel()
		sess := session.New(&mock.Transport{}, "http://localhost/query")
		t.Cleanup(sess.Close)
		err := ask(context.Background(), sess, nil, "   ", &bytes.Buffer{})
		assert.ErrorIs(t, err, pulse.ErrValidation)
	})

	t.Run("gives up when the context ends", func(t *testing.T) {
		t.Parallel()
		tr := &mock.Transport{
			OpenFn: func(ctx context.Context, req pulse.Request) (pulse.Stream, error) {
				return mock.Script(ctx), nil
			},
		}
		sess := session.New(tr, "http://localhost/query")
		t.Cleanup(sess.Close)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := ask(ctx, sess, nil, "q", &bytes.Buffer{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.LogFile = t.TempDir() + "/pulse.log"
	logger, closeLog, err := newLogger(cfg)
	require.NoError(t, err)
	logger.Info("hello")
	closeLog()
}
