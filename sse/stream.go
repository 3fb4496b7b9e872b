package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fwojciec/pulse"
	pulsejson "github.com/fwojciec/pulse/json"
)

// maxEventSize caps a single SSE line. Results carrying chart specs can be
// much larger than bufio's 64KiB default.
const maxEventSize = 4 << 20

// stream implements [pulse.Stream] by parsing SSE events from an HTTP
// response body. Next must be called from one goroutine; Close may be called
// from any.
type stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	ctx     context.Context

	done   bool  // result returned
	err    error // terminal error, if any
	closed atomic.Bool
	once   sync.Once
}

// Interface compliance check.
var _ pulse.Stream = (*stream)(nil)

func newStream(ctx context.Context, body io.ReadCloser) *stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	return &stream{body: body, scanner: sc, ctx: ctx}
}

// Next reads the next semantic event. Returns io.EOF after the result.
func (s *stream) Next() (pulse.Event, error) {
	switch {
	case s.done:
		return nil, io.EOF
	case s.err != nil:
		return nil, s.err
	case s.closed.Load():
		return nil, pulse.ErrStreamClosed
	}

	name, data, err := s.readSSEEvent()
	if err != nil {
		s.err = s.terminal(err)
		return nil, s.err
	}

	if name == pulsejson.EventError {
		s.err = &ServerError{Message: pulsejson.DecodeErrorMessage([]byte(data))}
		return nil, s.err
	}
	if name == "" {
		// Unnamed events default to "message" and carry nothing we use.
		name = "message"
	}

	evt, err := pulsejson.DecodeEvent(name, []byte(data))
	if err != nil {
		// Malformed payload: report it but keep the stream usable.
		return nil, err
	}
	if _, ok := evt.(pulse.EventResult); ok {
		s.done = true
	}
	return evt, nil
}

// Close closes the underlying HTTP response body. Safe to call repeatedly.
func (s *stream) Close() error {
	s.closed.Store(true)
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}

func (s *stream) terminal(err error) error {
	switch {
	case s.closed.Load():
		return pulse.ErrStreamClosed
	case s.ctx.Err() != nil:
		return fmt.Errorf("sse: %w", s.ctx.Err())
	case errors.Is(err, io.EOF):
		return fmt.Errorf("sse: %w", pulse.ErrUnexpectedEOF)
	default:
		return fmt.Errorf("sse: %w", err)
	}
}

// readSSEEvent reads lines until a complete SSE event is assembled.
// Returns the event name and the data payload.
func (s *stream) readSSEEvent() (string, string, error) {
	var eventType string
	var dataBuf strings.Builder
	var hasData bool

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			// Empty line signals end of event.
			if hasData {
				return eventType, dataBuf.String(), nil
			}
			eventType = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // comment, often a keep-alive
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
		case "data":
			if hasData {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(value)
			hasData = true
		}
		// id and retry are not used: reconnection is driven by the client.
	}

	if err := s.scanner.Err(); err != nil {
		return "", "", err
	}
	// An event without its terminating blank line is discarded.
	return "", "", io.EOF
}
