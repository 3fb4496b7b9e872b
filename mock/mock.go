// Package mock provides test doubles for pulse interfaces using function fields.
package mock

import (
	"context"

	"github.com/fwojciec/pulse"
)

// Interface compliance checks.
var (
	_ pulse.Transport = (*Transport)(nil)
	_ pulse.Stream    = (*Stream)(nil)
)

// Transport is a test double for pulse.Transport.
// Set OpenFn before calling Open.
type Transport struct {
	OpenFn func(ctx context.Context, req pulse.Request) (pulse.Stream, error)
}

// Open delegates to OpenFn.
func (t *Transport) Open(ctx context.Context, req pulse.Request) (pulse.Stream, error) {
	return t.OpenFn(ctx, req)
}

// Stream is a test double for pulse.Stream.
// NextFn panics when nil to catch missing setup. CloseFn is nil-safe
// because callers commonly close streams they never read.
type Stream struct {
	NextFn  func() (pulse.Event, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (pulse.Event, error) {
	return s.NextFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}
