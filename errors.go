package pulse

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates caller misuse, e.g. an empty query.
	ErrValidation = errors.New("validation error")

	// ErrNothingToRetry indicates RetryLast was called with no prior exchange.
	ErrNothingToRetry = errors.New("nothing to retry")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrExhausted indicates a connection gave up after MaxRetries attempts.
	ErrExhausted = errors.New("retries exhausted")

	// ErrUnexpectedEOF indicates the stream ended before a result arrived.
	ErrUnexpectedEOF = errors.New("stream ended before result")

	// ErrDecode is matched by every *DecodeError.
	ErrDecode = errors.New("decode error")
)

// DecodeError reports an event whose payload could not be parsed. It is
// recoverable: the stream that returned it can keep delivering events.
type DecodeError struct {
	Event string // SSE event name
	Data  string // raw payload
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s event: %v", e.Event, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *DecodeError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
