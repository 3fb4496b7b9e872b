package pulse

import "context"

// Stream uses a pull-based iterator pattern. Cancellation flows through the
// context passed to Transport.Open.
//
// Next returns, in order of precedence:
//   - a decoded Event and nil error;
//   - a *DecodeError when one event's payload is malformed. The stream is
//     still usable and the caller may keep calling Next;
//   - io.EOF after a terminal EventResult has been returned;
//   - any other error when the transport failed. The stream is finished.
//
// Close releases the underlying transport. It is safe to call more than once.
type Stream interface {
	Next() (Event, error)
	Close() error
}

// Transport opens server-push streams. Open blocks until the server has
// accepted the request (the "open" of the connection) or failed.
type Transport interface {
	Open(ctx context.Context, req Request) (Stream, error)
}
