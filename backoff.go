package pulse

import "time"

// Default backoff parameters.
const (
	DefaultMaxRetries     = 5
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxBackoff     = 16 * time.Second
)

// Backoff computes capped exponential retry delays.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns min(Initial * 2^attempt, Max). Attempt 0 is the first
// connection and is never delayed.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := b.Initial
	for i := 0; i < attempt; i++ {
		if d >= b.Max || d > b.Max/2 {
			return b.Max
		}
		d *= 2
	}
	return min(d, b.Max)
}
