package bridge

import "time"

// Backoff computes reconnect delays: min(Base*min(attempts, Cap), Max).
// The attempt count is unbounded; the delay is not.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	Cap  int
}

// Delay returns the wait before reconnect attempt number attempts (1-based).
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if b.Cap > 0 && attempts > b.Cap {
		attempts = b.Cap
	}
	d := b.Base * time.Duration(attempts)
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}
