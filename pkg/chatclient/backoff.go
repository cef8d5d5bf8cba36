package chatclient

import (
	"math/rand"
	"time"
)

// Backoff computes reconnect delays: min(Max, Base*2^attempt) plus a random
// jitter in [0, Jitter) so a fleet of clients does not reconnect in lockstep.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

func defaultBackoff() Backoff {
	return Backoff{
		Base:   time.Second,
		Max:    30 * time.Second,
		Jitter: time.Second,
	}
}

// Delay returns the wait before reconnect attempt n (n >= 1).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			d = b.Max
			break
		}
	}
	if d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(b.Jitter)))
	}
	return d
}
