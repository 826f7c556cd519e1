package uplink

import (
	"sync"
	"time"
)

// DefaultRecheck is how long a failed sink reports down before the next
// attempt is allowed through.
const DefaultRecheck = 5 * time.Second

// breaker tracks connectivity for sinks that have no persistent
// connection: a failure marks the sink down, and after recheck it reports
// up again so the next attempt reaches the backend.
type breaker struct {
	mu       sync.Mutex
	down     bool
	failedAt time.Time
	recheck  time.Duration
	now      func() time.Time
}

func newBreaker(recheck time.Duration) *breaker {
	if recheck <= 0 {
		recheck = DefaultRecheck
	}
	return &breaker{recheck: recheck, now: time.Now}
}

func (b *breaker) up() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.down || b.now().Sub(b.failedAt) >= b.recheck
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.down = false
		return
	}
	b.down = true
	b.failedAt = b.now()
}
