package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Sink is where the forwarder delivers entries: the uplink on a primary
// gateway, the relay on a repeater.
type Sink interface {
	Deliver(ctx context.Context, e Entry) error
	IsUp() bool
}

// ForwarderConfig controls retry and polling.
type ForwarderConfig struct {
	MaxAttempts int           // attempts per entry
	BaseDelay   time.Duration // delay before the 2nd attempt, doubled after
	Poll        time.Duration // longest idle wait between liveness checks
}

// DefaultForwarderConfig is 3 attempts with 500 ms base backoff.
func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Poll: time.Second}
}

// Forwarder is the single consumer of a DeliveryQueue.
type Forwarder struct {
	q     *DeliveryQueue
	sink  Sink
	stats *Stats
	cfg   ForwarderConfig
	log   *zap.SugaredLogger

	// Sleep waits between attempts and while the sink is down; it returns
	// early with ctx.Err() on cancellation. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	// Progress is called on every loop iteration, busy or idle.
	Progress func()

	wasUp bool
}

// NewForwarder drains q into sink.
func NewForwarder(q *DeliveryQueue, sink Sink, cfg ForwarderConfig, log *zap.SugaredLogger) *Forwarder {
	def := DefaultForwarderConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Poll <= 0 {
		cfg.Poll = def.Poll
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Forwarder{
		q:        q,
		sink:     sink,
		stats:    q.stats,
		cfg:      cfg,
		log:      log,
		Sleep:    sleepCtx,
		Progress: func() {},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backoff returns the delay before the given attempt (1-based).
// Attempt 1 has no delay; attempt n waits BaseDelay * 2^(n-2).
func (f *Forwarder) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return f.cfg.BaseDelay << (attempt - 2)
}

// Run forwards entries until ctx is cancelled. While the sink is down it
// leaves entries queued; when the sink comes back the fallback buffer is
// replayed before the next entry is taken.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		f.Progress()
		if ctx.Err() != nil {
			return nil
		}

		up := f.sink.IsUp()
		if up != f.wasUp {
			if up {
				f.log.Infof("forwarder: uplink up")
			} else {
				f.log.Warnf("forwarder: uplink down, holding %d queued", f.q.Len())
			}
		}
		if !up {
			f.wasUp = false
			if err := f.Sleep(ctx, f.cfg.Poll); err != nil {
				return nil
			}
			continue
		}
		if !f.wasUp || f.q.Len() == 0 {
			if n := f.q.Replay(); n > 0 {
				f.log.Infof("forwarder: replayed %d from fallback", n)
			}
		}
		f.wasUp = true

		e, ok := f.q.Next(ctx, f.cfg.Poll)
		if !ok {
			continue
		}
		f.Handle(ctx, e)
	}
}

// Handle delivers one entry with retry and exponential backoff. It
// reports whether the entry was delivered.
//
// Every attempt reaches the sink. IsUp only gates taking the next entry in
// Run; a sink that reports down after a failed attempt still gets the
// remaining attempts of the entry in flight.
func (f *Forwarder) Handle(ctx context.Context, e Entry) bool {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			f.stats.retries.Add(1)
			if err := f.Sleep(ctx, f.Backoff(attempt)); err != nil {
				f.stats.failed.Add(1)
				f.log.Warnf("forwarder: %s from %s abandoned on shutdown", e.ID, e.Origin)
				return false
			}
		}
		e.Retries = attempt - 1

		err := f.sink.Deliver(ctx, e)
		if err == nil {
			f.stats.forwarded.Add(1)
			return true
		}
		if errors.Is(err, ErrUndeliverable) {
			f.stats.rejected.Add(1)
			f.log.Warnf("forwarder: dropping %s from %s: %v", e.ID, e.Origin, err)
			return false
		}
		lastErr = err
		f.log.Debugf("forwarder: attempt %d/%d for %s: %v", attempt, f.cfg.MaxAttempts, e.ID, err)
	}

	f.stats.failed.Add(1)
	f.log.Warnf("forwarder: %s from %s failed after %d attempts: %v", e.ID, e.Origin, f.cfg.MaxAttempts, lastErr)
	return false
}
