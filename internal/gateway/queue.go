package gateway

import (
	"context"
	"time"
)

// Outcome reports where Offer placed an entry.
type Outcome int

const (
	Queued Outcome = iota
	Buffered
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Queued:
		return "QUEUED"
	case Buffered:
		return "BUFFERED"
	}
	return "DROPPED"
}

// QueueConfig sizes the two tiers.
type QueueConfig struct {
	Capacity       int // normal lane of the primary queue
	UrgentCapacity int // priority lane of the primary queue
	Fallback       int // overflow buffer
}

// DefaultQueueConfig is the stock gateway sizing.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{Capacity: 50, UrgentCapacity: 8, Fallback: 16}
}

// DeliveryQueue is the bounded primary queue with its fallback buffer.
// Any number of goroutines may Offer; exactly one consumer may call Next
// and Replay.
type DeliveryQueue struct {
	urgent chan Entry
	normal chan Entry
	fb     *fallback
	stats  *Stats
}

// NewDeliveryQueue allocates both tiers. stats may be shared with the
// receiver and forwarder.
func NewDeliveryQueue(cfg QueueConfig, stats *Stats) *DeliveryQueue {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.UrgentCapacity < 0 {
		cfg.UrgentCapacity = 0
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &DeliveryQueue{
		urgent: make(chan Entry, cfg.UrgentCapacity),
		normal: make(chan Entry, cfg.Capacity),
		fb:     newFallback(cfg.Fallback),
		stats:  stats,
	}
}

// tryPrimary places e without blocking. Priority entries use the urgent
// lane and spill into the normal lane.
func (q *DeliveryQueue) tryPrimary(e Entry) bool {
	if e.Priority {
		select {
		case q.urgent <- e:
			return true
		default:
		}
	}
	select {
	case q.normal <- e:
		return true
	default:
		return false
	}
}

// Offer never blocks: primary queue first, then the fallback buffer, then
// the entry is dropped and counted.
func (q *DeliveryQueue) Offer(e Entry) Outcome {
	if q.tryPrimary(e) {
		q.stats.enqueued.Add(1)
		return Queued
	}
	if q.fb.push(e) {
		q.stats.fallback.Add(1)
		return Buffered
	}
	q.stats.dropped.Add(1)
	return Dropped
}

// Next waits up to wait for an entry, urgent lane first.
func (q *DeliveryQueue) Next(ctx context.Context, wait time.Duration) (Entry, bool) {
	select {
	case e := <-q.urgent:
		return e, true
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case e := <-q.urgent:
		return e, true
	case e := <-q.normal:
		return e, true
	case <-timer.C:
	case <-ctx.Done():
	}
	return Entry{}, false
}

// Replay moves fallback entries into the primary queue oldest first,
// stopping at the first one that does not fit. It returns how many moved.
func (q *DeliveryQueue) Replay() int {
	n := 0
	for {
		e, ok := q.fb.peek()
		if !ok || !q.tryPrimary(e) {
			break
		}
		q.fb.discard()
		n++
	}
	q.stats.replayed.Add(uint64(n))
	return n
}

// Len returns the primary queue occupancy.
func (q *DeliveryQueue) Len() int {
	return len(q.urgent) + len(q.normal)
}

// Cap returns the primary queue capacity.
func (q *DeliveryQueue) Cap() int {
	return cap(q.urgent) + cap(q.normal)
}

// FallbackLen returns the fallback buffer occupancy.
func (q *DeliveryQueue) FallbackLen() int {
	return q.fb.len()
}

// Snapshot returns the counters together with current occupancy.
func (q *DeliveryQueue) Snapshot() StatsSnapshot {
	s := q.stats.Snapshot()
	s.QueueLen = q.Len()
	s.QueueCap = q.Cap()
	s.FallbackLen = q.FallbackLen()
	s.FallbackCap = q.fb.capacity()
	return s
}
