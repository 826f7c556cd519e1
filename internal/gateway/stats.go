package gateway

import "sync/atomic"

// Stats are the pipeline counters. All fields are updated atomically and
// may be read at any time through Snapshot.
type Stats struct {
	received  atomic.Uint64
	oversize  atomic.Uint64
	malformed atomic.Uint64
	checksum  atomic.Uint64
	enqueued  atomic.Uint64
	fallback  atomic.Uint64
	dropped   atomic.Uint64
	replayed  atomic.Uint64
	forwarded atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
	retries   atomic.Uint64

	unobserved atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Received       uint64 // frames handed to the receiver
	Oversize       uint64 // rejected for exceeding the frame limit
	Malformed      uint64 // undecodable frames
	ChecksumErrors uint64 // binary frames with a bad CRC
	Enqueued       uint64 // accepted into the primary queue
	Fallback       uint64 // accepted into the fallback buffer
	Dropped        uint64 // rejected by both tiers
	Replayed       uint64 // moved from fallback to primary
	Forwarded      uint64 // delivered
	Failed         uint64 // retry budget exhausted
	Rejected       uint64 // refused by the sink, not retried
	Retries        uint64 // delivery attempts beyond the first
	Unobserved     uint64 // sightings lost because the registry fell behind

	QueueLen    int
	QueueCap    int
	FallbackLen int
	FallbackCap int
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Received:       s.received.Load(),
		Oversize:       s.oversize.Load(),
		Malformed:      s.malformed.Load(),
		ChecksumErrors: s.checksum.Load(),
		Enqueued:       s.enqueued.Load(),
		Fallback:       s.fallback.Load(),
		Dropped:        s.dropped.Load(),
		Replayed:       s.replayed.Load(),
		Forwarded:      s.forwarded.Load(),
		Failed:         s.failed.Load(),
		Rejected:       s.rejected.Load(),
		Retries:        s.retries.Load(),
		Unobserved:     s.unobserved.Load(),
	}
}
