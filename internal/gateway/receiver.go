package gateway

import (
	"bytes"
	"time"

	"github.com/juju/errors"

	"github.com/sweeney/tank-sensor/internal/protocol"
	"github.com/sweeney/tank-sensor/internal/radio"
	"github.com/sweeney/tank-sensor/internal/registry"
)

// DefaultSightingBuffer bounds the sightings waiting for the registry.
const DefaultSightingBuffer = 64

// Receiver is the radio receive handler. Handle does bounded work (one
// frame of at most MaxFrame bytes is decoded and copied), takes no lock
// the consumer can hold for longer than a constant-time step, and never
// logs; outcomes are visible through Stats.
type Receiver struct {
	q        *DeliveryQueue
	stats    *Stats
	maxFrame int

	sightings chan registry.Sighting

	// Now stamps entries. Tests replace it.
	Now func() time.Time
}

// NewReceiver feeds q. maxFrame <= 0 selects the radio MTU.
func NewReceiver(q *DeliveryQueue, maxFrame int) *Receiver {
	if maxFrame <= 0 || maxFrame > radio.MTU {
		maxFrame = radio.MTU
	}
	return &Receiver{
		q:        q,
		stats:    q.stats,
		maxFrame: maxFrame,

		sightings: make(chan registry.Sighting, DefaultSightingBuffer),
		Now:       time.Now,
	}
}

// Sightings carries one entry per decoded frame, including frames the
// queue later drops. The registry drains it; when it falls behind,
// sightings are counted as unobserved instead of blocking.
func (r *Receiver) Sightings() <-chan registry.Sighting {
	return r.sightings
}

// Handle implements radio.Handler.
func (r *Receiver) Handle(src protocol.DeviceID, rssi int8, frame []byte) {
	r.stats.received.Add(1)

	if len(frame) > r.maxFrame {
		r.stats.oversize.Add(1)
		return
	}
	f, err := radio.UnmarshalFrame(frame)
	if err != nil {
		r.stats.malformed.Add(1)
		return
	}
	rec, form, err := protocol.Decode(f.Payload)
	if err != nil {
		if errors.Is(err, protocol.ErrChecksumMismatch) {
			r.stats.checksum.Add(1)
		} else {
			r.stats.malformed.Add(1)
		}
		return
	}

	now := r.Now()
	select {
	case r.sightings <- registry.Sighting{ID: f.Origin, Signal: rssi, Relayed: f.Hops > 0, At: now}:
	default:
		r.stats.unobserved.Add(1)
	}

	r.q.Offer(Entry{
		Sender:     src,
		Origin:     f.Origin,
		Signal:     rssi,
		Hops:       f.Hops,
		Payload:    bytes.Clone(f.Payload),
		Form:       form,
		Record:     rec,
		EnqueuedAt: now,
		Priority:   rec.Flags.Urgent(),
	})
}
