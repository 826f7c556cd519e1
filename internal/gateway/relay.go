package gateway

import (
	"context"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/sweeney/tank-sensor/internal/protocol"
	"github.com/sweeney/tank-sensor/internal/radio"
)

// DefaultMaxHops bounds relaying in a leaf -> repeater -> gateway topology.
const DefaultMaxHops = 3

// FrameForwarder sends a link frame upstream; *radio.Transmitter
// implements it.
type FrameForwarder interface {
	Forward(f radio.Frame) error
}

// Relay is the repeater-mode Sink: it forwards the raw payload one hop
// further toward the primary gateway.
type Relay struct {
	tx      FrameForwarder
	self    protocol.DeviceID
	maxHops uint8
	log     *zap.SugaredLogger
}

// NewRelay forwards through tx. maxHops 0 selects DefaultMaxHops.
func NewRelay(tx FrameForwarder, self protocol.DeviceID, maxHops uint8, log *zap.SugaredLogger) *Relay {
	if maxHops == 0 {
		maxHops = DefaultMaxHops
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Relay{tx: tx, self: self, maxHops: maxHops, log: log}
}

// IsUp implements Sink. The radio has no connectivity signal.
func (r *Relay) IsUp() bool { return true }

// Deliver implements Sink. Frames at the hop limit, or that this relay
// originated, are refused with ErrUndeliverable.
func (r *Relay) Deliver(_ context.Context, e Entry) error {
	if e.Origin == r.self {
		r.log.Debugf("relay: dropping own frame")
		return errors.Annotate(ErrUndeliverable, "relay loop")
	}
	if e.Hops >= r.maxHops {
		r.log.Infof("relay: dropping frame from %s at hop limit %d", e.Origin, r.maxHops)
		return errors.Annotatef(ErrUndeliverable, "hop limit %d", r.maxHops)
	}
	return r.tx.Forward(radio.Frame{
		Origin:  e.Origin,
		Hops:    e.Hops + 1,
		Payload: e.Payload,
	})
}
