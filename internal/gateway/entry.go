// Package gateway is the receive-and-forward pipeline of a gateway:
// the radio receive handler, the two-tier delivery queue, the uplink
// forwarder and the repeater-mode relay.
package gateway

import (
	"time"

	"github.com/juju/errors"

	"github.com/sweeney/tank-sensor/internal/protocol"
)

// ErrUndeliverable marks an entry that must not be retried.
const ErrUndeliverable = errors.ConstError("gateway: undeliverable")

// Entry is one validated inbound frame awaiting delivery.
type Entry struct {
	ID         string            // assigned on first delivery attempt
	Sender     protocol.DeviceID // link-layer sender (a repeater when relayed)
	Origin     protocol.DeviceID // node that produced the payload
	Signal     int8              // RSSI measured by this gateway
	Hops       uint8
	Payload    []byte // protocol frame as received
	Form       protocol.Form
	Record     protocol.Record
	EnqueuedAt time.Time
	Retries    int
	Priority   bool
}
