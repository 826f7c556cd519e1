// Package radio is the node-to-gateway link: the link frame header,
// the datagram Driver abstraction and the bounded-retry Transmitter.
package radio

import (
	"github.com/juju/errors"

	"github.com/sweeney/tank-sensor/internal/protocol"
)

// Link limits. MTU matches ESP-NOW's 250-byte payload.
const (
	MTU        = 250
	HeaderSize = 7
	MaxPayload = MTU - HeaderSize
)

// Broadcast addresses every peer of a driver.
var Broadcast = protocol.DeviceID{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

const (
	ErrFrameTooLarge  = errors.ConstError("radio: frame exceeds mtu")
	ErrFrameTooShort  = errors.ConstError("radio: frame shorter than header")
	ErrTransmitFailed = errors.ConstError("radio: transmit failed")
	ErrUnknownPeer    = errors.ConstError("radio: unknown peer")
)

// Frame is one link-layer frame. Origin is the node that produced the
// payload; it survives relaying, unlike the driver-reported sender.
type Frame struct {
	Origin  protocol.DeviceID
	Hops    uint8
	Payload []byte
}

// Marshal lays out [origin:6][hops:1][payload].
func (f Frame) Marshal() ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, errors.Annotatef(ErrFrameTooLarge, "payload %d bytes", len(f.Payload))
	}
	b := make([]byte, 0, HeaderSize+len(f.Payload))
	b = append(b, f.Origin[:]...)
	b = append(b, f.Hops)
	return append(b, f.Payload...), nil
}

// UnmarshalFrame parses a link frame. The payload aliases b.
func UnmarshalFrame(b []byte) (Frame, error) {
	var f Frame
	if len(b) > MTU {
		return f, errors.Annotatef(ErrFrameTooLarge, "%d bytes", len(b))
	}
	if len(b) < HeaderSize {
		return f, errors.Annotatef(ErrFrameTooShort, "%d bytes", len(b))
	}
	copy(f.Origin[:], b[:6])
	f.Hops = b[6]
	f.Payload = b[HeaderSize:]
	return f, nil
}

// Handler receives inbound frames. It runs on the driver's receive path
// and must return quickly without blocking. frame is only valid for the
// duration of the call.
type Handler func(src protocol.DeviceID, rssi int8, frame []byte)

// Driver is the radio send/receive primitive.
type Driver interface {
	// Send transmits one link frame to dest, or to every peer for Broadcast.
	// A nil error means the link layer accepted the frame.
	Send(dest protocol.DeviceID, frame []byte) error

	// OnReceive installs the inbound handler.
	OnReceive(h Handler)

	// Close stops the receive path and releases the link.
	Close() error
}
