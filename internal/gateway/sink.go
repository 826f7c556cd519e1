package gateway

import (
	"context"
	"time"

	"github.com/sweeney/tank-sensor/internal/protocol"
	"github.com/sweeney/tank-sensor/internal/uplink"
)

// UplinkSink delivers entries as uplink messages.
type UplinkSink struct {
	up      uplink.Uplink
	gateway protocol.DeviceID
	timeout time.Duration
}

// NewUplinkSink wraps up. Each attempt is bounded by timeout.
func NewUplinkSink(up uplink.Uplink, gateway protocol.DeviceID, timeout time.Duration) *UplinkSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &UplinkSink{up: up, gateway: gateway, timeout: timeout}
}

// IsUp implements Sink.
func (s *UplinkSink) IsUp() bool { return s.up.IsUp() }

// Deliver implements Sink. Retries of one entry reuse its message id.
func (s *UplinkSink) Deliver(ctx context.Context, e Entry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	m := uplink.NewMessage(s.gateway, e.Record, e.Signal, e.Hops, e.EnqueuedAt)
	if e.ID != "" {
		m.ID = e.ID
	}
	return s.up.Forward(ctx, m)
}
