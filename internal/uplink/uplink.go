// Package uplink delivers telemetry from the gateway to the backend.
package uplink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/sweeney/tank-sensor/internal/protocol"
)

// ErrUnavailable reports that a sink currently has no connectivity.
const ErrUnavailable = errors.ConstError("uplink: unavailable")

// Uplink is a backend sink.
type Uplink interface {
	// Forward delivers one message. It must respect ctx cancellation.
	Forward(ctx context.Context, m Message) error

	// IsUp reports whether the sink believes it can deliver right now.
	IsUp() bool

	// Name identifies the sink in logs and status output.
	Name() string

	// Close releases connections.
	Close() error
}

// Message is the JSON document delivered for one record.
type Message struct {
	ID          string         `json:"id"`
	Gateway     string         `json:"gateway"`
	MAC         string         `json:"mac"`
	Timestamp   uint32         `json:"ts"`
	ReceivedAt  string         `json:"received_at"`
	Distance    int32          `json:"distance_mm"`
	BatteryMV   uint16         `json:"vcc_bat_mv"`
	RSSI        int8           `json:"rssi"`
	GatewayRSSI int8           `json:"gateway_rssi"`
	Hops        uint8          `json:"hops"`
	Reason      string         `json:"reason"`
	Flags       uint8          `json:"flags"`
	LowBattery  bool           `json:"low_battery,omitempty"`
	SensorError bool           `json:"sensor_error,omitempty"`
	RLE         uint8          `json:"rle"`
	Aggregate   *AggregateJSON `json:"agg,omitempty"`
	Health      *HealthJSON    `json:"health,omitempty"`
}

// AggregateJSON is the aggregate window of a heartbeat.
type AggregateJSON struct {
	Min   int16 `json:"min"`
	Max   int16 `json:"max"`
	Avg   int16 `json:"avg"`
	Count uint8 `json:"n"`
}

// HealthJSON is the node self-report.
type HealthJSON struct {
	UptimeS      uint32 `json:"uptime_s"`
	FreeKiB      uint32 `json:"free_kib"`
	TempC        int8   `json:"temp_c"`
	TxOK         uint16 `json:"tx_ok"`
	TxFail       uint16 `json:"tx_fail"`
	SensorErrors uint16 `json:"sensor_err"`
}

// NewMessage builds the upstream document for rec as heard by gateway.
// linkRSSI is the signal strength measured by the gateway's radio.
func NewMessage(gateway protocol.DeviceID, rec protocol.Record, linkRSSI int8, hops uint8, received time.Time) Message {
	m := Message{
		ID:          uuid.NewString(),
		Gateway:     gateway.String(),
		MAC:         rec.Device.String(),
		Timestamp:   rec.Timestamp,
		ReceivedAt:  received.UTC().Format(time.RFC3339),
		Distance:    rec.Distance,
		BatteryMV:   rec.BatteryMV,
		RSSI:        rec.Signal,
		GatewayRSSI: linkRSSI,
		Hops:        hops,
		Reason:      rec.Flags.Reason(),
		Flags:       uint8(rec.Flags),
		LowBattery:  rec.Flags.Has(protocol.FlagLowBattery),
		SensorError: rec.Flags.Has(protocol.FlagSensorError),
		RLE:         rec.RunCount,
	}
	if a := rec.Aggregate; a != nil {
		m.Aggregate = &AggregateJSON{Min: a.Min, Max: a.Max, Avg: a.Avg, Count: a.Count}
	}
	if h := rec.Health; h != nil {
		m.Health = &HealthJSON{
			UptimeS:      h.UptimeS,
			FreeKiB:      h.FreeKiB,
			TempC:        h.TempC,
			TxOK:         h.TxOK,
			TxFail:       h.TxFail,
			SensorErrors: h.SensorErrors,
		}
	}
	return m
}

// JSON returns the wire form of m.
func (m Message) JSON() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Annotate(err, "marshal uplink message")
	}
	return b, nil
}
