// Package protocol implements the telemetry wire formats: a compact binary
// frame with a CRC-16 trailer and a single-line JSON text form.
package protocol

import (
	"encoding/hex"
	"fmt"
	"net"

	"github.com/juju/errors"
)

// DeviceID is the 6-byte radio address of a node.
type DeviceID [6]byte

// String returns the colon-separated upper-case form, e.g. "AA:BB:CC:00:11:22".
func (id DeviceID) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", id[0], id[1], id[2], id[3], id[4], id[5])
}

// Compact returns the id as 12 lower-case hex digits, suitable for topic names.
func (id DeviceID) Compact() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the id is unset.
func (id DeviceID) IsZero() bool {
	return id == DeviceID{}
}

// ParseDeviceID accepts any 6-byte MAC notation understood by net.ParseMAC.
func ParseDeviceID(s string) (DeviceID, error) {
	var id DeviceID
	hw, err := net.ParseMAC(s)
	if err != nil {
		return id, errors.Annotatef(err, "parse device id %q", s)
	}
	if len(hw) != len(id) {
		return id, errors.NotValidf("device id %q (%d bytes)", s, len(hw))
	}
	copy(id[:], hw)
	return id, nil
}

// Flags are the status bits carried by every record.
type Flags uint8

const (
	FlagHeartbeat   Flags = 0x01
	FlagDelta       Flags = 0x02
	FlagSensorError Flags = 0x04
	FlagAggregated  Flags = 0x08
	FlagLowBattery  Flags = 0x10
	FlagHealth      Flags = 0x20
	FlagFirst       Flags = 0x40
)

// Has reports whether all bits of x are set.
func (f Flags) Has(x Flags) bool { return f&x == x }

// Urgent reports whether the record describes a condition that should be
// delivered ahead of routine traffic.
func (f Flags) Urgent() bool { return f&(FlagLowBattery|FlagSensorError) != 0 }

// Reason names the send reason encoded in the flags.
func (f Flags) Reason() string {
	switch {
	case f.Has(FlagFirst):
		return "FIRST"
	case f.Has(FlagHeartbeat):
		return "HEARTBEAT"
	case f.Has(FlagDelta):
		return "DELTA"
	}
	return "UNKNOWN"
}

// Aggregate summarises the valid readings taken since the previous send.
type Aggregate struct {
	Min   int16
	Max   int16
	Avg   int16
	Count uint8
}

// Health is the optional node self-report.
type Health struct {
	UptimeS      uint32
	FreeKiB      uint32
	TempC        int8
	TxOK         uint16
	TxFail       uint16
	SensorErrors uint16
}

// Record is one telemetry transmission.
//
// FlagAggregated and FlagHealth are derived from the presence of Aggregate
// and Health when encoding; a record round-trips exactly when those two bits
// agree with the pointers.
type Record struct {
	Device    DeviceID
	Timestamp uint32 // unix seconds
	Distance  int32  // mm
	BatteryMV uint16
	Signal    int8 // dBm
	Flags     Flags
	RunCount  uint8
	Aggregate *Aggregate
	Health    *Health
}

// normalizedFlags returns r.Flags with the presence bits matching the payload.
func (r Record) normalizedFlags() Flags {
	f := r.Flags &^ (FlagAggregated | FlagHealth)
	if r.Aggregate != nil {
		f |= FlagAggregated
	}
	if r.Health != nil {
		f |= FlagHealth
	}
	return f
}
