// Package logic contains the pure decision logic of a tank node: the
// median/EMA filter, the change detector and the aggregation window.
// Nothing here performs I/O or reads the clock; time is passed in.
package logic

import "time"

// ErrorKind classifies an invalid reading.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorTimeout
	ErrorOutOfRange
	ErrorInsufficientSamples
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "NONE"
	case ErrorTimeout:
		return "TIMEOUT"
	case ErrorOutOfRange:
		return "OUT_OF_RANGE"
	case ErrorInsufficientSamples:
		return "INSUFFICIENT_SAMPLES"
	}
	return "UNKNOWN"
}

// Reading is a single distance measurement in millimetres.
type Reading struct {
	Value int32
	Valid bool
	Err   ErrorKind
}

// ValidReading returns a valid reading of v millimetres.
func ValidReading(v int32) Reading {
	return Reading{Value: v, Valid: true}
}

// InvalidReading returns a sentinel reading tagged with k.
func InvalidReading(k ErrorKind) Reading {
	return Reading{Err: k}
}

// Trend is the direction of the last distance-triggered send.
type Trend int

const (
	TrendFlat Trend = iota
	TrendRising
	TrendFalling
)

func (t Trend) String() string {
	switch t {
	case TrendRising:
		return "RISING"
	case TrendFalling:
		return "FALLING"
	}
	return "FLAT"
}

// Reason explains why a reading was transmitted.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonFirst     Reason = "FIRST"
	ReasonHeartbeat Reason = "HEARTBEAT"
	ReasonDelta     Reason = "DELTA"
)

// Input is one filtered sample presented to the detector.
type Input struct {
	Reading   Reading
	BatteryMV uint16
	Time      time.Time
}

// Decision is the detector's verdict for one Input.
type Decision struct {
	Send     bool
	Reason   Reason
	RunCount uint8
}

// SendCounts tracks transmissions by reason.
type SendCounts struct {
	First     int
	Heartbeat int
	Delta     int
}

// Total returns the number of transmissions.
func (c SendCounts) Total() int {
	return c.First + c.Heartbeat + c.Delta
}
