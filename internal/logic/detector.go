package logic

import "time"

// Config holds the change detector thresholds.
type Config struct {
	Deadband       int32         // mm change that triggers a send
	Hysteresis     int32         // extra mm required to reverse the trend
	SupplyDeadband int32         // mV change that triggers a send
	Heartbeat      time.Duration // forced send interval, 0 disables
}

// DefaultConfig returns the field-tested thresholds.
func DefaultConfig() Config {
	return Config{
		Deadband:       15,
		Hysteresis:     3,
		SupplyDeadband: 100,
		Heartbeat:      30 * time.Second,
	}
}

// Detector decides per reading whether the node should transmit and
// maintains the run-length counter for stable values.
//
// The run counter is reset only by FIRST and DELTA sends; heartbeats report
// it without resetting it, so a long stable period keeps counting up to
// MaxRunCount across heartbeats.
type Detector struct {
	cfg Config

	started      bool
	lastSent     Input
	lastSendTime time.Time
	trend        Trend

	haveStable  bool
	stableValue int32
	runCount    uint8

	counts SendCounts
}

// MaxRunCount is the largest representable run length.
const MaxRunCount = 255

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Process evaluates one input and returns the send decision.
// Inputs must be presented in time order.
func (d *Detector) Process(in Input) Decision {
	d.trackRun(in.Reading)

	if !d.started {
		d.started = true
		d.trend = TrendFlat
		return d.commit(in, ReasonFirst)
	}

	if d.cfg.Heartbeat > 0 && in.Time.Sub(d.lastSendTime) >= d.cfg.Heartbeat {
		d.trend = TrendFlat
		return d.commit(in, ReasonHeartbeat)
	}

	// Sensor went bad or recovered.
	if in.Reading.Valid != d.lastSent.Reading.Valid {
		d.trend = TrendFlat
		return d.commit(in, ReasonDelta)
	}

	if in.Reading.Valid {
		delta := in.Reading.Value - d.lastSent.Reading.Value
		if delta != 0 {
			dir := TrendRising
			if delta < 0 {
				dir = TrendFalling
			}
			threshold := d.cfg.Deadband
			if d.trend != TrendFlat && dir != d.trend {
				threshold += d.cfg.Hysteresis
			}
			if abs(delta) >= threshold {
				d.trend = dir
				return d.commit(in, ReasonDelta)
			}
		}
	}

	if abs(int32(in.BatteryMV)-int32(d.lastSent.BatteryMV)) > d.cfg.SupplyDeadband {
		return d.commit(in, ReasonDelta)
	}

	return Decision{RunCount: d.runCount}
}

// trackRun updates the stable-value run counter.
func (d *Detector) trackRun(r Reading) {
	if !r.Valid {
		return
	}
	if !d.haveStable || abs(r.Value-d.stableValue) >= d.cfg.Deadband {
		d.haveStable = true
		d.stableValue = r.Value
		d.runCount = 1
		return
	}
	if d.runCount < MaxRunCount {
		d.runCount++
	}
}

func (d *Detector) commit(in Input, reason Reason) Decision {
	d.lastSent = in
	d.lastSendTime = in.Time

	dec := Decision{Send: true, Reason: reason, RunCount: d.runCount}
	if dec.RunCount == 0 {
		dec.RunCount = 1
	}

	switch reason {
	case ReasonFirst:
		d.counts.First++
	case ReasonHeartbeat:
		d.counts.Heartbeat++
	case ReasonDelta:
		d.counts.Delta++
	}

	if reason != ReasonHeartbeat {
		d.runCount = 1
		if in.Reading.Valid {
			d.haveStable = true
			d.stableValue = in.Reading.Value
		}
	}
	return dec
}

// Trend returns the direction of the last distance-triggered send.
func (d *Detector) Trend() Trend {
	return d.trend
}

// RunCount returns the current stable run length.
func (d *Detector) RunCount() uint8 {
	return d.runCount
}

// LastSent returns the last transmitted input and whether one exists.
func (d *Detector) LastSent() (Input, bool) {
	return d.lastSent, d.started
}

// Counts returns a copy of the send counters.
func (d *Detector) Counts() SendCounts {
	return d.counts
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
