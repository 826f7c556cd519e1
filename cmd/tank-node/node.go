package main

import (
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/sweeney/tank-sensor/internal/config"
	"github.com/sweeney/tank-sensor/internal/logic"
	"github.com/sweeney/tank-sensor/internal/protocol"
	"github.com/sweeney/tank-sensor/internal/radio"
	"github.com/sweeney/tank-sensor/internal/sensor"
)

// sender is the transport as seen by the node loop.
type sender interface {
	Send(payload []byte) error
	Stats() radio.TxStats
}

// sampler is the filtered rangefinder.
type sampler interface {
	FilteredSample() logic.Reading
	Errors() uint32
}

// nodeOptions are the encode-time settings of a node.
type nodeOptions struct {
	Form         protocol.Form
	Health       string // config.Health*
	Aggregate    bool
	LowBatteryMV uint16
	ThermalZone  string
	MemInfo      string
}

// node runs the sample, decide, encode, transmit pipeline.
type node struct {
	id       protocol.DeviceID
	sampler  sampler
	supply   sensor.SupplyReader
	detector *logic.Detector
	agg      logic.Aggregator
	tx       sender
	opts     nodeOptions
	log      *zap.SugaredLogger

	start     time.Time
	lastMV    uint16
	overflows uint64
}

func newNode(id protocol.DeviceID, s sampler, supply sensor.SupplyReader, det logic.Config, tx sender, opts nodeOptions, start time.Time, log *zap.SugaredLogger) *node {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &node{
		id:       id,
		sampler:  s,
		supply:   supply,
		detector: logic.NewDetector(det),
		tx:       tx,
		opts:     opts,
		log:      log,
		start:    start,
	}
}

// step takes one filtered reading at t and transmits it if the detector
// says so. It reports whether a frame was handed to the transport.
func (n *node) step(t time.Time) bool {
	r := n.sampler.FilteredSample()

	mv, err := n.supply.Millivolts()
	if err != nil {
		n.log.Debugf("node: supply: %v", err)
		mv = n.lastMV
	}
	n.lastMV = mv

	if r.Valid {
		n.agg.Add(r)
	}

	dec := n.detector.Process(logic.Input{Reading: r, BatteryMV: mv, Time: t})
	if !dec.Send {
		return false
	}

	rec := n.record(r, mv, dec, t)
	n.agg.Reset()

	payload, err := protocol.Encode(rec, n.opts.Form)
	if err == nil {
		err = n.tx.Send(payload)
	}
	switch {
	case err == nil:
		n.log.Debugf("node: sent %s distance=%d mv=%d rle=%d", dec.Reason, rec.Distance, mv, dec.RunCount)
		return true
	case errors.Is(err, protocol.ErrEncodeOverflow), errors.Is(err, radio.ErrFrameTooLarge):
		n.overflows++
		n.log.Warnf("node: dropping %s reading: %v", dec.Reason, err)
	default:
		n.log.Warnf("node: transmit %s: %v", dec.Reason, err)
	}
	return false
}

func (n *node) record(r logic.Reading, mv uint16, dec logic.Decision, t time.Time) protocol.Record {
	rec := protocol.Record{
		Device:    n.id,
		Timestamp: uint32(t.Unix()),
		BatteryMV: mv,
		RunCount:  dec.RunCount,
	}

	switch dec.Reason {
	case logic.ReasonFirst:
		rec.Flags |= protocol.FlagFirst
	case logic.ReasonHeartbeat:
		rec.Flags |= protocol.FlagHeartbeat
	case logic.ReasonDelta:
		rec.Flags |= protocol.FlagDelta
	}
	if r.Valid {
		rec.Distance = r.Value
	} else {
		rec.Flags |= protocol.FlagSensorError
	}
	if mv > 0 && mv < n.opts.LowBatteryMV {
		rec.Flags |= protocol.FlagLowBattery
	}

	heartbeat := dec.Reason == logic.ReasonHeartbeat
	if n.opts.Aggregate && heartbeat {
		if s, ok := n.agg.Summary(); ok {
			rec.Aggregate = &protocol.Aggregate{
				Min:   int16(s.Min),
				Max:   int16(s.Max),
				Avg:   int16(s.Avg),
				Count: clampU8(s.Count),
			}
		}
	}
	if n.opts.Health == config.HealthAlways || (n.opts.Health == config.HealthHeartbeat && heartbeat) {
		rec.Health = n.health(t)
	}
	return rec
}

func (n *node) health(t time.Time) *protocol.Health {
	st := n.tx.Stats()
	h := &protocol.Health{
		UptimeS:      uint32(t.Sub(n.start) / time.Second),
		TxOK:         clampU16(uint64(st.Sent)),
		TxFail:       clampU16(uint64(st.Failed)),
		SensorErrors: clampU16(uint64(n.sampler.Errors())),
	}
	if n.opts.ThermalZone != "" {
		if c, err := sensor.BoardTemp(n.opts.ThermalZone); err == nil {
			h.TempC = c
		}
	}
	if n.opts.MemInfo != "" {
		if kib, err := sensor.FreeMemKiB(n.opts.MemInfo); err == nil {
			h.FreeKiB = kib
		}
	}
	return h
}

func clampU8(v int) uint8 {
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clampU16(v uint64) uint16 {
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}
