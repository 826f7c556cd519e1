// Package sensor turns rangefinder echoes into filtered distance readings.
package sensor

import (
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/sweeney/tank-sensor/internal/gpio"
	"github.com/sweeney/tank-sensor/internal/logic"
)

// Config controls one filtered sampling round.
type Config struct {
	Cycles int           // cycles per round, odd
	Settle time.Duration // delay between cycles
	MinMM  int32         // valid window
	MaxMM  int32
	Alpha  float64 // EMA weight
}

// DefaultConfig matches the JSN-SR04T in a domestic water tank.
func DefaultConfig() Config {
	return Config{
		Cycles: 11,
		Settle: 100 * time.Millisecond,
		MinMM:  20,
		MaxMM:  4500,
		Alpha:  logic.DefaultAlpha,
	}
}

// Sampler owns the rangefinder and the filter state of one node.
// It is not safe for concurrent use; only Errors may be read from
// other goroutines.
type Sampler struct {
	ranger gpio.Ranger
	cfg    Config
	filter *logic.Filter
	log    *zap.SugaredLogger

	// Sleep is the settle delay between cycles. Tests replace it.
	Sleep func(time.Duration)

	errors atomic.Uint32
}

// NewSampler creates a Sampler reading from r.
func NewSampler(r gpio.Ranger, cfg Config, log *zap.SugaredLogger) *Sampler {
	if cfg.Cycles <= 0 {
		cfg.Cycles = DefaultConfig().Cycles
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Sampler{
		ranger: r,
		cfg:    cfg,
		filter: logic.NewFilter(cfg.Alpha),
		log:    log,
		Sleep:  time.Sleep,
	}
}

// PulseToMM converts an echo width to a one-way distance in millimetres
// (speed of sound 343 m/s, rounded to the nearest mm).
func PulseToMM(width time.Duration) int32 {
	return int32((width.Microseconds()*343 + 1000) / 2000)
}

// Sample runs one ranging cycle.
func (s *Sampler) Sample() logic.Reading {
	width, err := s.ranger.Ping()
	if err != nil {
		if !errors.Is(err, gpio.ErrEchoTimeout) {
			s.log.Debugf("sensor: ping: %v", err)
		}
		return logic.InvalidReading(logic.ErrorTimeout)
	}
	mm := PulseToMM(width)
	if mm < s.cfg.MinMM || mm > s.cfg.MaxMM {
		return logic.InvalidReading(logic.ErrorOutOfRange)
	}
	return logic.ValidReading(mm)
}

// FilteredSample runs a full round and returns the median/EMA reading.
func (s *Sampler) FilteredSample() logic.Reading {
	cycles := make([]logic.Reading, 0, s.cfg.Cycles)
	for i := 0; i < s.cfg.Cycles; i++ {
		if i > 0 && s.cfg.Settle > 0 {
			s.Sleep(s.cfg.Settle)
		}
		cycles = append(cycles, s.Sample())
	}

	r := s.filter.Apply(cycles)
	if !r.Valid {
		s.errors.Add(1)
		s.log.Warnf("sensor: %s (%d cycles)", r.Err, len(cycles))
	}
	return r
}

// Errors returns the number of rounds that produced no valid reading.
func (s *Sampler) Errors() uint32 {
	return s.errors.Load()
}
