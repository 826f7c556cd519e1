package radio

import (
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/sweeney/tank-sensor/internal/protocol"
)

// TxConfig bounds local retries.
type TxConfig struct {
	Retries    int           // total attempts per frame
	RetryDelay time.Duration // fixed delay between attempts
}

// DefaultTxConfig is 3 attempts, 500 ms apart.
func DefaultTxConfig() TxConfig {
	return TxConfig{Retries: 3, RetryDelay: 500 * time.Millisecond}
}

// TxStats is a snapshot of transmitter counters.
type TxStats struct {
	Sent     uint32
	Failed   uint32
	Attempts uint32
}

// Transmitter hands frames to a Driver with bounded retry.
// Delivery beyond the link-layer ack is not guaranteed.
type Transmitter struct {
	drv  Driver
	self protocol.DeviceID
	dest protocol.DeviceID
	cfg  TxConfig
	log  *zap.SugaredLogger

	// Sleep waits between attempts. Tests replace it.
	Sleep func(time.Duration)

	sent     atomic.Uint32
	failed   atomic.Uint32
	attempts atomic.Uint32
}

// NewTransmitter sends frames originated by self to dest over drv.
func NewTransmitter(drv Driver, self, dest protocol.DeviceID, cfg TxConfig, log *zap.SugaredLogger) *Transmitter {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Transmitter{
		drv:   drv,
		self:  self,
		dest:  dest,
		cfg:   cfg,
		log:   log,
		Sleep: time.Sleep,
	}
}

// Send transmits a locally produced payload.
func (t *Transmitter) Send(payload []byte) error {
	return t.Forward(Frame{Origin: t.self, Payload: payload})
}

// Forward transmits a frame keeping its origin and hop count.
func (t *Transmitter) Forward(f Frame) error {
	b, err := f.Marshal()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= t.cfg.Retries; attempt++ {
		if attempt > 1 && t.cfg.RetryDelay > 0 {
			t.Sleep(t.cfg.RetryDelay)
		}
		t.attempts.Add(1)
		if lastErr = t.drv.Send(t.dest, b); lastErr == nil {
			t.sent.Add(1)
			return nil
		}
		t.log.Debugf("radio: attempt %d/%d to %s: %v", attempt, t.cfg.Retries, t.dest, lastErr)
	}

	t.failed.Add(1)
	t.log.Warnf("radio: giving up on %s after %d attempts: %v", t.dest, t.cfg.Retries, lastErr)
	return errors.Annotatef(ErrTransmitFailed, "%s: %v", t.dest, lastErr)
}

// Stats returns the counters.
func (t *Transmitter) Stats() TxStats {
	return TxStats{
		Sent:     t.sent.Load(),
		Failed:   t.failed.Load(),
		Attempts: t.attempts.Load(),
	}
}
