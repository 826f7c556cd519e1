//go:build linux

package gpio

import (
	"time"

	"github.com/juju/errors"
	"github.com/warthog618/go-gpiocdev"
)

// triggerPulse is the trigger high time required by the module.
const triggerPulse = 10 * time.Microsecond

// RealRanger drives the rangefinder through the GPIO character device.
// Echo edges are timestamped by the kernel, so the measured width does not
// depend on goroutine scheduling.
type RealRanger struct {
	chip    *gpiocdev.Chip
	trigger *gpiocdev.Line
	echo    *gpiocdev.Line
	edges   chan gpiocdev.LineEvent
	timeout time.Duration
}

// NewRealRanger requests the trigger and echo lines on gpiochip0.
func NewRealRanger(pinTrigger, pinEcho int, timeout time.Duration) (*RealRanger, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	chip, err := gpiocdev.NewChip("gpiochip0", gpiocdev.WithConsumer("tank-node"))
	if err != nil {
		return nil, errors.Annotate(err, "open gpio chip")
	}

	r := &RealRanger{
		chip:    chip,
		edges:   make(chan gpiocdev.LineEvent, 8),
		timeout: timeout,
	}

	r.trigger, err = chip.RequestLine(pinTrigger, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, errors.Annotatef(err, "request trigger pin %d", pinTrigger)
	}

	r.echo, err = chip.RequestLine(pinEcho,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(r.onEdge))
	if err != nil {
		r.trigger.Close()
		chip.Close()
		return nil, errors.Annotatef(err, "request echo pin %d", pinEcho)
	}

	return r, nil
}

// onEdge runs on the gpiocdev watcher goroutine and must not block.
func (r *RealRanger) onEdge(evt gpiocdev.LineEvent) {
	select {
	case r.edges <- evt:
	default:
	}
}

// Ping fires the trigger and measures the echo high time.
func (r *RealRanger) Ping() (time.Duration, error) {
	// Discard edges left over from a previous timed-out cycle.
	for len(r.edges) > 0 {
		<-r.edges
	}

	if err := r.trigger.SetValue(1); err != nil {
		return 0, errors.Annotate(err, "set trigger")
	}
	time.Sleep(triggerPulse)
	if err := r.trigger.SetValue(0); err != nil {
		return 0, errors.Annotate(err, "clear trigger")
	}

	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()

	var rise time.Duration
	risen := false
	for {
		select {
		case evt := <-r.edges:
			switch evt.Type {
			case gpiocdev.LineEventRisingEdge:
				rise = evt.Timestamp
				risen = true
			case gpiocdev.LineEventFallingEdge:
				if risen {
					return evt.Timestamp - rise, nil
				}
			}
		case <-deadline.C:
			return 0, ErrEchoTimeout
		}
	}
}

// Close releases GPIO resources.
// The trigger is driven low and returned to an input before release.
func (r *RealRanger) Close() error {
	var errs []error

	if r.trigger != nil {
		if err := r.trigger.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, errors.Annotate(err, "reconfigure trigger pin"))
		}
		if err := r.trigger.Close(); err != nil {
			errs = append(errs, errors.Annotate(err, "close trigger pin"))
		}
	}
	if r.echo != nil {
		if err := r.echo.Close(); err != nil {
			errs = append(errs, errors.Annotate(err, "close echo pin"))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, errors.Annotate(err, "close chip"))
		}
	}

	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}
