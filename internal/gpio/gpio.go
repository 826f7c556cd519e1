// Package gpio drives a trigger/echo ultrasonic rangefinder (HC-SR04,
// JSN-SR04T) with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"time"

	"github.com/juju/errors"
)

// Ranger fires ranging cycles.
type Ranger interface {
	// Ping triggers one cycle and returns the echo pulse width.
	// Returns ErrEchoTimeout if no complete echo arrives in time.
	Ping() (time.Duration, error)

	// Close releases GPIO resources.
	Close() error
}

// ErrEchoTimeout is returned when the echo pulse does not start or end
// within the ranging timeout.
const ErrEchoTimeout = errors.ConstError("gpio: echo timeout")

// Pin definitions (BCM numbering)
const (
	DefaultPinTrigger = 23
	DefaultPinEcho    = 24
)

// DefaultTimeout bounds one ranging cycle; an echo from 4.5 m returns in ~26 ms.
const DefaultTimeout = 60 * time.Millisecond
