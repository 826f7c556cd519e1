//go:build !linux

package gpio

import (
	"time"

	"github.com/juju/errors"
)

// RealRanger is not available on non-Linux platforms.
type RealRanger struct{}

// NewRealRanger returns an error on non-Linux platforms.
func NewRealRanger(pinTrigger, pinEcho int, timeout time.Duration) (*RealRanger, error) {
	return nil, errors.NotSupportedf("gpio on this platform (requires Linux)")
}

// Ping is not implemented on non-Linux platforms.
func (r *RealRanger) Ping() (time.Duration, error) {
	return 0, errors.NotSupportedf("gpio")
}

// Close is not implemented on non-Linux platforms.
func (r *RealRanger) Close() error {
	return nil
}
