package gpio

import (
	"time"

	"github.com/juju/errors"
)

// FakeRanger is a test double that returns scripted echoes.
type FakeRanger struct {
	// Echoes contains scripted results. Each call to Ping() consumes the next.
	Echoes []Echo

	// index tracks current position in Echoes
	index int

	// Pings counts calls to Ping.
	Pings int

	// Closed tracks if Close was called
	Closed bool
}

// Echo is one scripted ranging result.
type Echo struct {
	Width time.Duration
	Err   error
}

// EchoFor returns the echo width a target at mm millimetres would produce.
func EchoFor(mm int32) Echo {
	return Echo{Width: time.Duration(int64(mm)*2000/343) * time.Microsecond}
}

// NewFakeRanger creates a FakeRanger with the given echoes.
func NewFakeRanger(echoes ...Echo) *FakeRanger {
	return &FakeRanger{Echoes: echoes}
}

// Ping returns the next scripted echo.
// If echoes are exhausted, returns the last one repeatedly.
func (f *FakeRanger) Ping() (time.Duration, error) {
	f.Pings++
	if len(f.Echoes) == 0 {
		return 0, errors.New("no echoes configured")
	}

	e := f.Echoes[f.index]
	if f.index < len(f.Echoes)-1 {
		f.index++
	}
	return e.Width, e.Err
}

// Close marks the ranger as closed.
func (f *FakeRanger) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds to the first echo.
func (f *FakeRanger) Reset() {
	f.index = 0
	f.Pings = 0
	f.Closed = false
}
