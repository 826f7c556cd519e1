package uplink

import (
	"context"
	"sync"
)

// FakeUplink records forwarded messages for test assertions.
// It is safe for concurrent use.
type FakeUplink struct {
	mu sync.Mutex

	// Messages contains every successfully forwarded message.
	Messages []Message

	// Calls counts Forward invocations, successful or not.
	Calls int

	// ForwardError, if set, is returned by Forward.
	ForwardError error

	// FailNext fails that many subsequent calls with ErrUnavailable.
	FailNext int

	// Up controls the return value of IsUp.
	Up bool

	// TripOnFailure makes a failed Forward set Up to false and a
	// successful one set it back to true, like the HTTP and Redis sinks.
	TripOnFailure bool

	// Closed tracks if Close was called.
	Closed bool

	// OnForward, if set, runs after each Forward call has been recorded.
	OnForward func(m Message)
}

// NewFakeUplink creates a FakeUplink that reports up.
func NewFakeUplink() *FakeUplink {
	return &FakeUplink{Up: true}
}

// Name implements Uplink.
func (f *FakeUplink) Name() string { return "fake" }

// Forward implements Uplink.
func (f *FakeUplink) Forward(ctx context.Context, m Message) error {
	f.mu.Lock()
	hook := f.OnForward
	f.Calls++
	var err error
	switch {
	case f.ForwardError != nil:
		err = f.ForwardError
	case f.FailNext > 0:
		f.FailNext--
		err = ErrUnavailable
	default:
		f.Messages = append(f.Messages, m)
	}
	if f.TripOnFailure {
		f.Up = err == nil
	}
	f.mu.Unlock()

	if hook != nil {
		hook(m)
	}
	return err
}

// IsUp implements Uplink.
func (f *FakeUplink) IsUp() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Up
}

// SetUp changes the reported connectivity.
func (f *FakeUplink) SetUp(up bool) {
	f.mu.Lock()
	f.Up = up
	f.mu.Unlock()
}

// Sent returns a copy of the forwarded messages.
func (f *FakeUplink) Sent() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.Messages...)
}

// CallCount returns the number of Forward calls.
func (f *FakeUplink) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

// Close implements Uplink.
func (f *FakeUplink) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
