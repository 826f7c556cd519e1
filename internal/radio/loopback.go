package radio

import (
	"sync"

	"github.com/sweeney/tank-sensor/internal/protocol"
)

// Hub is an in-memory radio medium connecting Loopback drivers.
// Delivery is synchronous: Send calls the receiver's handler directly.
type Hub struct {
	mu    sync.Mutex
	nodes map[protocol.DeviceID]*Loopback
}

// NewHub creates an empty medium.
func NewHub() *Hub {
	return &Hub{nodes: make(map[protocol.DeviceID]*Loopback)}
}

// Attach returns a driver with the given address.
func (h *Hub) Attach(id protocol.DeviceID) *Loopback {
	l := &Loopback{hub: h, id: id, RSSI: -60}
	h.mu.Lock()
	h.nodes[id] = l
	h.mu.Unlock()
	return l
}

// Loopback is a Driver on a Hub. It records every frame it sends and can
// be told to reject sends to simulate link loss.
type Loopback struct {
	hub *Hub
	id  protocol.DeviceID

	mu      sync.Mutex
	handler Handler
	closed  bool
	txLog   [][]byte

	// RSSI is reported to receivers of frames from this driver.
	RSSI int8

	// Reject, if set, is consulted before each send; returning an error
	// fails that attempt.
	Reject func(dest protocol.DeviceID, frame []byte) error
}

// Send delivers frame to dest, or to every other driver for Broadcast.
func (l *Loopback) Send(dest protocol.DeviceID, frame []byte) error {
	l.mu.Lock()
	reject := l.Reject
	l.txLog = append(l.txLog, append([]byte(nil), frame...))
	l.mu.Unlock()

	if reject != nil {
		if err := reject(dest, frame); err != nil {
			return err
		}
	}

	l.hub.mu.Lock()
	var targets []*Loopback
	if dest == Broadcast {
		for id, n := range l.hub.nodes {
			if id != l.id {
				targets = append(targets, n)
			}
		}
	} else if n, ok := l.hub.nodes[dest]; ok {
		targets = append(targets, n)
	}
	l.hub.mu.Unlock()

	if len(targets) == 0 {
		return ErrUnknownPeer
	}
	for _, n := range targets {
		n.deliver(l.id, l.RSSI, frame)
	}
	return nil
}

func (l *Loopback) deliver(src protocol.DeviceID, rssi int8, frame []byte) {
	l.mu.Lock()
	h := l.handler
	closed := l.closed
	l.mu.Unlock()
	if h == nil || closed {
		return
	}
	h(src, rssi, append([]byte(nil), frame...))
}

// OnReceive installs the inbound handler.
func (l *Loopback) OnReceive(h Handler) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

// Close detaches the driver from the hub.
func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.hub.mu.Lock()
	delete(l.hub.nodes, l.id)
	l.hub.mu.Unlock()
	return nil
}

// TxLog returns copies of every frame sent.
func (l *Loopback) TxLog() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.txLog...)
}
