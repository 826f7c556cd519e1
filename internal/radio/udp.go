package radio

import (
	"net"
	"sync"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/sweeney/tank-sensor/internal/protocol"
)

// UDPDriver carries link frames in UDP datagrams, one frame per datagram
// prefixed with the sender address. It stands in for the radio on wired
// test benches and for gateways bridged to a radio co-processor over IP.
// Signal strength is not observable and is reported as 0.
type UDPDriver struct {
	self  protocol.DeviceID
	conn  net.PacketConn
	peers map[protocol.DeviceID]net.Addr
	log   *zap.SugaredLogger

	mu      sync.Mutex
	handler Handler

	done chan struct{}
}

// NewUDPDriver listens on addr. Peers maps device ids to host:port.
func NewUDPDriver(self protocol.DeviceID, addr string, peers map[string]string, log *zap.SugaredLogger) (*UDPDriver, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	d := &UDPDriver{
		self:  self,
		peers: make(map[protocol.DeviceID]net.Addr, len(peers)),
		log:   log,
		done:  make(chan struct{}),
	}
	for id, hostport := range peers {
		dev, err := protocol.ParseDeviceID(id)
		if err != nil {
			return nil, errors.Annotate(err, "radio peer")
		}
		ua, err := net.ResolveUDPAddr("udp", hostport)
		if err != nil {
			return nil, errors.Annotatef(err, "resolve peer %s", id)
		}
		d.peers[dev] = ua
	}

	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "listen %s", addr)
	}
	d.conn = conn
	return d, nil
}

// Addr returns the local listening address.
func (d *UDPDriver) Addr() net.Addr {
	return d.conn.LocalAddr()
}

// Send writes the frame to dest, or to every peer for Broadcast.
func (d *UDPDriver) Send(dest protocol.DeviceID, frame []byte) error {
	if len(frame) > MTU {
		return errors.Annotatef(ErrFrameTooLarge, "%d bytes", len(frame))
	}
	dgram := make([]byte, 0, 6+len(frame))
	dgram = append(dgram, d.self[:]...)
	dgram = append(dgram, frame...)

	if dest == Broadcast {
		if len(d.peers) == 0 {
			return ErrUnknownPeer
		}
		var firstErr error
		for _, a := range d.peers {
			if _, err := d.conn.WriteTo(dgram, a); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	a, ok := d.peers[dest]
	if !ok {
		return errors.Annotatef(ErrUnknownPeer, "%s", dest)
	}
	_, err := d.conn.WriteTo(dgram, a)
	return err
}

// OnReceive installs the inbound handler.
func (d *UDPDriver) OnReceive(h Handler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

// Run reads datagrams until Close. It is the driver's receive path.
func (d *UDPDriver) Run() error {
	buf := make([]byte, 6+MTU+1)
	for {
		n, from, err := d.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-d.done:
				return nil
			default:
			}
			return errors.Annotate(err, "radio read")
		}
		if n < 6 {
			d.log.Debugf("radio: runt datagram from %s", from)
			continue
		}
		var src protocol.DeviceID
		copy(src[:], buf[:6])

		d.mu.Lock()
		h := d.handler
		d.mu.Unlock()
		if h != nil {
			h(src, 0, buf[6:n])
		}
	}
}

// Close stops Run and closes the socket.
func (d *UDPDriver) Close() error {
	select {
	case <-d.done:
		return nil
	default:
		close(d.done)
	}
	return d.conn.Close()
}
