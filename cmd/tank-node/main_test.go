package main

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/juju/errors"

	"github.com/sweeney/tank-sensor/internal/config"
	"github.com/sweeney/tank-sensor/internal/logic"
	"github.com/sweeney/tank-sensor/internal/protocol"
	"github.com/sweeney/tank-sensor/internal/radio"
	"github.com/sweeney/tank-sensor/internal/sensor"
)

var (
	nodeID    = protocol.DeviceID{0x24, 0x6F, 0x28, 0x00, 0x00, 0x01}
	gatewayID = protocol.DeviceID{0x24, 0x6F, 0x28, 0x00, 0x00, 0xFE}
	epoch     = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

// scriptedSampler returns readings in order, repeating the last.
type scriptedSampler struct {
	readings []logic.Reading
	i        int
	errors   uint32
}

func (s *scriptedSampler) FilteredSample() logic.Reading {
	r := s.readings[s.i]
	if s.i < len(s.readings)-1 {
		s.i++
	}
	if !r.Valid {
		s.errors++
	}
	return r
}

func (s *scriptedSampler) Errors() uint32 { return s.errors }

func valid(mm ...int32) []logic.Reading {
	out := make([]logic.Reading, len(mm))
	for i, v := range mm {
		out[i] = logic.ValidReading(v)
	}
	return out
}

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type gatewayTap struct {
	records []protocol.Record
	errs    []error
}

// newTestNode wires a node to an in-memory gateway and returns the
// records the gateway decoded.
func newTestNode(t *testing.T, s sampler, mv uint16, opts nodeOptions) (*node, *gatewayTap) {
	t.Helper()
	hub := radio.NewHub()
	nodeDrv := hub.Attach(nodeID)
	gwDrv := hub.Attach(gatewayID)

	tap := &gatewayTap{}
	gwDrv.OnReceive(func(src protocol.DeviceID, rssi int8, frame []byte) {
		f, err := radio.UnmarshalFrame(frame)
		if err != nil {
			tap.errs = append(tap.errs, err)
			return
		}
		rec, _, err := protocol.Decode(f.Payload)
		if err != nil {
			tap.errs = append(tap.errs, err)
			return
		}
		tap.records = append(tap.records, rec)
	})

	tx := radio.NewTransmitter(nodeDrv, nodeID, gatewayID, radio.TxConfig{Retries: 1}, nil)
	if opts.LowBatteryMV == 0 {
		opts.LowBatteryMV = 3300
	}
	n := newNode(nodeID, s, sensor.FixedSupply(mv), logic.DefaultConfig(), tx, opts, epoch, nil)
	return n, tap
}

// runRunLoop drives runLoop for nTicks ticks, then sends signal.
func runRunLoop(t *testing.T, n *node, clock func() time.Time, nTicks int, signal os.Signal) (int, error) {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	kicks := make(chan struct{}, nTicks+1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(n, clock, tick, sig, func() { kicks <- struct{}{} })
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	err := <-errCh
	return len(kicks), err
}

func TestRunLoopFirstOnly(t *testing.T) {
	n, tap := newTestNode(t, &scriptedSampler{readings: valid(1000, 1004, 998, 1001)}, 3700, nodeOptions{})

	kicks, err := runRunLoop(t, n, fakeClock(epoch, 5*time.Second), 3, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if kicks != 4 {
		t.Errorf("expected 4 watchdog kicks, got %d", kicks)
	}

	if len(tap.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(tap.records))
	}
	rec := tap.records[0]
	if !rec.Flags.Has(protocol.FlagFirst) {
		t.Errorf("expected FIRST, got flags %#x", rec.Flags)
	}
	if rec.Distance != 1000 {
		t.Errorf("Distance: got %d, want 1000", rec.Distance)
	}
	if rec.Device != nodeID {
		t.Errorf("Device: got %s, want %s", rec.Device, nodeID)
	}
	if rec.Timestamp != uint32(epoch.Unix()) {
		t.Errorf("Timestamp: got %d, want %d", rec.Timestamp, epoch.Unix())
	}
	if rec.Health != nil || rec.Aggregate != nil {
		t.Error("FIRST should carry neither health nor aggregate")
	}
}

func TestRunLoopDelta(t *testing.T) {
	n, tap := newTestNode(t, &scriptedSampler{readings: valid(1000, 1005, 1020, 1022)}, 3700, nodeOptions{})

	_, err := runRunLoop(t, n, fakeClock(epoch, 5*time.Second), 3, syscall.SIGINT)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(tap.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(tap.records))
	}
	if got := tap.records[1].Flags.Reason(); got != "DELTA" {
		t.Errorf("second reason: got %s, want DELTA", got)
	}
	if tap.records[1].Distance != 1020 {
		t.Errorf("Distance: got %d, want 1020", tap.records[1].Distance)
	}
}

func TestHeartbeatCarriesAggregateAndHealth(t *testing.T) {
	opts := nodeOptions{Health: config.HealthHeartbeat, Aggregate: true}
	n, tap := newTestNode(t, &scriptedSampler{readings: valid(1000, 1005, 1002, 1004)}, 3700, opts)

	clock := fakeClock(epoch, 10*time.Second)
	for i := 0; i < 4; i++ {
		n.step(clock())
	}

	if len(tap.records) != 2 {
		t.Fatalf("expected FIRST and HEARTBEAT, got %d records", len(tap.records))
	}
	hb := tap.records[1]
	if !hb.Flags.Has(protocol.FlagHeartbeat) {
		t.Fatalf("expected HEARTBEAT, got flags %#x", hb.Flags)
	}
	if hb.Aggregate == nil {
		t.Fatal("expected aggregate on heartbeat")
	}
	if hb.Aggregate.Count != 3 || hb.Aggregate.Min != 1002 || hb.Aggregate.Max != 1005 {
		t.Errorf("aggregate: got %+v", *hb.Aggregate)
	}
	if hb.Health == nil {
		t.Fatal("expected health on heartbeat")
	}
	if hb.Health.UptimeS != 30 {
		t.Errorf("UptimeS: got %d, want 30", hb.Health.UptimeS)
	}
	if hb.Health.TxOK != 1 {
		t.Errorf("TxOK: got %d, want 1", hb.Health.TxOK)
	}
	if hb.RunCount < 3 {
		t.Errorf("RunCount: got %d, want >= 3", hb.RunCount)
	}
}

func TestHealthPolicies(t *testing.T) {
	tests := []struct {
		policy string
		want   bool
	}{
		{config.HealthNever, false},
		{config.HealthHeartbeat, false},
		{config.HealthAlways, true},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			n, tap := newTestNode(t, &scriptedSampler{readings: valid(1000)}, 3700, nodeOptions{Health: tt.policy})
			n.step(epoch)
			if len(tap.records) != 1 {
				t.Fatalf("expected 1 record, got %d", len(tap.records))
			}
			if got := tap.records[0].Health != nil; got != tt.want {
				t.Errorf("health on FIRST: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSensorErrorReported(t *testing.T) {
	readings := []logic.Reading{
		logic.InvalidReading(logic.ErrorTimeout),
		logic.InvalidReading(logic.ErrorTimeout),
		logic.ValidReading(1500),
	}
	n, tap := newTestNode(t, &scriptedSampler{readings: readings}, 3700, nodeOptions{})

	clock := fakeClock(epoch, 5*time.Second)
	for i := 0; i < 3; i++ {
		n.step(clock())
	}

	if len(tap.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(tap.records))
	}
	first := tap.records[0]
	if !first.Flags.Has(protocol.FlagSensorError) || first.Distance != 0 {
		t.Errorf("first: got flags %#x distance %d", first.Flags, first.Distance)
	}
	recovered := tap.records[1]
	if recovered.Flags.Has(protocol.FlagSensorError) {
		t.Error("recovered reading still flagged")
	}
	if recovered.Flags.Reason() != "DELTA" || recovered.Distance != 1500 {
		t.Errorf("recovered: got %s %d", recovered.Flags.Reason(), recovered.Distance)
	}
}

func TestLowBatteryFlag(t *testing.T) {
	n, tap := newTestNode(t, &scriptedSampler{readings: valid(900)}, 3200, nodeOptions{})
	n.step(epoch)

	if len(tap.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(tap.records))
	}
	if !tap.records[0].Flags.Has(protocol.FlagLowBattery) {
		t.Errorf("expected LOW_BATTERY, got flags %#x", tap.records[0].Flags)
	}
	if tap.records[0].BatteryMV != 3200 {
		t.Errorf("BatteryMV: got %d, want 3200", tap.records[0].BatteryMV)
	}
}

func TestTextForm(t *testing.T) {
	n, tap := newTestNode(t, &scriptedSampler{readings: valid(2100)}, 3700, nodeOptions{Form: protocol.FormText})
	n.step(epoch)

	if len(tap.errs) != 0 {
		t.Fatalf("decode errors: %v", tap.errs)
	}
	if len(tap.records) != 1 || tap.records[0].Distance != 2100 {
		t.Fatalf("unexpected records: %+v", tap.records)
	}
}

// failingSender fails every send with err.
type failingSender struct {
	err   error
	calls int
}

func (f *failingSender) Send([]byte) error {
	f.calls++
	return f.err
}

func (f *failingSender) Stats() radio.TxStats { return radio.TxStats{Failed: uint32(f.calls)} }

func TestOversizeCountedAsOverflow(t *testing.T) {
	tx := &failingSender{err: errors.Annotate(radio.ErrFrameTooLarge, "test")}
	n := newNode(nodeID, &scriptedSampler{readings: valid(1000)}, sensor.FixedSupply(3700), logic.DefaultConfig(), tx, nodeOptions{}, epoch, nil)

	if n.step(epoch) {
		t.Error("expected step to report no transmission")
	}
	if n.overflows != 1 {
		t.Errorf("overflows: got %d, want 1", n.overflows)
	}
}

func TestTransmitFailureKeepsRunning(t *testing.T) {
	tx := &failingSender{err: radio.ErrTransmitFailed}
	n := newNode(nodeID, &scriptedSampler{readings: valid(1000, 1100)}, sensor.FixedSupply(3700), logic.DefaultConfig(), tx, nodeOptions{}, epoch, nil)

	_, err := runRunLoop(t, n, fakeClock(epoch, 5*time.Second), 1, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if tx.calls != 2 {
		t.Errorf("send calls: got %d, want 2", tx.calls)
	}
	if n.overflows != 0 {
		t.Errorf("overflows: got %d, want 0", n.overflows)
	}
}

func TestSupplyFor(t *testing.T) {
	if _, ok := supplyFor(config.SupplyConfig{FixedMV: 5000}).(sensor.FixedSupply); !ok {
		t.Error("expected FixedSupply without a path")
	}
	if _, ok := supplyFor(config.SupplyConfig{Path: "/sys/x", Scale: 2}).(sensor.FileSupply); !ok {
		t.Error("expected FileSupply with a path")
	}
}
