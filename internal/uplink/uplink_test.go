package uplink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/tank-sensor/internal/protocol"
)

var (
	gwID   = protocol.DeviceID{0x24, 0x6F, 0x28, 0, 0, 0xFE}
	nodeID = protocol.DeviceID{0x24, 0x6F, 0x28, 0, 0, 0x01}
	recvAt = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
)

func testMessage() Message {
	rec := protocol.Record{
		Device:    nodeID,
		Timestamp: 1767268800,
		Distance:  1234,
		BatteryMV: 3250,
		Signal:    -71,
		Flags:     protocol.FlagHeartbeat | protocol.FlagLowBattery | protocol.FlagAggregated,
		RunCount:  12,
		Aggregate: &protocol.Aggregate{Min: 1200, Max: 1250, Avg: 1230, Count: 6},
	}
	return NewMessage(gwID, rec, -58, 1, recvAt)
}

func TestNewMessage(t *testing.T) {
	m := testMessage()

	_, err := uuid.Parse(m.ID)
	assert.NoError(t, err)
	assert.Equal(t, "24:6F:28:00:00:FE", m.Gateway)
	assert.Equal(t, "24:6F:28:00:00:01", m.MAC)
	assert.Equal(t, "2026-01-01T12:00:00Z", m.ReceivedAt)
	assert.Equal(t, "HEARTBEAT", m.Reason)
	assert.True(t, m.LowBattery)
	assert.False(t, m.SensorError)
	assert.Equal(t, int8(-71), m.RSSI)
	assert.Equal(t, int8(-58), m.GatewayRSSI)
	assert.Equal(t, uint8(1), m.Hops)
	require.NotNil(t, m.Aggregate)
	assert.Equal(t, int16(1230), m.Aggregate.Avg)
	assert.Nil(t, m.Health)

	assert.NotEqual(t, m.ID, testMessage().ID, "ids must be unique")
}

func TestMessageJSON(t *testing.T) {
	b, err := testMessage().JSON()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, float64(1234), raw["distance_mm"])
	assert.Equal(t, float64(3250), raw["vcc_bat_mv"])
	assert.Equal(t, "24:6F:28:00:00:01", raw["mac"])
	assert.Contains(t, raw, "agg")
	assert.NotContains(t, raw, "health")
	assert.NotContains(t, raw, "sensor_error")
}

func TestHTTPForward(t *testing.T) {
	var got Message
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/telemetry", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{URL: srv.URL + "/api/telemetry", Token: "s3cret"})
	require.NoError(t, err)
	defer h.Close()

	m := testMessage()
	require.NoError(t, h.Forward(context.Background(), m))
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, "Bearer s3cret", auth)
	assert.True(t, h.IsUp())
}

func TestHTTPServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{URL: srv.URL, Recheck: time.Hour})
	require.NoError(t, err)

	err = h.Forward(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.False(t, h.IsUp())
}

func TestHTTPUnreachableRecovers(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{URL: srv.URL, Recheck: time.Minute})
	require.NoError(t, err)
	now := recvAt
	h.br.now = func() time.Time { return now }

	assert.True(t, h.IsUp(), "optimistic before first attempt")
	assert.Error(t, h.Forward(context.Background(), testMessage()))
	assert.False(t, h.IsUp())

	now = now.Add(time.Minute)
	assert.True(t, h.IsUp(), "half-open after recheck")

	fail.Store(false)
	require.NoError(t, h.Forward(context.Background(), testMessage()))
	assert.True(t, h.IsUp())
}

func TestHTTPConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h, err := NewHTTP(HTTPConfig{URL: url, Timeout: time.Second})
	require.NoError(t, err)
	err = h.Forward(context.Background(), testMessage())
	assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
}

func TestNewHTTPValidates(t *testing.T) {
	_, err := NewHTTP(HTTPConfig{})
	assert.Error(t, err)
}

func TestRedisUnreachable(t *testing.T) {
	_, err := NewRedisStream(RedisConfig{Addr: "127.0.0.1:6379"})
	assert.Error(t, err, "stream is required")

	r, err := NewRedisStream(RedisConfig{Addr: "127.0.0.1:1", Stream: "tank:telemetry", MaxLen: 1000})
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = r.Forward(ctx, testMessage())
	assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
	assert.False(t, r.IsUp())
	assert.Equal(t, "redis", r.Name())
}

func TestFailover(t *testing.T) {
	primary := NewFakeUplink()
	secondary := NewFakeUplink()
	f := NewFailover(primary, secondary)
	assert.Equal(t, "fake+fake", f.Name())

	// Primary healthy.
	require.NoError(t, f.Forward(context.Background(), testMessage()))
	assert.Len(t, primary.Sent(), 1)
	assert.Empty(t, secondary.Sent())

	// Primary fails: secondary takes it.
	primary.FailNext = 1
	require.NoError(t, f.Forward(context.Background(), testMessage()))
	assert.Len(t, primary.Sent(), 1)
	assert.Len(t, secondary.Sent(), 1)

	// Primary down: skipped without a call.
	primary.SetUp(false)
	calls := primary.CallCount()
	require.NoError(t, f.Forward(context.Background(), testMessage()))
	assert.Equal(t, calls, primary.CallCount())
	assert.Len(t, secondary.Sent(), 2)
	assert.True(t, f.IsUp())

	// Everything down: each member is still tried, in order.
	secondary.SetUp(false)
	assert.False(t, f.IsUp())
	primary.FailNext = 1
	pCalls, sCalls := primary.CallCount(), secondary.CallCount()
	require.NoError(t, f.Forward(context.Background(), testMessage()))
	assert.Equal(t, pCalls+1, primary.CallCount())
	assert.Equal(t, sCalls+1, secondary.CallCount())
	assert.Len(t, secondary.Sent(), 3)

	primary.FailNext, secondary.FailNext = 1, 1
	err := f.Forward(context.Background(), testMessage())
	assert.True(t, errors.Is(err, ErrUnavailable))

	// Both up, both failing.
	primary.SetUp(true)
	secondary.SetUp(true)
	primary.FailNext, secondary.FailNext = 1, 1
	err = f.Forward(context.Background(), testMessage())
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "fake: ")

	require.NoError(t, f.Close())
	assert.True(t, primary.Closed)
	assert.True(t, secondary.Closed)
}

func TestFailoverEmpty(t *testing.T) {
	err := NewFailover().Forward(context.Background(), testMessage())
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "no sink up")
}

func TestFakeUplinkTrips(t *testing.T) {
	f := NewFakeUplink()
	f.TripOnFailure = true
	f.FailNext = 1

	err := f.Forward(context.Background(), testMessage())
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.False(t, f.IsUp(), "failure should trip the fake down")

	require.NoError(t, f.Forward(context.Background(), testMessage()))
	assert.True(t, f.IsUp(), "success should bring it back up")
	assert.Equal(t, 2, f.CallCount())
}
