package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNodeDefaults(t *testing.T) {
	cfg, err := LoadNode("")
	require.NoError(t, err)

	assert.Equal(t, 11, cfg.Sensor.Samples)
	assert.Equal(t, 100*time.Millisecond, cfg.Sensor.Settle)
	assert.Equal(t, 60*time.Millisecond, cfg.Sensor.EchoTimeout)
	assert.Equal(t, int32(20), cfg.Sensor.MinMM)
	assert.Equal(t, int32(4500), cfg.Sensor.MaxMM)
	assert.InDelta(t, 0.3, cfg.Sensor.Alpha, 1e-9)
	assert.Equal(t, int32(15), cfg.Detector.Deadband)
	assert.Equal(t, int32(3), cfg.Detector.Hysteresis)
	assert.Equal(t, int32(100), cfg.Detector.SupplyDeadband)
	assert.Equal(t, 30*time.Second, cfg.Detector.Heartbeat)
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, 3, cfg.Radio.Retries)
	assert.Equal(t, 500*time.Millisecond, cfg.Radio.RetryDelay)
	assert.Equal(t, "binary", cfg.Form)
	assert.Equal(t, HealthHeartbeat, cfg.Health)
	assert.Equal(t, 3300, cfg.Supply.LowBatteryMV)
	assert.True(t, cfg.Aggregate)
}

func TestGatewayDefaultsNeedAnUplink(t *testing.T) {
	_, err := LoadGateway("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestGatewayFromYAML(t *testing.T) {
	path := writeFile(t, "gateway.yaml", `
id: "24:6F:28:00:00:FE"
mode: primary
radio:
  listen: "127.0.0.1:4300"
queue:
  capacity: 20
mqtt:
  broker: "tcp://broker:1883"
http:
  url: "http://backend:3000/api/telemetry"
`)
	cfg, err := LoadGateway(path)
	require.NoError(t, err)

	assert.Equal(t, "24:6F:28:00:00:FE", cfg.ID)
	assert.Equal(t, "127.0.0.1:4300", cfg.Radio.Listen)
	assert.Equal(t, 20, cfg.Queue.Capacity)
	assert.Equal(t, 16, cfg.Queue.Fallback)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "aguada/telemetry", cfg.MQTT.Topic)
	assert.Equal(t, "aguada/status", cfg.MQTT.StatusTopic)
	assert.Equal(t, 3, cfg.Forward.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Forward.BaseDelay)
	assert.Equal(t, 300*time.Second, cfg.Registry.OfflineTimeout)
	assert.Equal(t, 64, cfg.Registry.MaxNodes)
	assert.Equal(t, 60*time.Second, cfg.StatusInterval)
	assert.Equal(t, 30*time.Second, cfg.Watchdog)
	assert.Equal(t, 250, cfg.MaxFrame)
}

func TestGatewayEnvOverride(t *testing.T) {
	t.Setenv("TANK_HTTP_URL", "http://env:3000/api/telemetry")
	t.Setenv("TANK_QUEUE_CAPACITY", "7")

	cfg, err := LoadGateway("")
	require.NoError(t, err)
	assert.Equal(t, "http://env:3000/api/telemetry", cfg.HTTP.URL)
	assert.Equal(t, 7, cfg.Queue.Capacity)
}

func TestRepeaterNeedsUpstream(t *testing.T) {
	t.Setenv("TANK_MODE", "repeater")
	_, err := LoadGateway("")
	require.Error(t, err)

	t.Setenv("TANK_RADIO_UPSTREAM", "24:6F:28:00:00:FE")
	cfg, err := LoadGateway("")
	require.NoError(t, err)
	assert.Equal(t, ModeRepeater, cfg.Mode)
	assert.Equal(t, 3, cfg.MaxHops)
}

func TestNodeValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *NodeConfig)
	}{
		{"even samples", func(c *NodeConfig) { c.Sensor.Samples = 10 }},
		{"inverted window", func(c *NodeConfig) { c.Sensor.MinMM = 5000 }},
		{"window beyond wire range", func(c *NodeConfig) { c.Sensor.MaxMM = 40000 }},
		{"alpha zero", func(c *NodeConfig) { c.Sensor.Alpha = 0 }},
		{"no interval", func(c *NodeConfig) { c.Interval = 0 }},
		{"bad form", func(c *NodeConfig) { c.Form = "xml" }},
		{"bad health", func(c *NodeConfig) { c.Health = "sometimes" }},
		{"bad id", func(c *NodeConfig) { c.ID = "nope" }},
		{"bad upstream", func(c *NodeConfig) { c.Radio.Upstream = "" }},
		{"bad peer", func(c *NodeConfig) { c.Radio.Peers = map[string]string{"x": "127.0.0.1:1"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadNode("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNodeFromYAMLWithPeers(t *testing.T) {
	path := writeFile(t, "node.yaml", `
id: "24:6F:28:00:00:01"
form: text
radio:
  upstream: "24:6F:28:00:00:FE"
  peers:
    "24:6F:28:00:00:FE": "127.0.0.1:4210"
`)
	cfg, err := LoadNode(path)
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.Form)
	assert.Equal(t, "24:6F:28:00:00:FE", cfg.Radio.Upstream)
	require.Len(t, cfg.Radio.Peers, 1)
	for id, addr := range cfg.Radio.Peers {
		assert.Equal(t, DeviceID("24:6F:28:00:00:FE"), DeviceID(id))
		assert.Equal(t, "127.0.0.1:4210", addr)
	}
}

func TestGatewayFromJSON(t *testing.T) {
	path := writeFile(t, "gateway.json", `{"mode": "repeater", "max_hops": 2, "radio": {"upstream": "24:6F:28:00:00:FE"}}`)
	cfg, err := LoadGateway(path)
	require.NoError(t, err)
	assert.Equal(t, ModeRepeater, cfg.Mode)
	assert.Equal(t, 2, cfg.MaxHops)
	assert.Equal(t, ":4210", cfg.Radio.Listen)
}

func TestMissingFile(t *testing.T) {
	_, err := LoadNode(filepath.Join(t.TempDir(), "absent.hcl"))
	assert.Error(t, err)
}

func TestDeviceID(t *testing.T) {
	assert.True(t, DeviceID("").IsZero())
	assert.Equal(t, "24:6F:28:00:00:01", DeviceID("24:6f:28:00:00:01").String())
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger("debug")
	require.NoError(t, err)
	assert.True(t, log.Desugar().Core().Enabled(-1))

	_, err = NewLogger("loud")
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestResolveID(t *testing.T) {
	id, err := ResolveID("24:6f:28:00:00:01")
	require.NoError(t, err)
	assert.Equal(t, "24:6F:28:00:00:01", id.String())

	_, err = ResolveID("bogus")
	assert.Error(t, err)
}
