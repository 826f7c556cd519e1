// Package status provides a thread-safe status tracker for the gateway
// daemon. It is read by the HTTP handlers and the periodic status publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/tank-sensor/internal/gateway"
	"github.com/sweeney/tank-sensor/internal/registry"
)

// NetworkInfo contains host network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Gateway          string // own device id
	Mode             string // primary or repeater
	Uplink           string // uplink name, empty in repeater mode
	Broker           string
	HTTPPort         string
	OfflineTimeoutMs int64
	StatusIntervalMs int64
	MaxAttempts      int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Pipeline        gateway.StatsSnapshot
	Nodes           []registry.NodeInfo
	Evicted         uint64
	StartTime       time.Time
	Now             time.Time
	UplinkConnected bool
	Network         *NetworkInfo
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// NodeCounts returns the number of known and online nodes.
func (s Snapshot) NodeCounts() (known, online int) {
	for _, n := range s.Nodes {
		if n.Online {
			online++
		}
	}
	return len(s.Nodes), online
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update replaces the pipeline counters and the node list.
func (t *Tracker) Update(pipeline gateway.StatsSnapshot, nodes []registry.NodeInfo, evicted uint64) {
	t.mu.Lock()
	t.snap.Pipeline = pipeline
	t.snap.Nodes = nodes
	t.snap.Evicted = evicted
	t.mu.Unlock()
}

// SetUplinkConnected sets the uplink connection status.
func (t *Tracker) SetUplinkConnected(connected bool) {
	t.mu.Lock()
	t.snap.UplinkConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Nodes = append([]registry.NodeInfo(nil), t.snap.Nodes...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
