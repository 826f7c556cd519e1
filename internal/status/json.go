package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/tank-sensor/internal/registry"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Gateway       string       `json:"gateway"`
	Mode          string       `json:"mode"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Uplink        UplinkStatus `json:"uplink"`
	Queue         QueueJSON    `json:"queue"`
	Counters      CountersJSON `json:"counters"`
	Nodes         NodeCounts   `json:"nodes"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// UplinkStatus reports uplink connection state.
type UplinkStatus struct {
	Name      string `json:"name,omitempty"`
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// QueueJSON reports delivery queue occupancy.
type QueueJSON struct {
	Len         int `json:"len"`
	Cap         int `json:"cap"`
	FallbackLen int `json:"fallback_len"`
	FallbackCap int `json:"fallback_cap"`
}

// CountersJSON is the JSON representation of the pipeline counters.
type CountersJSON struct {
	Received   uint64 `json:"received"`
	Forwarded  uint64 `json:"sent"`
	Failed     uint64 `json:"failed"`
	Dropped    uint64 `json:"dropped"`
	Malformed  uint64 `json:"malformed"`
	Checksum   uint64 `json:"checksum_errors"`
	Oversize   uint64 `json:"oversize"`
	Rejected   uint64 `json:"rejected"`
	Retries    uint64 `json:"retries"`
	Buffered   uint64 `json:"buffered"`
	Replayed   uint64 `json:"replayed"`
	Unobserved uint64 `json:"unobserved"`
}

// NodeCounts summarises the registry.
type NodeCounts struct {
	Known   int    `json:"known"`
	Online  int    `json:"online"`
	Evicted uint64 `json:"evicted"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker           string `json:"broker,omitempty"`
	HTTPPort         string `json:"http_port"`
	OfflineTimeoutMs int64  `json:"offline_timeout_ms"`
	StatusIntervalMs int64  `json:"status_interval_ms"`
	MaxAttempts      int    `json:"max_attempts"`
}

// NodeJSON is one entry of the node list.
type NodeJSON struct {
	MAC       string `json:"mac"`
	Name      string `json:"name"`
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`
	Messages  uint64 `json:"messages"`
	RSSI      int8   `json:"rssi"`
	Online    bool   `json:"online"`
	Relayed   bool   `json:"relayed"`
}

// NodesJSON is the envelope of the node list.
type NodesJSON struct {
	Nodes []NodeJSON `json:"nodes"`
}

func buildInner(snap Snapshot) StatusInner {
	p := snap.Pipeline
	known, online := snap.NodeCounts()
	mode := snap.Config.Mode
	if mode == "" {
		mode = "primary"
	}

	return StatusInner{
		Gateway:       snap.Config.Gateway,
		Mode:          mode,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Uplink: UplinkStatus{
			Name:      snap.Config.Uplink,
			Connected: snap.UplinkConnected,
			Broker:    snap.Config.Broker,
		},
		Queue: QueueJSON{
			Len:         p.QueueLen,
			Cap:         p.QueueCap,
			FallbackLen: p.FallbackLen,
			FallbackCap: p.FallbackCap,
		},
		Counters: CountersJSON{
			Received:   p.Received,
			Forwarded:  p.Forwarded,
			Failed:     p.Failed,
			Dropped:    p.Dropped,
			Malformed:  p.Malformed,
			Checksum:   p.ChecksumErrors,
			Oversize:   p.Oversize,
			Rejected:   p.Rejected,
			Retries:    p.Retries,
			Buffered:   p.Fallback,
			Replayed:   p.Replayed,
			Unobserved: p.Unobserved,
		},
		Nodes: NodeCounts{Known: known, Online: online, Evicted: snap.Evicted},
		Config: ConfigJSON{
			Broker:           snap.Config.Broker,
			HTTPPort:         snap.Config.HTTPPort,
			OfflineTimeoutMs: snap.Config.OfflineTimeoutMs,
			StatusIntervalMs: snap.Config.StatusIntervalMs,
			MaxAttempts:      snap.Config.MaxAttempts,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatNodesJSON returns the node list for the web endpoint.
func FormatNodesJSON(nodes []registry.NodeInfo) []byte {
	out := NodesJSON{Nodes: make([]NodeJSON, 0, len(nodes))}
	for _, n := range nodes {
		out.Nodes = append(out.Nodes, NodeJSON{
			MAC:       n.ID.String(),
			Name:      n.Name,
			FirstSeen: n.FirstSeen.UTC().Format(time.RFC3339),
			LastSeen:  n.LastSeen.UTC().Format(time.RFC3339),
			Messages:  n.MessageCount,
			RSSI:      n.LastSignal,
			Online:    n.Online,
			Relayed:   n.RelayPeer,
		})
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return data
}
