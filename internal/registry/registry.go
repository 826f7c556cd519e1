// Package registry tracks liveness of the nodes a gateway hears from.
package registry

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/tank-sensor/internal/protocol"
)

// Defaults.
const (
	DefaultOfflineTimeout = 300 * time.Second
	DefaultMaxNodes       = 64
)

// NodeInfo is the gateway's view of one sender.
type NodeInfo struct {
	ID           protocol.DeviceID
	Name         string
	FirstSeen    time.Time
	LastSeen     time.Time
	MessageCount uint64
	LastSignal   int8
	Online       bool
	RelayPeer    bool // last heard through a repeater
}

// Registry holds one NodeInfo per sender. Entries are never removed except
// to make room once MaxNodes is reached: the earliest-registered offline
// node goes first, then the earliest-registered node overall.
type Registry struct {
	mu       sync.RWMutex
	nodes    map[protocol.DeviceID]*NodeInfo
	timeout  time.Duration
	maxNodes int
	evicted  uint64
	log      *zap.SugaredLogger
}

// New creates a Registry. Zero arguments select the defaults.
func New(timeout time.Duration, maxNodes int, log *zap.SugaredLogger) *Registry {
	if timeout <= 0 {
		timeout = DefaultOfflineTimeout
	}
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{
		nodes:    make(map[protocol.DeviceID]*NodeInfo),
		timeout:  timeout,
		maxNodes: maxNodes,
		log:      log,
	}
}

// Sighting is one decoded frame as heard by the receiver.
type Sighting struct {
	ID      protocol.DeviceID
	Signal  int8
	Relayed bool
	At      time.Time
}

// Record applies s.
func (r *Registry) Record(s Sighting) {
	r.Observe(s.ID, s.Signal, s.Relayed, s.At)
}

// Flush records every sighting already pending on in without waiting and
// returns how many it applied.
func (r *Registry) Flush(in <-chan Sighting) int {
	n := 0
	for {
		select {
		case s := <-in:
			r.Record(s)
			n++
		default:
			return n
		}
	}
}

// Observe records a message from id, registering it if unknown.
// It returns the updated info and whether the node was newly registered.
func (r *Registry) Observe(id protocol.DeviceID, signal int8, relayed bool, now time.Time) (NodeInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		if len(r.nodes) >= r.maxNodes {
			r.evictLocked()
		}
		n = &NodeInfo{
			ID:        id,
			Name:      "node-" + id.Compact(),
			FirstSeen: now,
		}
		r.nodes[id] = n
		r.log.Infof("registry: registered %s", id)
	} else if !n.Online {
		r.log.Infof("registry: %s back online after %v", id, now.Sub(n.LastSeen).Truncate(time.Second))
	}

	n.LastSeen = now
	n.MessageCount++
	n.LastSignal = signal
	n.Online = true
	n.RelayPeer = relayed
	return *n, !ok
}

func (r *Registry) evictLocked() {
	var victim *NodeInfo
	for _, n := range r.nodes {
		if victim == nil ||
			(!n.Online && victim.Online) ||
			(n.Online == victim.Online && n.FirstSeen.Before(victim.FirstSeen)) {
			victim = n
		}
	}
	if victim != nil {
		delete(r.nodes, victim.ID)
		r.evicted++
		r.log.Warnf("registry: full (%d nodes), evicted %s", r.maxNodes, victim.ID)
	}
}

// Sweep marks nodes silent for longer than the offline timeout as offline
// and returns the ids that changed. Sweeping an offline node is a no-op.
func (r *Registry) Sweep(now time.Time) []protocol.DeviceID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed []protocol.DeviceID
	for id, n := range r.nodes {
		if n.Online && now.Sub(n.LastSeen) > r.timeout {
			n.Online = false
			changed = append(changed, id)
			r.log.Infof("registry: %s offline (last seen %v ago)", id, now.Sub(n.LastSeen).Truncate(time.Second))
		}
	}
	sortIDs(changed)
	return changed
}

// Get returns a copy of the info for id.
func (r *Registry) Get(id protocol.DeviceID) (NodeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	if !ok {
		return NodeInfo{}, false
	}
	return *n, true
}

// Snapshot returns copies of all entries ordered by id.
func (r *Registry) Snapshot() []NodeInfo {
	r.mu.RLock()
	out := make([]NodeInfo, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

// Counts returns the number of known and online nodes.
func (r *Registry) Counts() (known, online int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if n.Online {
			online++
		}
	}
	return len(r.nodes), online
}

// Evicted returns how many entries were dropped to make room.
func (r *Registry) Evicted() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evicted
}

func sortIDs(ids []protocol.DeviceID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
