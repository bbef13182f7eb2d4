// Package traffic owns the live connection snapshot: the proxy pushes
// updates in, the dashboard and TUI read the derived flow graph out.
package traffic

import (
	"hash/fnv"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowdeck/flowdeck/internal/flowgraph"
	"github.com/flowdeck/flowdeck/internal/metrics"
)

// Snapshot is one observed state of the proxy's connection table.
type Snapshot struct {
	ID            string                 `json:"id"`
	ReceivedAt    time.Time              `json:"received_at"`
	Connections   []flowgraph.Connection `json:"connections"`
	UploadTotal   int64                  `json:"uploadTotal"`
	DownloadTotal int64                  `json:"downloadTotal"`
}

// Tracker holds the current snapshot and a memoized flow graph. The
// graph is derived state: recomputed only when the snapshot content
// actually changes, discarded with it otherwise.
type Tracker struct {
	mu      sync.RWMutex
	snap    Snapshot
	graph   *flowgraph.Graph
	graphOK bool
	hash    uint64

	hub     *Hub
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewTracker creates a tracker with an empty snapshot.
func NewTracker(m *metrics.Metrics, logger *slog.Logger) *Tracker {
	return &Tracker{
		hub:     NewHub(),
		metrics: m,
		logger:  logger,
	}
}

// Hub returns the snapshot fanout hub for event streams.
func (t *Tracker) Hub() *Hub {
	return t.hub
}

// Update replaces the live connection list and broadcasts the new
// snapshot. Returns the stored snapshot with its assigned ID.
func (t *Tracker) Update(conns []flowgraph.Connection, uploadTotal, downloadTotal int64) Snapshot {
	snap := Snapshot{
		ID:            uuid.NewString(),
		ReceivedAt:    time.Now(),
		Connections:   conns,
		UploadTotal:   uploadTotal,
		DownloadTotal: downloadTotal,
	}

	t.mu.Lock()
	t.snap = snap
	if h := hashConnections(conns); h != t.hash {
		t.hash = h
		t.graphOK = false // content changed, graph recomputed on demand
	}
	t.mu.Unlock()

	t.metrics.SnapshotsTotal.Inc()
	t.metrics.ActiveConnections.Set(float64(len(conns)))
	t.logger.Debug("snapshot updated", "id", snap.ID, "connections", len(conns))

	t.hub.Broadcast(snap)
	return snap
}

// Snapshot returns the current snapshot.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Graph returns the flow graph for the current snapshot, rebuilding it
// only when the connection content changed since the last call.
func (t *Tracker) Graph() *flowgraph.Graph {
	t.mu.RLock()
	if t.graphOK {
		g := t.graph
		t.mu.RUnlock()
		return g
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.graphOK {
		return t.graph
	}
	start := time.Now()
	t.graph = flowgraph.Build(t.snap.Connections)
	t.graphOK = true
	t.metrics.GraphBuildSeconds.Observe(time.Since(start).Seconds())
	return t.graph
}

// RoleOf resolves a node name against the current connection list.
func (t *Tracker) RoleOf(name string) flowgraph.Role {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return flowgraph.RoleOf(t.snap.Connections, name)
}

// hashConnections fingerprints the fields the aggregator reads, so an
// identical connection list does not invalidate the memoized graph.
func hashConnections(conns []flowgraph.Connection) uint64 {
	h := fnv.New64a()
	for _, c := range conns {
		h.Write([]byte(c.SourceIP))
		h.Write([]byte{0})
		h.Write([]byte(c.Rule))
		h.Write([]byte{0})
		h.Write([]byte(c.RulePayload))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(len(c.Chains))))
		for _, hop := range c.Chains {
			h.Write([]byte{0})
			h.Write([]byte(hop))
		}
		h.Write([]byte{1})
	}
	return h.Sum64()
}
