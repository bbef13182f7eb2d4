package traffic

import (
	"io"
	"log/slog"
	"testing"

	"github.com/flowdeck/flowdeck/internal/flowgraph"
	"github.com/flowdeck/flowdeck/internal/metrics"
)

func newTestTracker() *Tracker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTracker(metrics.New(), logger)
}

func testConns() []flowgraph.Connection {
	return []flowgraph.Connection{
		{SourceIP: "10.0.0.2", Rule: "DOMAIN", RulePayload: "a.com", Chains: []string{"hk", "us"}},
		{SourceIP: "10.0.0.3", Rule: "MATCH", Chains: []string{"direct"}},
	}
}

func TestTracker_GraphMemoized(t *testing.T) {
	tr := newTestTracker()
	tr.Update(testConns(), 10, 20)

	g1 := tr.Graph()
	g2 := tr.Graph()
	if g1 != g2 {
		t.Error("unchanged snapshot should reuse the memoized graph")
	}

	// Same content under a new snapshot ID keeps the memo.
	tr.Update(testConns(), 11, 21)
	if g3 := tr.Graph(); g3 != g1 {
		t.Error("identical connection content should not invalidate the graph")
	}

	// Changed content rebuilds.
	conns := testConns()
	conns[0].Chains = []string{"jp", "us"}
	tr.Update(conns, 12, 22)
	g4 := tr.Graph()
	if g4 == g1 {
		t.Error("changed connection content should rebuild the graph")
	}
	if len(g4.Nodes) == 0 {
		t.Error("rebuilt graph is empty")
	}
}

func TestTracker_RoleOf(t *testing.T) {
	tr := newTestTracker()
	tr.Update(testConns(), 0, 0)

	if got := tr.RoleOf("10.0.0.2"); got != flowgraph.RoleSource {
		t.Errorf("RoleOf = %q, want %q", got, flowgraph.RoleSource)
	}
	if got := tr.RoleOf("gone"); got != flowgraph.RoleUnknown {
		t.Errorf("RoleOf = %q, want %q", got, flowgraph.RoleUnknown)
	}
}

func TestHub_Broadcast(t *testing.T) {
	tr := newTestTracker()
	ch := tr.Hub().Subscribe()
	defer tr.Hub().Unsubscribe(ch)

	want := tr.Update(testConns(), 1, 2)

	select {
	case got := <-ch:
		if got.ID != want.ID {
			t.Errorf("broadcast snapshot id = %q, want %q", got.ID, want.ID)
		}
		if len(got.Connections) != 2 {
			t.Errorf("broadcast connections = %d, want 2", len(got.Connections))
		}
	default:
		t.Fatal("no snapshot broadcast")
	}
}

func TestHub_SlowSubscriberDropped(t *testing.T) {
	tr := newTestTracker()
	ch := tr.Hub().Subscribe()
	defer tr.Hub().Unsubscribe(ch)

	// Overflow the buffer; Update must never block.
	for range 20 {
		tr.Update(testConns(), 0, 0)
	}

	if n := len(ch); n != cap(ch) {
		t.Errorf("buffered snapshots = %d, want full buffer %d", n, cap(ch))
	}
}
