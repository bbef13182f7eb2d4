package flowgraph

import (
	"reflect"
	"testing"
)

func conn(src, rule, payload string, chains ...string) Connection {
	return Connection{SourceIP: src, Rule: rule, RulePayload: payload, Chains: chains}
}

func TestBuild_BasicFlow(t *testing.T) {
	conns := []Connection{
		conn("10.0.0.2", "DOMAIN-SUFFIX", "example.com", "entry-hk", "relay", "exit-us"),
	}

	g := Build(conns)
	if len(g.Nodes) != 4 {
		t.Fatalf("nodes = %d, want 4", len(g.Nodes))
	}
	if len(g.Edges) != 3 {
		t.Fatalf("edges = %d, want 3", len(g.Edges))
	}

	wantNames := []string{"10.0.0.2", "DOMAIN-SUFFIX: example.com", "exit-us", "entry-hk"}
	wantLayers := []Layer{LayerSource, LayerRule, LayerChainExit, LayerChainEntry}
	for i, n := range g.Nodes {
		if n.ID != i {
			t.Errorf("node %d id = %d, want %d", i, n.ID, i)
		}
		if n.Name != wantNames[i] {
			t.Errorf("node %d name = %q, want %q", i, n.Name, wantNames[i])
		}
		if n.Layer != wantLayers[i] {
			t.Errorf("node %d layer = %d, want %d", i, n.Layer, wantLayers[i])
		}
		if n.Color != wantLayers[i].Color() {
			t.Errorf("node %d color = %q, want %q", i, n.Color, wantLayers[i].Color())
		}
	}

	// source→rule, rule→exit, exit→entry in fixed order
	wantEdges := []Edge{
		{Source: 0, Target: 1, Weight: 1},
		{Source: 1, Target: 2, Weight: 1},
		{Source: 2, Target: 3, Weight: 1},
	}
	if !reflect.DeepEqual(g.Edges, wantEdges) {
		t.Errorf("edges = %+v, want %+v", g.Edges, wantEdges)
	}
}

func TestBuild_EmptyInput(t *testing.T) {
	for _, conns := range [][]Connection{
		nil,
		{},
		{conn("10.0.0.2", "MATCH", "")}, // no chain
	} {
		g := Build(conns)
		if !g.Empty() {
			t.Errorf("Build(%v) not empty: %d nodes, %d edges", conns, len(g.Nodes), len(g.Edges))
		}
		if g.Nodes == nil || g.Edges == nil {
			t.Error("empty graph should carry empty slices, not nil")
		}
	}
}

func TestBuild_WeightAccumulation(t *testing.T) {
	conns := []Connection{
		conn("10.0.0.2", "MATCH", "", "proxy-a"),
		conn("10.0.0.2", "MATCH", "", "proxy-a"),
		conn("10.0.0.3", "MATCH", "", "proxy-a"),
	}

	g := Build(conns)

	find := func(source, target int) Edge {
		t.Helper()
		for _, e := range g.Edges {
			if e.Source == source && e.Target == target {
				return e
			}
		}
		t.Fatalf("no edge %d→%d", source, target)
		return Edge{}
	}

	// Nodes: 0=10.0.0.2, 1=MATCH, 2=proxy-a (exit, first seen), 3=10.0.0.3
	if got := find(0, 1).Weight; got != 2 {
		t.Errorf("source→rule weight = %d, want 2", got)
	}
	// Single-hop chain: entry and exit are the same node, so rule→exit
	// accumulates across all three records and exit→entry self-loops.
	if got := find(1, 2).Weight; got != 3 {
		t.Errorf("rule→exit weight = %d, want 3", got)
	}
	if got := find(3, 1).Weight; got != 1 {
		t.Errorf("second source→rule weight = %d, want 1", got)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	conns := []Connection{
		conn("10.0.0.2", "DOMAIN", "a.com", "hk", "us"),
		conn("", "MATCH", "", "us"),
		conn("10.0.0.9", "DOMAIN", "a.com", "hk", "us"),
	}

	a := Build(conns)
	b := Build(conns)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Build not deterministic:\n a=%+v\n b=%+v", a, b)
	}
}

func TestBuild_MissingSourceUsesSentinel(t *testing.T) {
	g := Build([]Connection{conn("", "MATCH", "", "proxy-a")})
	if g.Nodes[0].Name != Unknown {
		t.Errorf("source node = %q, want %q", g.Nodes[0].Name, Unknown)
	}
}

// A name that first appears as a rule keeps its node and layer when a
// later record uses the same string as a chain hop. Surprising but
// load-bearing: changing it would alter node and edge counts.
func TestBuild_LayerStableOnNameCollision(t *testing.T) {
	conns := []Connection{
		conn("10.0.0.2", "shared-name", "", "proxy-a"),
		conn("10.0.0.3", "MATCH", "", "shared-name", "proxy-b"),
	}

	g := Build(conns)

	var hits []Node
	for _, n := range g.Nodes {
		if n.Name == "shared-name" {
			hits = append(hits, n)
		}
	}
	if len(hits) != 1 {
		t.Fatalf("nodes named shared-name = %d, want 1", len(hits))
	}
	if hits[0].Layer != LayerRule {
		t.Errorf("collided node layer = %d, want %d (first assignment wins)", hits[0].Layer, LayerRule)
	}
}

func TestRoleOf(t *testing.T) {
	conns := []Connection{
		conn("10.0.0.2", "DOMAIN", "a.com", "entry-hk", "exit-us"),
	}

	cases := []struct {
		name string
		want Role
	}{
		{"10.0.0.2", RoleSource},
		{"DOMAIN: a.com", RoleRule},
		{"exit-us", RoleChainExit},
		{"entry-hk", RoleChainEntry},
		{"nonexistent-name", RoleUnknown},
	}
	for _, tc := range cases {
		if got := RoleOf(conns, tc.name); got != tc.want {
			t.Errorf("RoleOf(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestRoleOf_FirstMatchWins(t *testing.T) {
	conns := []Connection{
		conn("10.0.0.2", "shared", "", "proxy-a"),
		conn("10.0.0.3", "MATCH", "", "shared"),
	}
	if got := RoleOf(conns, "shared"); got != RoleRule {
		t.Errorf("RoleOf(shared) = %q, want %q (input order wins)", got, RoleRule)
	}
}
