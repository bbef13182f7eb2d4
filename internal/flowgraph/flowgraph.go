// Package flowgraph aggregates live proxy connections into a layered
// flow graph (sources → rules → proxy chains).
// Pure computation — no imports from other internal packages.
package flowgraph

// Unknown is the sentinel used when a connection is missing a source
// address, and the fallback result of RoleOf.
const Unknown = "Unknown"

// Connection is a single live connection as reported by the proxy
// controller's /connections endpoint.
type Connection struct {
	ID          string   `json:"id"`
	SourceIP    string   `json:"sourceIP"`
	Host        string   `json:"host,omitempty"`
	Network     string   `json:"network,omitempty"`
	Rule        string   `json:"rule"`
	RulePayload string   `json:"rulePayload,omitempty"`
	Chains      []string `json:"chains"`
	Upload      int64    `json:"upload"`
	Download    int64    `json:"download"`
	Start       string   `json:"start,omitempty"`
}

// SourceLabel returns the connection's source address, or Unknown.
func (c Connection) SourceLabel() string {
	if c.SourceIP == "" {
		return Unknown
	}
	return c.SourceIP
}

// RuleLabel returns the matched rule name, suffixed with the rule
// payload when one is present.
func (c Connection) RuleLabel() string {
	if c.RulePayload == "" {
		return c.Rule
	}
	return c.Rule + ": " + c.RulePayload
}

// Layer tags a node with the semantic field that produced it.
type Layer int

const (
	LayerSource Layer = iota
	LayerRule
	LayerChainExit
	LayerChainEntry
)

// layerPalette cycles per layer; a presentation hint only.
var layerPalette = [...]string{"#67b7dc", "#6794dc", "#6771dc", "#8067dc"}

// Color returns the display color for the layer.
func (l Layer) Color() string {
	return layerPalette[int(l)%len(layerPalette)]
}

// Node is a named graph node. IDs are dense and assigned in first-seen
// order; the first assignment of a name fixes its layer for the pass.
type Node struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Layer Layer  `json:"layer"`
	Color string `json:"color"`
}

// Edge is a weighted directed edge between node IDs. There is at most
// one edge per ordered (source, target) pair.
type Edge struct {
	Source int `json:"source"`
	Target int `json:"target"`
	Weight int `json:"weight"`
}

// Graph is the aggregated flow graph handed to the renderer.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Empty reports whether the graph has nothing to render. The renderer
// treats this as the placeholder state rather than drawing an empty
// chart.
func (g *Graph) Empty() bool {
	return len(g.Nodes) == 0 && len(g.Edges) == 0
}

type edgeKey struct {
	source int
	target int
}

// Build aggregates connections into a flow graph. Connections with an
// empty chain contribute nothing. The result is deterministic for a
// given input sequence: node IDs follow encounter order and edge
// weights accumulate per ordered pair, so Build is safe to memoize on
// input identity.
func Build(conns []Connection) *Graph {
	g := &Graph{Nodes: []Node{}, Edges: []Edge{}}

	ids := make(map[string]int)
	weights := make(map[edgeKey]int)
	edgeOrder := make([]edgeKey, 0, len(conns)*3)

	node := func(name string, layer Layer) int {
		if id, ok := ids[name]; ok {
			return id
		}
		id := len(g.Nodes)
		ids[name] = id
		g.Nodes = append(g.Nodes, Node{ID: id, Name: name, Layer: layer, Color: layer.Color()})
		return id
	}

	edge := func(source, target int) {
		key := edgeKey{source, target}
		if _, ok := weights[key]; !ok {
			edgeOrder = append(edgeOrder, key)
		}
		weights[key]++
	}

	for _, c := range conns {
		if len(c.Chains) == 0 {
			continue
		}
		source := node(c.SourceLabel(), LayerSource)
		rule := node(c.RuleLabel(), LayerRule)
		exit := node(c.Chains[len(c.Chains)-1], LayerChainExit)
		entry := node(c.Chains[0], LayerChainEntry)

		edge(source, rule)
		edge(rule, exit)
		edge(exit, entry)
	}

	for _, key := range edgeOrder {
		g.Edges = append(g.Edges, Edge{Source: key.source, Target: key.target, Weight: weights[key]})
	}
	return g
}

// Role names which connection field produced a node.
type Role string

const (
	RoleSource     Role = "Source"
	RoleRule       Role = "Rule"
	RoleChainExit  Role = "Chain Exit"
	RoleChainEntry Role = "Chain Entry"
	RoleUnknown    Role = Unknown
)

// RoleOf reports which role produced the named node, scanning
// connections in input order with first match winning. It returns
// RoleUnknown when no connection reproduces the name, e.g. when the
// connection list changed since the graph was built. Linear scan is
// fine here: this backs interactive hover lookups, not the aggregation
// path.
func RoleOf(conns []Connection, name string) Role {
	for _, c := range conns {
		if len(c.Chains) == 0 {
			continue
		}
		switch name {
		case c.SourceLabel():
			return RoleSource
		case c.RuleLabel():
			return RoleRule
		case c.Chains[len(c.Chains)-1]:
			return RoleChainExit
		case c.Chains[0]:
			return RoleChainEntry
		}
	}
	return RoleUnknown
}
