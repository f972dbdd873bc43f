package dag

import (
	"errors"
	"slices"
	"strings"
)

var (
	// ErrInvalidNode is returned by [Graph.AddNode] when the coordinate has no name.
	ErrInvalidNode = errors.New("node name must not be empty")

	// ErrUnknownSourceNode is returned by [Graph.AddEdge] when the source
	// index is out of range.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [Graph.AddEdge] when the target
	// index is out of range.
	ErrUnknownTargetNode = errors.New("unknown target node")

	// ErrInvalidWeight is returned by [Graph.AddEdge] for non-positive weights.
	ErrInvalidWeight = errors.New("edge weight must be positive")

	// ErrDuplicateNodeID is returned by [Import] when two exported nodes share
	// a coordinate.
	ErrDuplicateNodeID = errors.New("duplicate node coordinate")
)

// Coordinate uniquely identifies a dependency within one graph.
type Coordinate struct {
	Name      string `json:"name" bson:"name"`
	Version   string `json:"version,omitempty" bson:"version,omitempty"`
	Ecosystem string `json:"ecosystem,omitempty" bson:"ecosystem,omitempty"`
}

// Key returns the canonical string form "ecosystem:name@version". Empty
// parts are omitted.
func (c Coordinate) Key() string {
	var b strings.Builder
	if c.Ecosystem != "" {
		b.WriteString(c.Ecosystem)
		b.WriteByte(':')
	}
	b.WriteString(c.Name)
	if c.Version != "" {
		b.WriteByte('@')
		b.WriteString(c.Version)
	}
	return b.String()
}

func (c Coordinate) String() string { return c.Key() }

// Node is a vertex of the dependency graph.
type Node struct {
	Coordinate `bson:",inline"`

	// Repo and Revision identify the source the node was resolved from.
	// Both are empty for dependencies that could not be located.
	Repo     string `json:"repo,omitempty" bson:"repo,omitempty"`
	Revision string `json:"revision,omitempty" bson:"revision,omitempty"`

	// Depth is the shortest distance from the root.
	Depth int `json:"depth" bson:"depth"`

	// Truncated marks nodes at the depth limit whose own dependencies were
	// not expanded.
	Truncated bool `json:"truncated,omitempty" bson:"truncated,omitempty"`
}

// Edge is a weighted dependency edge between two node indices.
type Edge struct {
	From   int     `json:"from" bson:"from"`
	To     int     `json:"to" bson:"to"`
	Weight float64 `json:"weight" bson:"weight"`
}

type edgeKey struct{ from, to int }

// Graph is a directed graph over an indexed node arena.
//
// The zero value is not usable - use [New]. Graph is not safe for concurrent
// mutation; concurrent readers are fine once building is finished.
type Graph struct {
	nodes   []Node
	index   map[string]int
	out     [][]int
	in      [][]int
	weights map[edgeKey]float64
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		index:   make(map[string]int),
		weights: make(map[edgeKey]float64),
	}
}

// AddNode inserts n unless a node with the same coordinate already exists.
// It returns the node's index and whether it was newly added.
func (g *Graph) AddNode(n Node) (int, bool, error) {
	if n.Name == "" {
		return -1, false, ErrInvalidNode
	}
	key := n.Key()
	if i, ok := g.index[key]; ok {
		return i, false, nil
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	g.index[key] = i
	return i, true, nil
}

// AddEdge adds a weighted edge. Adding an edge that already exists keeps the
// larger of the two weights.
func (g *Graph) AddEdge(from, to int, weight float64) error {
	if from < 0 || from >= len(g.nodes) {
		return ErrUnknownSourceNode
	}
	if to < 0 || to >= len(g.nodes) {
		return ErrUnknownTargetNode
	}
	if !(weight > 0) {
		return ErrInvalidWeight
	}
	k := edgeKey{from, to}
	if w, ok := g.weights[k]; ok {
		g.weights[k] = max(w, weight)
		return nil
	}
	g.weights[k] = weight
	g.out[from] = append(g.out[from], to)
	g.in[to] = append(g.in[to], from)
	return nil
}

// RemoveEdge deletes the edge from -> to. It reports whether the edge existed.
func (g *Graph) RemoveEdge(from, to int) bool {
	k := edgeKey{from, to}
	if _, ok := g.weights[k]; !ok {
		return false
	}
	delete(g.weights, k)
	g.out[from] = slices.DeleteFunc(g.out[from], func(c int) bool { return c == to })
	g.in[to] = slices.DeleteFunc(g.in[to], func(p int) bool { return p == from })
	return true
}

// Lookup returns the index of the node with coordinate c.
func (g *Graph) Lookup(c Coordinate) (int, bool) {
	i, ok := g.index[c.Key()]
	return i, ok
}

// LookupKey returns the index of the node with the given coordinate key.
func (g *Graph) LookupKey(key string) (int, bool) {
	i, ok := g.index[key]
	return i, ok
}

// Node returns the node at index i. It panics if i is out of range.
func (g *Graph) Node(i int) Node { return g.nodes[i] }

// Update applies fn to the node at index i. The coordinate must not change.
func (g *Graph) Update(i int, fn func(*Node)) {
	c := g.nodes[i].Coordinate
	fn(&g.nodes[i])
	g.nodes[i].Coordinate = c
}

// Nodes returns a copy of all nodes in index order.
func (g *Graph) Nodes() []Node { return slices.Clone(g.nodes) }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.weights) }

// Root returns the index of the root node, or -1 for an empty graph.
func (g *Graph) Root() int {
	if len(g.nodes) == 0 {
		return -1
	}
	return 0
}

// Children returns the targets of i's outgoing edges in insertion order.
func (g *Graph) Children(i int) []int { return slices.Clone(g.out[i]) }

// Parents returns the sources of i's incoming edges in insertion order.
func (g *Graph) Parents(i int) []int { return slices.Clone(g.in[i]) }

// Weight returns the weight of the edge from -> to, or 0 if absent.
func (g *Graph) Weight(from, to int) float64 { return g.weights[edgeKey{from, to}] }

// OutWeight returns the total weight of i's outgoing edges.
func (g *Graph) OutWeight(i int) float64 {
	var sum float64
	for _, c := range g.out[i] {
		sum += g.weights[edgeKey{i, c}]
	}
	return sum
}

// Edges returns all edges ordered by source index, then insertion order.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, len(g.weights))
	for from, children := range g.out {
		for _, to := range children {
			edges = append(edges, Edge{From: from, To: to, Weight: g.weights[edgeKey{from, to}]})
		}
	}
	return edges
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:   slices.Clone(g.nodes),
		index:   make(map[string]int, len(g.index)),
		out:     make([][]int, len(g.out)),
		in:      make([][]int, len(g.in)),
		weights: make(map[edgeKey]float64, len(g.weights)),
	}
	for k, v := range g.index {
		c.index[k] = v
	}
	for i := range g.out {
		c.out[i] = slices.Clone(g.out[i])
		c.in[i] = slices.Clone(g.in[i])
	}
	for k, v := range g.weights {
		c.weights[k] = v
	}
	return c
}

// Export is the serializable form of a Graph.
type Export struct {
	Nodes []Node `json:"nodes" bson:"nodes"`
	Edges []Edge `json:"edges" bson:"edges"`
}

// Export returns a snapshot of the graph for persistence.
func (g *Graph) Export() Export {
	return Export{Nodes: g.Nodes(), Edges: g.Edges()}
}

// Import rebuilds a Graph from an export, preserving node indices.
func Import(e Export) (*Graph, error) {
	g := New()
	for _, n := range e.Nodes {
		if _, added, err := g.AddNode(n); err != nil {
			return nil, err
		} else if !added {
			return nil, ErrDuplicateNodeID
		}
	}
	for _, ed := range e.Edges {
		if err := g.AddEdge(ed.From, ed.To, ed.Weight); err != nil {
			return nil, err
		}
	}
	return g, nil
}
