package model

import (
	"errors"
	"fmt"
	"maps"
)

var (
	ErrUnknownNode     = errors.New("model: unknown node")
	ErrUnknownPlatform = errors.New("model: unknown platform")
)

// Graph is the live pipeline: nodes in insertion order plus directed edges.
// Mutations never fail. Dangling edges and cycles are representable and are
// reported by validation, not prevented here.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`

	index map[string]int // node ID -> position in Nodes
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make([]*Node, 0),
		Edges: make([]*Edge, 0),
		index: make(map[string]int),
	}
}

// Node is a single pipeline step
type Node struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	Kind       Kind              `json:"kind"`
	Category   string            `json:"category"` // e.g. "Sort", "CopyData"
	Properties map[string]string `json:"properties,omitempty"`

	// Derived by validation, never set by the editor
	HasError     bool   `json:"hasError,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	IsSorted     bool   `json:"isSorted,omitempty"`
}

// Property returns a property value, or "" when unset
func (n *Node) Property(key string) string {
	if n.Properties == nil {
		return ""
	}
	return n.Properties[key]
}

// Edge is a directed connection between two node IDs
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Branch Branch `json:"branch,omitempty"`

	IsValid    bool              `json:"isValid"`
	Validation *ValidationResult `json:"validation,omitempty"`
}

// EdgeID derives the ID used for an edge that was inserted without one
func EdgeID(source, target string) string {
	return fmt.Sprintf("%s->%s", source, target)
}

// NewNodeFromCatalog creates a node pre-filled from a catalog entry
func NewNodeFromCatalog(id string, entry CatalogEntry) *Node {
	return &Node{
		ID:         id,
		Name:       entry.DisplayName,
		Kind:       entry.Kind,
		Category:   entry.Category,
		Properties: maps.Clone(entry.DefaultProperties),
	}
}

func (g *Graph) reindex() {
	g.index = make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		g.index[n.ID] = i
	}
}

func (g *Graph) lookup(id string) (int, bool) {
	if g.index == nil || len(g.index) != len(g.Nodes) {
		g.reindex()
	}
	i, ok := g.index[id]
	return i, ok
}

// Node returns the node with the given ID
func (g *Graph) Node(id string) (*Node, bool) {
	i, ok := g.lookup(id)
	if !ok {
		return nil, false
	}
	return g.Nodes[i], true
}

// HasNode reports whether a node with the given ID exists
func (g *Graph) HasNode(id string) bool {
	_, ok := g.lookup(id)
	return ok
}

// Edge returns the edge with the given ID
func (g *Graph) Edge(id string) (*Edge, bool) {
	for _, e := range g.Edges {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// AddNode adds a node to the graph. If a node with the same ID exists, it is replaced in place.
func (g *Graph) AddNode(node *Node) {
	if node.Properties == nil {
		node.Properties = make(map[string]string)
	}
	if i, ok := g.lookup(node.ID); ok {
		g.Nodes[i] = node
		return
	}
	g.Nodes = append(g.Nodes, node)
	g.index[node.ID] = len(g.Nodes) - 1
}

// RemoveNode removes a node and every edge touching it. Returns false if the node did not exist.
func (g *Graph) RemoveNode(id string) bool {
	i, ok := g.lookup(id)
	if !ok {
		return false
	}
	g.Nodes = append(g.Nodes[:i], g.Nodes[i+1:]...)
	g.reindex()

	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	clear(g.Edges[len(kept):])
	g.Edges = kept
	return true
}

// AddEdge adds an edge unless one already connects the same (source, target) pair,
// in which case the existing edge is returned unchanged. Edge IDs are unique:
// a missing or taken ID is replaced by one derived from the endpoints.
func (g *Graph) AddEdge(edge *Edge) *Edge {
	taken := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if e.Source == edge.Source && e.Target == edge.Target {
			return e
		}
		taken[e.ID] = true
	}
	if edge.ID == "" || taken[edge.ID] {
		id := EdgeID(edge.Source, edge.Target)
		for i := 2; taken[id]; i++ {
			id = fmt.Sprintf("%s#%d", EdgeID(edge.Source, edge.Target), i)
		}
		edge.ID = id
	}
	edge.IsValid = true
	g.Edges = append(g.Edges, edge)
	return edge
}

// RemoveEdge removes the edge with the given ID. Returns false if it did not exist.
func (g *Graph) RemoveEdge(id string) bool {
	for i, e := range g.Edges {
		if e.ID == id {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateProperties patches node properties. An empty value deletes the key.
func (g *Graph) UpdateProperties(id string, patch map[string]string) error {
	n, ok := g.Node(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if n.Properties == nil {
		n.Properties = make(map[string]string)
	}
	for k, v := range patch {
		if v == "" {
			delete(n.Properties, k)
			continue
		}
		n.Properties[k] = v
	}
	return nil
}

// Incoming returns the edges whose target is id, in insertion order
func (g *Graph) Incoming(id string) []*Edge {
	var in []*Edge
	for _, e := range g.Edges {
		if e.Target == id {
			in = append(in, e)
		}
	}
	return in
}

// Outgoing returns the edges whose source is id, in insertion order
func (g *Graph) Outgoing(id string) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// Dangling reports whether either endpoint of e is missing from the graph
func (g *Graph) Dangling(e *Edge) bool {
	return !g.HasNode(e.Source) || !g.HasNode(e.Target)
}

// Clone returns a deep copy that shares no mutable state with g
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Nodes: make([]*Node, len(g.Nodes)),
		Edges: make([]*Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		cn := *n
		cn.Properties = maps.Clone(n.Properties)
		if cn.Properties == nil {
			cn.Properties = make(map[string]string)
		}
		c.Nodes[i] = &cn
	}
	for i, e := range g.Edges {
		ce := *e
		if e.Validation != nil {
			v := *e.Validation
			v.AffectedNodeIDs = append([]string(nil), e.Validation.AffectedNodeIDs...)
			ce.Validation = &v
		}
		c.Edges[i] = &ce
	}
	c.reindex()
	return c
}
