package graph

import (
	"github.com/ritzau/pipegraph/pkg/model"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"
)

// PipelineGraph is a read-only gonum view over a pipeline graph.
// Node IDs are mapped to dense int64 IDs in insertion order. Dangling edges
// are left out; self-loops are kept, unlike simple.DirectedGraph.
type PipelineGraph struct {
	source   *model.Graph
	ids      map[string]int64 // node ID -> graph ID
	labels   []string         // graph ID -> node ID
	from     [][]int64
	to       [][]int64
	reversed bool
}

var _ graph.Directed = (*PipelineGraph)(nil)

// NewPipelineGraph builds the view from the current state of g
func NewPipelineGraph(g *model.Graph) *PipelineGraph {
	pg := &PipelineGraph{
		source: g,
		ids:    make(map[string]int64, len(g.Nodes)),
		labels: make([]string, 0, len(g.Nodes)),
	}

	for _, n := range g.Nodes {
		if _, exists := pg.ids[n.ID]; exists {
			continue
		}
		pg.ids[n.ID] = int64(len(pg.labels))
		pg.labels = append(pg.labels, n.ID)
	}

	pg.from = make([][]int64, len(pg.labels))
	pg.to = make([][]int64, len(pg.labels))
	for _, e := range g.Edges {
		u, ok := pg.ids[e.Source]
		if !ok {
			continue
		}
		v, ok := pg.ids[e.Target]
		if !ok {
			continue
		}
		if pg.hasArc(u, v) {
			continue
		}
		pg.from[u] = append(pg.from[u], v)
		pg.to[v] = append(pg.to[v], u)
	}

	return pg
}

// Reverse returns a view of the same graph with every edge flipped
func (pg *PipelineGraph) Reverse() *PipelineGraph {
	r := *pg
	r.reversed = !pg.reversed
	return &r
}

// Model returns the pipeline graph the view was built from
func (pg *PipelineGraph) Model() *model.Graph {
	return pg.source
}

// ID returns the graph ID for a node ID
func (pg *PipelineGraph) ID(nodeID string) (int64, bool) {
	id, ok := pg.ids[nodeID]
	return id, ok
}

// Label returns the node ID for a graph ID
func (pg *PipelineGraph) Label(id int64) string {
	if id < 0 || id >= int64(len(pg.labels)) {
		return ""
	}
	return pg.labels[id]
}

// Labels converts graph IDs to node IDs
func (pg *PipelineGraph) Labels(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, pg.Label(id))
	}
	return out
}

func (pg *PipelineGraph) hasArc(u, v int64) bool {
	for _, w := range pg.from[u] {
		if w == v {
			return true
		}
	}
	return false
}

func (pg *PipelineGraph) valid(id int64) bool {
	return id >= 0 && id < int64(len(pg.labels))
}

func (pg *PipelineGraph) nodes(ids []int64) graph.Nodes {
	if len(ids) == 0 {
		return graph.Empty
	}
	ns := make([]graph.Node, len(ids))
	for i, id := range ids {
		ns[i] = simple.Node(id)
	}
	return iterator.NewOrderedNodes(ns)
}

// Node returns the node with the given graph ID, or nil
func (pg *PipelineGraph) Node(id int64) graph.Node {
	if !pg.valid(id) {
		return nil
	}
	return simple.Node(id)
}

// Nodes returns all nodes in insertion order
func (pg *PipelineGraph) Nodes() graph.Nodes {
	ids := make([]int64, len(pg.labels))
	for i := range ids {
		ids[i] = int64(i)
	}
	return pg.nodes(ids)
}

// From returns the direct successors of id
func (pg *PipelineGraph) From(id int64) graph.Nodes {
	if !pg.valid(id) {
		return graph.Empty
	}
	if pg.reversed {
		return pg.nodes(pg.to[id])
	}
	return pg.nodes(pg.from[id])
}

// To returns the direct predecessors of id
func (pg *PipelineGraph) To(id int64) graph.Nodes {
	if !pg.valid(id) {
		return graph.Empty
	}
	if pg.reversed {
		return pg.nodes(pg.from[id])
	}
	return pg.nodes(pg.to[id])
}

// HasEdgeFromTo reports whether there is an edge u -> v in this view
func (pg *PipelineGraph) HasEdgeFromTo(uid, vid int64) bool {
	if !pg.valid(uid) || !pg.valid(vid) {
		return false
	}
	if pg.reversed {
		return pg.hasArc(vid, uid)
	}
	return pg.hasArc(uid, vid)
}

// HasEdgeBetween reports whether x and y are adjacent in either direction
func (pg *PipelineGraph) HasEdgeBetween(xid, yid int64) bool {
	return pg.HasEdgeFromTo(xid, yid) || pg.HasEdgeFromTo(yid, xid)
}

// Edge returns the edge u -> v, or nil
func (pg *PipelineGraph) Edge(uid, vid int64) graph.Edge {
	if !pg.HasEdgeFromTo(uid, vid) {
		return nil
	}
	return simple.Edge{F: simple.Node(uid), T: simple.Node(vid)}
}
