package graph

import (
	"github.com/ritzau/pipegraph/pkg/model"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// Downstream returns every node reachable from nodeID by following edges forward,
// in breadth-first order. The start node is not included.
func (pg *PipelineGraph) Downstream(nodeID string) []string {
	return pg.walk(nodeID)
}

// Upstream returns every node that can reach nodeID, in breadth-first order.
// The start node is not included.
func (pg *PipelineGraph) Upstream(nodeID string) []string {
	return pg.Reverse().walk(nodeID)
}

// Connected returns nodeID followed by its upstream and downstream sets, without duplicates.
// Used to highlight everything related to a selected node.
func (pg *PipelineGraph) Connected(nodeID string) []string {
	if _, ok := pg.ids[nodeID]; !ok {
		return nil
	}

	seen := map[string]bool{nodeID: true}
	out := []string{nodeID}
	for _, id := range append(pg.Upstream(nodeID), pg.Downstream(nodeID)...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// ReachesAny reports whether some node matching pred can be reached from nodeID
func (pg *PipelineGraph) ReachesAny(nodeID string, pred func(*model.Node) bool) bool {
	start, ok := pg.ids[nodeID]
	if !ok {
		return false
	}

	bf := traverse.BreadthFirst{}
	found := bf.Walk(pg, simple.Node(start), func(n graph.Node, _ int) bool {
		if n.ID() == start {
			return false
		}
		node, ok := pg.source.Node(pg.Label(n.ID()))
		return ok && pred(node)
	})
	return found != nil
}

func (pg *PipelineGraph) walk(nodeID string) []string {
	start, ok := pg.ids[nodeID]
	if !ok {
		return nil
	}

	var out []string
	bf := traverse.BreadthFirst{
		Visit: func(n graph.Node) {
			if n.ID() != start {
				out = append(out, pg.Label(n.ID()))
			}
		},
	}
	bf.Walk(pg, simple.Node(start), nil)
	return out
}
