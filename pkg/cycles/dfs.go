package cycles

import (
	"gonum.org/v1/gonum/graph"
)

// detector is a depth-first search keeping a visited set and the set of
// nodes on the current recursion stack. Reaching a node that is still on
// the stack closes a cycle.
type detector struct {
	graph   graph.Directed
	visited map[int64]bool
	onStack map[int64]bool
	path    []int64
}

func newDetector(g graph.Directed) *detector {
	return &detector{
		graph:   g,
		visited: make(map[int64]bool),
		onStack: make(map[int64]bool),
	}
}

// visit returns the cycle closed below nodeID, if any
func (d *detector) visit(nodeID int64) []int64 {
	d.visited[nodeID] = true
	d.onStack[nodeID] = true
	d.path = append(d.path, nodeID)

	successors := d.graph.From(nodeID)
	for successors.Next() {
		next := successors.Node().ID()
		if d.onStack[next] {
			// Cycle runs from next's position on the path back to nodeID
			for i, id := range d.path {
				if id == next {
					return append([]int64(nil), d.path[i:]...)
				}
			}
		}
		if d.visited[next] {
			continue
		}
		if cycle := d.visit(next); cycle != nil {
			return cycle
		}
	}

	d.path = d.path[:len(d.path)-1]
	d.onStack[nodeID] = false
	return nil
}

// HasCycleFrom searches for a cycle reachable from start. It returns the
// nodes of the first cycle found, in traversal order.
func HasCycleFrom(g graph.Directed, start int64) ([]int64, bool) {
	if g.Node(start) == nil {
		return nil, false
	}
	cycle := newDetector(g).visit(start)
	return cycle, cycle != nil
}

// HasCycle reports whether the graph contains any cycle, including self-loops
func HasCycle(g graph.Directed) bool {
	d := newDetector(g)
	nodes := g.Nodes()
	for nodes.Next() {
		id := nodes.Node().ID()
		if d.visited[id] {
			continue
		}
		if d.visit(id) != nil {
			return true
		}
	}
	return false
}
