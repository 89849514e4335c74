package cycles

import (
	"gonum.org/v1/gonum/graph"
)

// tarjan holds the bookkeeping of one run of Tarjan's strongly connected
// components algorithm. index[id] is the discovery order, low[id] the
// smallest discovery order reachable from id through the current stack.
type tarjan struct {
	g     graph.Directed
	next  int
	index map[int64]int
	low   map[int64]int
	stack []int64
	held  map[int64]bool

	components [][]int64
}

// components returns every strongly connected component of g, including
// the trivial single-node ones, in the order they are completed.
func components(g graph.Directed) [][]int64 {
	t := &tarjan{
		g:     g,
		index: make(map[int64]int),
		low:   make(map[int64]int),
		held:  make(map[int64]bool),
	}
	nodes := g.Nodes()
	for nodes.Next() {
		if id := nodes.Node().ID(); !t.seen(id) {
			t.connect(id)
		}
	}
	return t.components
}

func (t *tarjan) seen(id int64) bool {
	_, ok := t.index[id]
	return ok
}

func (t *tarjan) connect(id int64) {
	t.index[id], t.low[id] = t.next, t.next
	t.next++
	t.stack = append(t.stack, id)
	t.held[id] = true

	to := t.g.From(id)
	for to.Next() {
		w := to.Node().ID()
		switch {
		case !t.seen(w):
			t.connect(w)
			t.low[id] = min(t.low[id], t.low[w])
		case t.held[w]:
			t.low[id] = min(t.low[id], t.index[w])
		}
	}

	if t.low[id] != t.index[id] {
		return
	}

	// id is the root of a component: everything above it on the stack belongs to it
	var comp []int64
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.held[w] = false
		comp = append(comp, w)
		if w == id {
			break
		}
	}
	t.components = append(t.components, comp)
}

// cyclic reports whether a component is a cycle: more than one member, or a
// single member with an edge to itself.
func cyclic(g graph.Directed, comp []int64) bool {
	return len(comp) > 1 || g.HasEdgeFromTo(comp[0], comp[0])
}
