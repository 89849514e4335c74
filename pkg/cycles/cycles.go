package cycles

import (
	"slices"

	pgraph "github.com/ritzau/pipegraph/pkg/graph"
)

// Cycle is a set of pipeline nodes that can reach each other
type Cycle struct {
	NodeIDs []string // Members in graph insertion order
}

// FindCycles returns every cycle in the pipeline exactly once. A cycle is a
// strongly connected component with more than one node, or a self-loop.
// Results are ordered by the insertion position of their first member.
func FindCycles(pg *pgraph.PipelineGraph) []Cycle {
	if !HasCycle(pg) {
		return nil
	}

	var sccs [][]int64
	for _, comp := range components(pg) {
		if cyclic(pg, comp) {
			slices.Sort(comp)
			sccs = append(sccs, comp)
		}
	}
	slices.SortFunc(sccs, func(a, b []int64) int {
		return int(a[0] - b[0])
	})

	cycles := make([]Cycle, 0, len(sccs))
	for _, scc := range sccs {
		cycles = append(cycles, Cycle{NodeIDs: pg.Labels(scc)})
	}
	return cycles
}
