package cycles

import (
	"slices"
	"testing"

	pgraph "github.com/ritzau/pipegraph/pkg/graph"
	"github.com/ritzau/pipegraph/pkg/model"
)

func pipeline(nodes []string, edges [][2]string) *pgraph.PipelineGraph {
	g := model.NewGraph()
	for _, id := range nodes {
		g.AddNode(&model.Node{ID: id, Kind: model.KindTransformation})
	}
	for _, e := range edges {
		g.AddEdge(&model.Edge{Source: e[0], Target: e[1]})
	}
	return pgraph.NewPipelineGraph(g)
}

func TestFindCycles_NoCycles(t *testing.T) {
	// A -> B -> C, A -> C
	pg := pipeline([]string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}, {"a", "c"}})

	if cycles := FindCycles(pg); len(cycles) != 0 {
		t.Errorf("Expected no cycles, but found %d", len(cycles))
	}
	if HasCycle(pg) {
		t.Errorf("HasCycle reported a cycle in an acyclic graph")
	}
}

func TestFindCycles_SelfLoop(t *testing.T) {
	pg := pipeline([]string{"a", "b"}, [][2]string{{"a", "b"}, {"b", "b"}})

	cycles := FindCycles(pg)

	if len(cycles) != 1 {
		t.Fatalf("Expected 1 cycle, but found %d", len(cycles))
	}
	if !slices.Equal(cycles[0].NodeIDs, []string{"b"}) {
		t.Errorf("Expected self-loop cycle [b], got %v", cycles[0].NodeIDs)
	}
}

func TestFindCycles_ThreeNodeCycle(t *testing.T) {
	// Create a three-node cycle: A -> B -> C -> A
	pg := pipeline([]string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}})

	cycles := FindCycles(pg)

	if len(cycles) != 1 {
		t.Fatalf("Expected 1 cycle, but found %d", len(cycles))
	}
	if !slices.Equal(cycles[0].NodeIDs, []string{"a", "b", "c"}) {
		t.Errorf("Expected members in insertion order, got %v", cycles[0].NodeIDs)
	}
}

func TestFindCycles_MultipleCycles(t *testing.T) {
	// Cycle 1: A -> B -> A, cycle 2: C -> D -> E -> C, with B -> C joining them one way
	pg := pipeline(
		[]string{"a", "b", "c", "d", "e"},
		[][2]string{{"a", "b"}, {"b", "a"}, {"b", "c"}, {"c", "d"}, {"d", "e"}, {"e", "c"}},
	)

	cycles := FindCycles(pg)

	if len(cycles) != 2 {
		t.Fatalf("Expected 2 cycles, but found %d", len(cycles))
	}
	if !slices.Equal(cycles[0].NodeIDs, []string{"a", "b"}) {
		t.Errorf("Expected first cycle [a b], got %v", cycles[0].NodeIDs)
	}
	if !slices.Equal(cycles[1].NodeIDs, []string{"c", "d", "e"}) {
		t.Errorf("Expected second cycle [c d e], got %v", cycles[1].NodeIDs)
	}
}

func TestHasCycleFrom(t *testing.T) {
	// x -> a -> b -> c -> b, y isolated
	pg := pipeline([]string{"x", "a", "b", "c", "y"}, [][2]string{{"x", "a"}, {"a", "b"}, {"b", "c"}, {"c", "b"}})

	x, _ := pg.ID("x")
	y, _ := pg.ID("y")

	cycle, found := HasCycleFrom(pg, x)
	if !found {
		t.Fatal("Expected a cycle reachable from x")
	}
	if got := pg.Labels(cycle); !slices.Equal(got, []string{"b", "c"}) {
		t.Errorf("Expected cycle path [b c], got %v", got)
	}

	if _, found := HasCycleFrom(pg, y); found {
		t.Errorf("Expected no cycle reachable from y")
	}
	if _, found := HasCycleFrom(pg, 99); found {
		t.Errorf("Expected unknown start node to report no cycle")
	}
}

func TestComponents(t *testing.T) {
	// a <-> b, c alone, d with a self-loop
	pg := pipeline([]string{"a", "b", "c", "d"}, [][2]string{{"a", "b"}, {"b", "a"}, {"d", "d"}})

	comps := components(pg)
	if len(comps) != 3 {
		t.Fatalf("Expected 3 components, got %d: %v", len(comps), comps)
	}

	var cyclicCount int
	for _, comp := range comps {
		labels := pg.Labels(comp)
		slices.Sort(labels)
		if cyclic(pg, comp) {
			cyclicCount++
			if !slices.Equal(labels, []string{"a", "b"}) && !slices.Equal(labels, []string{"d"}) {
				t.Errorf("Unexpected cyclic component %v", labels)
			}
		} else if !slices.Equal(labels, []string{"c"}) {
			t.Errorf("Unexpected acyclic component %v", labels)
		}
	}
	if cyclicCount != 2 {
		t.Errorf("Expected 2 cyclic components, got %d", cyclicCount)
	}
}
