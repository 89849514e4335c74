// Package simulate estimates how long a pipeline takes to run, how much
// memory it holds and, on cost-bearing platforms, what a run costs.
//
// Nothing is executed: each node is costed from its platform cost table and
// the row count that reaches it.
package simulate

import (
	"errors"
	"fmt"
	"math"

	"github.com/ritzau/pipegraph/pkg/logging"
	"github.com/ritzau/pipegraph/pkg/model"
)

// ErrInvalidRows is returned for a non-positive nominal row count
var ErrInvalidRows = errors.New("simulate: nominal row count must be positive")

// Run simulates g with nominalRows entering every source.
//
// Rows propagate in topological order: a join takes the largest input, a
// union sums its inputs, and RowFactor scales what leaves a node. Nodes on a
// cycle are never reached by the propagation and are costed at nominalRows.
func Run(g *model.Graph, nominalRows int64, p model.Platform) (*model.SimulationResult, error) {
	table, ok := Table(p)
	if !ok {
		return nil, fmt.Errorf("simulate %q: %w", p, model.ErrUnknownPlatform)
	}
	if nominalRows <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRows, nominalRows)
	}

	result := &model.SimulationResult{
		Platform:    p,
		Model:       table.Model,
		NominalRows: nominalRows,
		Nodes:       make(map[string]model.NodeMetrics, len(g.Nodes)),
	}
	if table.Price != nil {
		result.Currency = currencyUSD
	}

	nominal := float64(nominalRows)
	rowsOut := make(map[string]float64, len(g.Nodes))
	durations := make(map[string]float64, len(g.Nodes))

	cost := func(n *model.Node, rowsIn float64) {
		prof := table.profile(n)

		seconds := prof.FixedSeconds
		if prof.Throughput > 0 {
			seconds += rowsIn / prof.Throughput * growthFactor(prof.Blocking, nominal)
		}

		if prof.Blocking != GrowthNone {
			result.MemoryMB += rowsIn * rowBytes / (1 << 20)
		} else {
			result.MemoryMB += memoryByClass[prof.Memory]
		}

		metrics := model.NodeMetrics{
			DurationSeconds: seconds,
			RowsProcessed:   int64(math.Round(rowsIn)),
			MemoryImpact:    prof.Memory,
		}
		if table.Price != nil {
			metrics.Cost = table.Price(n, prof, seconds)
			result.Cost += metrics.Cost
		}

		factor := prof.RowFactor
		if factor == 0 {
			factor = 1
		}
		rowsOut[n.ID] = rowsIn * factor
		durations[n.ID] = seconds
		result.Nodes[n.ID] = metrics
	}

	for _, n := range topologicalOrder(g) {
		cost(n, inputRows(g, n, table.profile(n), rowsOut, nominal))
	}
	for _, n := range g.Nodes {
		if _, done := durations[n.ID]; !done {
			cost(n, nominal)
		}
	}

	var sum, slowest float64
	for _, n := range g.Nodes {
		d := durations[n.ID]
		sum += d
		if result.Bottleneck == "" || d > slowest {
			result.Bottleneck = n.ID
			slowest = d
		}
	}
	if result.Bottleneck != "" {
		m := result.Nodes[result.Bottleneck]
		m.IsBottleneck = true
		result.Nodes[result.Bottleneck] = m
	}

	switch table.Model {
	case ModelSequential:
		result.TotalSeconds = sum
	default:
		result.TotalSeconds = slowest + backpressure*(sum-slowest)
	}

	logging.Debug("simulated pipeline",
		"platform", p,
		"rows", nominalRows,
		"total", result.TotalSeconds,
		"bottleneck", result.Bottleneck)

	return result, nil
}

// inputRows is the number of rows entering n from its costed inputs
func inputRows(g *model.Graph, n *model.Node, prof CostProfile, rowsOut map[string]float64, nominal float64) float64 {
	var rows float64
	inputs := 0
	for _, e := range g.Incoming(n.ID) {
		r, ok := rowsOut[e.Source]
		if !ok || g.Dangling(e) {
			continue
		}
		inputs++
		if prof.Combine == CombineSum {
			rows += r
		} else {
			rows = math.Max(rows, r)
		}
	}
	if inputs == 0 {
		return numeric(n, "estimatedRows", nominal)
	}
	return rows
}

// topologicalOrder returns the nodes Kahn's algorithm can order, leaving out
// every node on or behind a cycle. Ties keep insertion order.
func topologicalOrder(g *model.Graph) []*model.Node {
	indeg := make(map[string]int, len(g.Nodes))
	out := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		if g.Dangling(e) {
			continue
		}
		out[e.Source] = append(out[e.Source], e.Target)
		indeg[e.Target]++
	}

	var queue []string
	for _, n := range g.Nodes {
		if indeg[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]*model.Node, 0, len(g.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, _ := g.Node(id)
		order = append(order, n)
		for _, next := range out[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order
}
