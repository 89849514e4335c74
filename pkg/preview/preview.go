// Package preview propagates a small sample of rows from the sources of a
// pipeline to every node it reaches, transforming the sample by category.
package preview

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ritzau/pipegraph/pkg/logging"
	"github.com/ritzau/pipegraph/pkg/model"
)

// SampleSize is the number of rows every source emits
const SampleSize = 5

// Row is one sample record, column name to value
type Row map[string]any

// Result holds the sample computed for every evaluated node and the order
// the nodes were evaluated in. Nodes on a cycle are absent from both.
type Result struct {
	Samples map[string][]Row `json:"samples"`
	Order   []string         `json:"order"`
}

type transform func(n *model.Node, in []Row) []Row

// transforms maps categories of every platform to their preview behaviour.
// Categories not listed pass rows through unchanged.
var transforms = map[string]transform{
	"ConditionalSplit": keepEven,
	"Filter":           keepEven,
	"Sort":             sortByAmount,
	"OrderBy":          sortByAmount,
	"Aggregate":        aggregateByRegion,
	"GroupBy":          aggregateByRegion,
	"MergeJoin":        addJoinedKey,
	"Lookup":           addJoinedKey,
	"Join":             addJoinedKey,
	"DerivedColumn":    addDerived,
	"WithColumn":       addDerived,
	"DataConversion":   stringifyAmount,
	"Cast":             stringifyAmount,
	"Select":           selectColumns,
}

// Run evaluates every node strictly after all of its predecessors.
//
// A node reads only the sample of its first incoming edge, so multi-input
// steps preview the shape of one input.
func Run(g *model.Graph) *Result {
	res := &Result{Samples: make(map[string][]Row, len(g.Nodes))}

	pending := make(map[string]int, len(g.Nodes))
	for _, e := range g.Edges {
		if !g.Dangling(e) {
			pending[e.Target]++
		}
	}

	var queue []*model.Node
	for _, n := range g.Nodes {
		if pending[n.ID] == 0 {
			queue = append(queue, n)
		}
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, done := res.Samples[n.ID]; done {
			continue
		}

		res.Samples[n.ID] = evaluate(g, n, res.Samples)
		res.Order = append(res.Order, n.ID)

		for _, e := range g.Outgoing(n.ID) {
			next, ok := g.Node(e.Target)
			if !ok {
				continue
			}
			pending[next.ID]--
			if pending[next.ID] == 0 {
				queue = append(queue, next)
			}
		}
	}

	logging.Debug("computed preview", "nodes", len(g.Nodes), "evaluated", len(res.Order))
	return res
}

func evaluate(g *model.Graph, n *model.Node, cache map[string][]Row) []Row {
	var in []Row
	hasInput := false
	for _, e := range g.Incoming(n.ID) {
		if g.Dangling(e) {
			continue
		}
		in, hasInput = cache[e.Source], true
		break
	}

	if !hasInput {
		if n.Kind == model.KindSource || n.Kind == model.KindDataMovement {
			return seed(n)
		}
		return []Row{}
	}

	in = cloneRows(in)
	if t, ok := transforms[n.Category]; ok {
		return t(n, in)
	}
	return in
}

var (
	seedColumns = []string{"id", "name", "region", "amount"}
	seedRegions = []string{"North", "South", "East", "West", "North"}
	seedAmounts = []float64{120.5, 80, 300, 45.25, 210}
)

// seed builds the source sample, renaming columns from a comma separated
// "columns" property when present
func seed(n *model.Node) []Row {
	names := slices.Clone(seedColumns)
	if cols := n.Property("columns"); cols != "" {
		for i, c := range strings.Split(cols, ",") {
			if c = strings.TrimSpace(c); c != "" && i < len(names) {
				names[i] = c
			}
		}
	}

	rows := make([]Row, SampleSize)
	for i := range rows {
		rows[i] = Row{
			names[0]: i + 1,
			names[1]: fmt.Sprintf("Customer %d", i+1),
			names[2]: seedRegions[i%len(seedRegions)],
			names[3]: seedAmounts[i%len(seedAmounts)],
		}
	}
	return rows
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = maps.Clone(r)
	}
	return out
}

func keepEven(_ *model.Node, in []Row) []Row {
	out := make([]Row, 0, (len(in)+1)/2)
	for i, r := range in {
		if i%2 == 0 {
			out = append(out, r)
		}
	}
	return out
}

func amount(r Row) float64 {
	switch v := r["amount"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func sortByAmount(_ *model.Node, in []Row) []Row {
	slices.SortStableFunc(in, func(a, b Row) int {
		return cmp.Compare(amount(b), amount(a))
	})
	return in
}

func aggregateByRegion(_ *model.Node, in []Row) []Row {
	out := []Row{}
	index := make(map[any]int)
	for _, r := range in {
		region := r["region"]
		i, ok := index[region]
		if !ok {
			i = len(out)
			index[region] = i
			out = append(out, Row{"region": region, "count": 0, "total_amount": 0.0})
		}
		out[i]["count"] = out[i]["count"].(int) + 1
		out[i]["total_amount"] = out[i]["total_amount"].(float64) + amount(r)
	}
	return out
}

func addJoinedKey(_ *model.Node, in []Row) []Row {
	for i, r := range in {
		r["joined_key"] = fmt.Sprintf("key_%d", i+1)
	}
	return in
}

func addDerived(n *model.Node, in []Row) []Row {
	col := n.Property("columnName")
	if col == "" {
		col = "derived"
	}
	value := n.Property("expression")
	for i, r := range in {
		if value != "" {
			r[col] = value
		} else {
			r[col] = fmt.Sprintf("derived_%d", i+1)
		}
	}
	return in
}

func stringifyAmount(_ *model.Node, in []Row) []Row {
	for _, r := range in {
		if v, ok := r["amount"]; ok {
			r["amount_str"] = fmt.Sprint(v)
		}
	}
	return in
}

func selectColumns(n *model.Node, in []Row) []Row {
	cols := n.Property("columns")
	if cols == "" {
		return in
	}
	keep := make(map[string]bool)
	for _, c := range strings.Split(cols, ",") {
		keep[strings.TrimSpace(c)] = true
	}
	for _, r := range in {
		maps.DeleteFunc(r, func(k string, _ any) bool { return !keep[k] })
	}
	return in
}
