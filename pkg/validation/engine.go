// Package validation evaluates a pipeline graph against a platform rule
// table and produces the complete list of diagnostics for it.
//
// Validate never panics and never returns an error: every problem, including
// dangling edges, cycles and unknown platforms, is a ValidationResult.
package validation

import (
	"fmt"
	"strings"

	pgraph "github.com/ritzau/pipegraph/pkg/graph"
	"github.com/ritzau/pipegraph/pkg/logging"
	"github.com/ritzau/pipegraph/pkg/model"
)

// Validate checks the whole graph against the rule table for platform p.
//
// Results are ordered: edge rules in edge order, node rules in node order,
// cycles, reachability and isolation, then advisories. The only mutation is
// the IsSorted flag, which is recomputed from scratch on every call so that it
// always reflects the current properties.
func Validate(g *model.Graph, p model.Platform) []model.ValidationResult {
	rs, ok := Rules(p)
	if !ok {
		return []model.ValidationResult{{
			Rule:     "unknown-platform",
			Severity: model.SeverityError,
			Message:  fmt.Sprintf("No rule table for platform %q", p),
		}}
	}

	for _, n := range g.Nodes {
		n.IsSorted = false
	}

	c := &Context{
		Graph: g,
		View:  pgraph.NewPipelineGraph(g),
		Rules: rs,
	}

	checkEdges(c)
	checkNodes(c)
	checkCycles(c)
	checkReachability(c)
	for _, advise := range rs.Advisories {
		advise(c)
	}

	logging.Debug("validated pipeline",
		"platform", p,
		"nodes", len(g.Nodes),
		"edges", len(g.Edges),
		"results", len(c.results),
		"blocking", model.HasBlocking(c.results))

	return c.results
}

// Apply writes the results back onto the graph: HasError and ErrorMessage on
// nodes, IsValid and Validation on edges. Only error severity marks a node or
// edge as failing. Flags from a previous pass are cleared first.
func Apply(g *model.Graph, results []model.ValidationResult) {
	messages := make(map[string][]string)
	invalidEdges := make(map[string]bool)
	attached := make(map[string]*model.ValidationResult)

	edgeIDs := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		edgeIDs[e.ID] = true
	}

	for i := range results {
		r := &results[i]

		if edgeIDs[r.ID] {
			if prev, ok := attached[r.ID]; !ok || (r.Blocking() && !prev.Blocking()) {
				attached[r.ID] = r
			}
			if r.Blocking() {
				invalidEdges[r.ID] = true
			}
			continue
		}

		if !r.Blocking() {
			continue
		}
		targets := []string{r.ID}
		if r.Rule == ruleCycle {
			targets = r.AffectedNodeIDs
		}
		for _, id := range targets {
			messages[id] = append(messages[id], r.Message)
		}
	}

	for _, n := range g.Nodes {
		msgs := messages[n.ID]
		n.HasError = len(msgs) > 0
		n.ErrorMessage = strings.Join(msgs, "; ")
	}
	for _, e := range g.Edges {
		e.IsValid = !invalidEdges[e.ID]
		e.Validation = nil
		if r, ok := attached[e.ID]; ok {
			v := *r
			e.Validation = &v
		}
	}
}

// ForNode returns the results attached to a node ID, including cycles it is part of
func ForNode(results []model.ValidationResult, id string) []model.ValidationResult {
	var out []model.ValidationResult
	for _, r := range results {
		if r.ID == id {
			out = append(out, r)
			continue
		}
		if r.Rule == ruleCycle {
			for _, affected := range r.AffectedNodeIDs {
				if affected == id {
					out = append(out, r)
					break
				}
			}
		}
	}
	return out
}

// Structural returns the results that make a graph unrunnable regardless of
// configuration: dangling edges and cycles.
func Structural(results []model.ValidationResult) []model.ValidationResult {
	var out []model.ValidationResult
	for _, r := range results {
		if r.Blocking() && (r.Rule == ruleCycle || r.Rule == ruleDanglingEdge) {
			out = append(out, r)
		}
	}
	return out
}
