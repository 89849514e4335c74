package validation

import (
	"fmt"
	"strings"

	"github.com/ritzau/pipegraph/pkg/cycles"
	"github.com/ritzau/pipegraph/pkg/model"
)

const (
	ruleCycle         = "cycle"
	ruleDanglingEdge  = "dangling-edge"
	ruleNoDestination = "no-destination"
	ruleIsolated      = "isolated"
)

// checkEdges reports dangling references, branch tags and cross-type pairs.
// A dangling edge gets exactly one result and is skipped by every other rule.
func checkEdges(c *Context) {
	for _, e := range c.Graph.Edges {
		src, srcOK := c.Graph.Node(e.Source)
		dst, dstOK := c.Graph.Node(e.Target)
		if !srcOK || !dstOK {
			var missing []string
			if !srcOK {
				missing = append(missing, e.Source)
			}
			if !dstOK && e.Target != e.Source {
				missing = append(missing, e.Target)
			}
			c.Error(e.ID, ruleDanglingEdge,
				fmt.Sprintf("Connection %s references missing node(s): %s", e.ID, strings.Join(missing, ", ")),
				"Delete the connection or restore the missing node")
			continue
		}

		if !e.Branch.Valid() {
			c.Error(e.ID, "invalid-branch",
				fmt.Sprintf("Connection %s has unknown branch %q", e.ID, e.Branch),
				"Use Succeeded, Failed, Completed or Skipped")
		} else if !c.Rules.Branches(e.Branch) {
			c.Warn(e.ID, "unsupported-branch",
				fmt.Sprintf("Branch %s on connection %s is ignored on %s", e.Branch, e.ID, c.Rules.Platform), "")
		}

		for _, pr := range c.Rules.Pairs {
			if !pr.Match(e, src, dst) {
				continue
			}
			suggestion := ""
			if pr.Suggestion != nil {
				suggestion = pr.Suggestion(src, dst)
			}
			c.add(pr.Severity, e.ID, pr.Rule, pr.Message(src, dst), suggestion, []string{src.ID, dst.ID})
		}
	}
}

// checkNodes applies kind, degree, schema and category rules to each node
func checkNodes(c *Context) {
	for _, n := range c.Graph.Nodes {
		if !c.Rules.AllowsKind(n.Kind) {
			c.Error(n.ID, "invalid-kind",
				fmt.Sprintf("%s has kind %q, which is not available on %s", c.Label(n), n.Kind, c.Rules.Platform), "")
			continue
		}

		cat, known := c.Rules.Categories[n.Category]
		if known && cat.Kind != n.Kind {
			c.Error(n.ID, "kind-mismatch",
				fmt.Sprintf("%s is a %s but has kind %q, expected %q", c.Label(n), n.Category, n.Kind, cat.Kind), "")
			continue
		}

		checkDegree(c, n)

		if !known {
			c.Warn(n.ID, "unknown-category",
				fmt.Sprintf("No rules for category %q on %s", n.Category, c.Rules.Platform), "")
			continue
		}

		c.checkSchema(n, cat.Schema)
		if cat.Check != nil {
			cat.Check(c, n)
		}
	}
}

func checkDegree(c *Context, n *model.Node) {
	d := c.Rules.degree(n)
	in, out := 0, 0
	for _, e := range c.Graph.Incoming(n.ID) {
		if !c.Graph.Dangling(e) {
			in++
		}
	}
	for _, e := range c.Graph.Outgoing(n.ID) {
		if !c.Graph.Dangling(e) && e.Branch != model.BranchFailed {
			out++
		}
	}

	label := c.Label(n)
	switch {
	case d.MaxIn == 0 && in > 0:
		c.Error(n.ID, "source-input",
			fmt.Sprintf("%s is a source and cannot have incoming connections", label),
			"Remove the incoming connections")
	case d.MaxIn != Unbounded && in > d.MaxIn:
		c.Error(n.ID, "too-many-inputs",
			fmt.Sprintf("%s accepts at most %d input(s), has %d", label, d.MaxIn, in),
			"Combine the inputs with a union step first")
	case in < d.MinIn && in == 0:
		c.Error(n.ID, "missing-input",
			fmt.Sprintf("%s has no input", label),
			"Connect an upstream step to it")
	case in < d.MinIn:
		c.Error(n.ID, "too-few-inputs",
			fmt.Sprintf("%s needs at least %d inputs, has %d", label, d.MinIn, in), "")
	}

	switch {
	case d.MaxOut == 0 && out > 0:
		c.Error(n.ID, "destination-output",
			fmt.Sprintf("%s cannot have outgoing connections", label),
			"Remove the outgoing connections")
	case d.MaxOut != Unbounded && out > d.MaxOut:
		c.Error(n.ID, "too-many-outputs",
			fmt.Sprintf("%s supports %d output(s), has %d", label, d.MaxOut, out),
			"Insert a broadcast step to feed several consumers")
	}
}

// checkCycles reports each cycle once, on its first member, listing all members
func checkCycles(c *Context) {
	for _, cycle := range cycles.FindCycles(c.View) {
		ids := cycle.NodeIDs
		var msg string
		if len(ids) == 1 {
			msg = fmt.Sprintf("Cycle detected: %s is connected to itself", ids[0])
		} else {
			msg = fmt.Sprintf("Cycle detected between %s", strings.Join(ids, ", "))
		}
		c.Error(ids[0], ruleCycle, msg,
			"Remove one of the connections to break the loop", ids...)
	}
}

// checkReachability warns about data that never reaches a sink and about
// nodes with no connections at all.
func checkReachability(c *Context) {
	multi := len(c.Graph.Nodes) > 1

	for _, n := range c.Graph.Nodes {
		carriesData := n.Kind != model.KindDestination && n.Kind != model.KindControlFlowTask
		if carriesData && !c.Rules.IsSink(n) && !c.View.ReachesAny(n.ID, c.Rules.IsSink) {
			c.Warn(n.ID, ruleNoDestination,
				fmt.Sprintf("%s has no path to a destination: data will not be loaded anywhere", c.Label(n)),
				"Connect it, directly or through other steps, to a destination")
		}

		if multi && len(c.Inputs(n)) == 0 && len(c.Outputs(n)) == 0 {
			c.Warn(n.ID, ruleIsolated,
				fmt.Sprintf("%s is not connected to anything", c.Label(n)),
				"Connect it or remove it")
		}
	}
}
