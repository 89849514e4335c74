package validation

import (
	"fmt"
	"strings"

	"github.com/ritzau/pipegraph/pkg/model"
)

// sortCategory is the one category whose successful check marks its node as sorted
const sortCategory = "Sort"

func isTrue(v string) bool {
	return strings.EqualFold(v, "true")
}

// isSortedInput reports whether rows coming out of n are known to be sorted
func isSortedInput(n *model.Node) bool {
	return n.Category == sortCategory || n.IsSorted || isTrue(n.Property("isSorted"))
}

// markSorted flags a Sort node as sorted once it has sort keys
func markSorted(c *Context, n *model.Node) {
	if n.Property("sortKeys") != "" {
		n.IsSorted = true
	}
}

// markSortedAtSource honours a source that declares its output sorted
func markSortedAtSource(c *Context, n *model.Node) {
	if isTrue(n.Property("isSorted")) {
		n.IsSorted = true
	}
}

// requireSortedInputs checks a sorted two-way merge: exactly two inputs,
// each a Sort or flagged as sorted. Each unsorted input is named.
func requireSortedInputs(c *Context, n *model.Node) {
	inputs := c.Inputs(n)
	if len(inputs) != 2 {
		// Degree rules already report the count; only name what the merge needs.
		return
	}
	for _, in := range inputs {
		if isSortedInput(in) {
			continue
		}
		c.Error(n.ID, "unsorted-input",
			fmt.Sprintf("%s requires sorted inputs, but input %s is not sorted", c.Label(n), c.Label(in)),
			fmt.Sprintf("Insert a Sort transformation after %s, or set isSorted on it if the data is already ordered", c.Label(in)),
			n.ID, in.ID)
	}
}

// requireUnionInputs warns about a union that combines nothing
func requireUnionInputs(c *Context, n *model.Node) {
	inputs := c.Inputs(n)
	if len(inputs) == 1 {
		c.Warn(n.ID, "single-input-union",
			fmt.Sprintf("%s has a single input and does nothing", c.Label(n)),
			"Connect a second input or remove the step")
	}
}

// requireLookupReference checks that a lookup has somewhere to look values up
func requireLookupReference(c *Context, n *model.Node) {
	if n.Property("referenceTable") != "" || n.Property("query") != "" {
		return
	}
	if len(c.Inputs(n)) < 2 {
		c.Error(n.ID, "missing-reference",
			fmt.Sprintf("%s has no reference data", c.Label(n)),
			"Set 'referenceTable' or 'query', or connect a reference input")
	}
}

// requireOneOf checks that at least one of the given properties is set
func requireOneOf(keys ...string) CheckFunc {
	return func(c *Context, n *model.Node) {
		for _, k := range keys {
			if n.Property(k) != "" {
				return
			}
		}
		c.Error(n.ID, "missing-property",
			fmt.Sprintf("%s needs one of: %s", c.Label(n), strings.Join(keys, ", ")), "")
	}
}

// requireHTTPURL checks that a URL property is an absolute http(s) address
func requireHTTPURL(key string) CheckFunc {
	return func(c *Context, n *model.Node) {
		url := n.Property(key)
		if url == "" || strings.HasPrefix(url, "@") {
			// Missing is reported by the schema; expressions are evaluated at run time.
			return
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			c.Error(n.ID, "invalid-url",
				fmt.Sprintf("%s: '%s' must start with http:// or https://, got %q", c.Label(n), key, url), "")
		}
	}
}

func chain(checks ...CheckFunc) CheckFunc {
	return func(c *Context, n *model.Node) {
		for _, check := range checks {
			check(c, n)
		}
	}
}

// adviseGenericNames nudges users to rename nodes still carrying their palette name
func adviseGenericNames(kinds ...model.Kind) GraphRule {
	return func(c *Context) {
		for _, n := range c.Graph.Nodes {
			if !containsKind(kinds, n.Kind) {
				continue
			}
			cat, ok := c.Rules.Categories[n.Category]
			if !ok {
				continue
			}
			if n.Name == "" || n.Name == cat.DisplayName {
				c.Info(n.ID, "generic-name",
					fmt.Sprintf("%s still has its default name", c.Label(n)),
					"Rename it to describe the data it handles")
			}
		}
	}
}

func containsKind(kinds []model.Kind, k model.Kind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func hasCategory(g *model.Graph, category string) bool {
	for _, n := range g.Nodes {
		if n.Category == category {
			return true
		}
	}
	return false
}

func hasKind(g *model.Graph, kind model.Kind) bool {
	for _, n := range g.Nodes {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

func isKind(kinds ...model.Kind) func(*model.Node) bool {
	return func(n *model.Node) bool {
		return containsKind(kinds, n.Kind)
	}
}
