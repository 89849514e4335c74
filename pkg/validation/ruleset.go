package validation

import (
	"fmt"
	"math"
	"strconv"

	pgraph "github.com/ritzau/pipegraph/pkg/graph"
	"github.com/ritzau/pipegraph/pkg/model"
)

// Unbounded marks a degree limit with no maximum
const Unbounded = -1

// Degree bounds the number of valid incoming and outgoing edges of a node.
// Edges on an error branch are not counted against MaxOut.
type Degree struct {
	MinIn, MaxIn   int
	MinOut, MaxOut int
}

// NumericField constrains a numeric property when it is set
type NumericField struct {
	Key     string
	Min     float64
	Max     float64
	Bounded bool // Max applies
}

// Schema declares the properties a category understands
type Schema struct {
	Required []string
	Numeric  []NumericField
}

// CheckFunc is a category specific rule run after the generic checks
type CheckFunc func(c *Context, n *model.Node)

// CategoryRule is one row of a platform rule table
type CategoryRule struct {
	Kind        model.Kind
	DisplayName string
	Defaults    map[string]string
	Degree      *Degree // nil uses the platform default for Kind
	Schema      Schema
	Check       CheckFunc
}

// PairRule flags a specific connection between two categories
type PairRule struct {
	Rule       string
	Severity   model.Severity
	Match      func(e *model.Edge, src, dst *model.Node) bool
	Message    func(src, dst *model.Node) string
	Suggestion func(src, dst *model.Node) string
}

// GraphRule inspects the whole graph, used for advisory nudges
type GraphRule func(c *Context)

// RuleSet is the complete rule table for one platform
type RuleSet struct {
	Platform      model.Platform
	Kinds         []model.Kind
	Categories    map[string]CategoryRule
	Pairs         []PairRule
	Advisories    []GraphRule
	DefaultDegree func(k model.Kind) Degree
	IsSink        func(n *model.Node) bool
	Branches      func(b model.Branch) bool // Allowed branch tags on this platform
}

var ruleSets = map[model.Platform]*RuleSet{}

func register(rs *RuleSet) {
	ruleSets[rs.Platform] = rs
}

// Rules returns the rule table for a platform
func Rules(p model.Platform) (*RuleSet, bool) {
	rs, ok := ruleSets[p]
	return rs, ok
}

// AllowsKind reports whether nodes of kind k may appear on this platform
func (rs *RuleSet) AllowsKind(k model.Kind) bool {
	for _, allowed := range rs.Kinds {
		if allowed == k {
			return true
		}
	}
	return false
}

// Accepts reports whether a node is structurally valid for this platform:
// its kind is allowed and, for known categories, matches the category's kind.
// Unknown categories are accepted here and flagged by validation.
func (rs *RuleSet) Accepts(n *model.Node) error {
	if !rs.AllowsKind(n.Kind) {
		return fmt.Errorf("node %q: kind %q is not valid on %s", n.ID, n.Kind, rs.Platform)
	}
	if cat, ok := rs.Categories[n.Category]; ok && cat.Kind != n.Kind {
		return fmt.Errorf("node %q: category %s must be of kind %q, got %q", n.ID, n.Category, cat.Kind, n.Kind)
	}
	return nil
}

// Catalog returns the palette entry for a category
func (rs *RuleSet) Catalog(category string) (model.CatalogEntry, bool) {
	cat, ok := rs.Categories[category]
	if !ok {
		return model.CatalogEntry{}, false
	}
	return model.CatalogEntry{
		Kind:              cat.Kind,
		Category:          category,
		DisplayName:       cat.DisplayName,
		DefaultProperties: cat.Defaults,
	}, true
}

func (rs *RuleSet) degree(n *model.Node) Degree {
	if cat, ok := rs.Categories[n.Category]; ok && cat.Degree != nil {
		return *cat.Degree
	}
	return rs.DefaultDegree(n.Kind)
}

// displayName returns the node's label, falling back to its ID
func (rs *RuleSet) displayName(n *model.Node) string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Context carries one validation pass over a graph
type Context struct {
	Graph *model.Graph
	View  *pgraph.PipelineGraph
	Rules *RuleSet

	results []model.ValidationResult
}

// Inputs returns the nodes feeding n through valid edges, in edge order
func (c *Context) Inputs(n *model.Node) []*model.Node {
	var in []*model.Node
	for _, e := range c.Graph.Incoming(n.ID) {
		if src, ok := c.Graph.Node(e.Source); ok && c.Graph.HasNode(e.Target) {
			in = append(in, src)
		}
	}
	return in
}

// Outputs returns the nodes fed by n through valid edges, in edge order
func (c *Context) Outputs(n *model.Node) []*model.Node {
	var out []*model.Node
	for _, e := range c.Graph.Outgoing(n.ID) {
		if dst, ok := c.Graph.Node(e.Target); ok && c.Graph.HasNode(e.Source) {
			out = append(out, dst)
		}
	}
	return out
}

// Label returns the human readable name of a node for messages
func (c *Context) Label(n *model.Node) string {
	return c.Rules.displayName(n)
}

func (c *Context) add(sev model.Severity, id, rule, msg, suggestion string, affected []string) {
	c.results = append(c.results, model.ValidationResult{
		ID:              id,
		Rule:            rule,
		IsValid:         sev != model.SeverityError,
		Severity:        sev,
		Message:         msg,
		Suggestion:      suggestion,
		AffectedNodeIDs: affected,
	})
}

// Error reports a blocking problem on a node or edge
func (c *Context) Error(id, rule, msg, suggestion string, affected ...string) {
	c.add(model.SeverityError, id, rule, msg, suggestion, affected)
}

// Warn reports a non-blocking problem
func (c *Context) Warn(id, rule, msg, suggestion string, affected ...string) {
	c.add(model.SeverityWarning, id, rule, msg, suggestion, affected)
}

// Info reports an advisory nudge
func (c *Context) Info(id, rule, msg, suggestion string, affected ...string) {
	c.add(model.SeverityInfo, id, rule, msg, suggestion, affected)
}

// checkSchema applies the presence and shape rules declared for a category
func (c *Context) checkSchema(n *model.Node, s Schema) {
	for _, key := range s.Required {
		if n.Property(key) == "" {
			c.Error(n.ID, "missing-property",
				fmt.Sprintf("%s is missing required property '%s'", c.Label(n), key),
				fmt.Sprintf("Set '%s' in the properties of %s", key, c.Label(n)))
		}
	}

	for _, f := range s.Numeric {
		raw := n.Property(f.Key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			c.Error(n.ID, "invalid-property",
				fmt.Sprintf("%s: '%s' must be a number, got %q", c.Label(n), f.Key, raw), "")
			continue
		}
		if v < f.Min || (f.Bounded && v > f.Max) {
			c.Error(n.ID, "out-of-range",
				fmt.Sprintf("%s: '%s' must be %s, got %s", c.Label(n), f.Key, rangeText(f), raw), "")
		}
	}
}

func rangeText(f NumericField) string {
	if f.Bounded {
		return fmt.Sprintf("between %g and %g", f.Min, f.Max)
	}
	return fmt.Sprintf(">= %g", f.Min)
}

func degree(minIn, maxIn, minOut, maxOut int) *Degree {
	return &Degree{MinIn: minIn, MaxIn: maxIn, MinOut: minOut, MaxOut: maxOut}
}
