package snapshot

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/ritzau/pipegraph/pkg/model"
)

// hclPipeline is the top-level structure of a pipeline authoring file:
//
//	platform = "ssis"
//
//	node "customers" {
//	  kind       = "source"
//	  category   = "OLEDBSource"
//	  properties = { connection = env.DW_CONNECTION }
//	}
//
//	edge {
//	  from = "customers"
//	  to   = "load"
//	}
type hclPipeline struct {
	Platform string     `hcl:"platform"`
	Nodes    []*hclNode `hcl:"node,block"`
	Edges    []*hclEdge `hcl:"edge,block"`
}

type hclNode struct {
	ID         string            `hcl:"id,label"`
	Kind       string            `hcl:"kind"`
	Category   string            `hcl:"category"`
	Name       string            `hcl:"name,optional"`
	Properties map[string]string `hcl:"properties,optional"`
}

type hclEdge struct {
	From   string `hcl:"from"`
	To     string `hcl:"to"`
	Branch string `hcl:"branch,optional"`
}

// ParseHCL decodes an HCL pipeline. Expressions may read environment
// variables through env.NAME; a nil env uses the process environment.
func ParseHCL(src []byte, filename string, env map[string]string) (*model.Graph, model.Platform, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, "", fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var parsed hclPipeline
	diags = gohcl.DecodeBody(file.Body, evalContext(env), &parsed)
	if diags.HasErrors() {
		return nil, "", fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	platform, err := model.ParsePlatform(parsed.Platform)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	doc := &Document{FormatVersion: FormatVersion, Platform: platform}
	for _, n := range parsed.Nodes {
		doc.Nodes = append(doc.Nodes, &model.Node{
			ID:         n.ID,
			Name:       n.Name,
			Kind:       model.Kind(n.Kind),
			Category:   n.Category,
			Properties: n.Properties,
		})
	}
	for _, e := range parsed.Edges {
		doc.Edges = append(doc.Edges, &model.Edge{
			Source: e.From,
			Target: e.To,
			Branch: model.Branch(e.Branch),
		})
	}

	g, err := doc.Graph()
	if err != nil {
		return nil, "", err
	}
	return g, platform, nil
}

func evalContext(env map[string]string) *hcl.EvalContext {
	if env == nil {
		env = make(map[string]string)
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
				env[k] = v
			}
		}
	}

	vars := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}
