// Package snapshot reads and writes persisted pipelines.
//
// A document is loaded whole or not at all: there is no migration between
// format versions and no partial load of a document with invalid nodes.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ritzau/pipegraph/pkg/model"
	"github.com/ritzau/pipegraph/pkg/validation"
)

// FormatVersion is the only document version this build reads and writes
const FormatVersion = 2

var (
	ErrFormatVersion = errors.New("snapshot: unsupported format version")
	ErrCorrupt       = errors.New("snapshot: corrupt document")
)

// Document is the persisted form of a pipeline
type Document struct {
	FormatVersion int            `json:"formatVersion"`
	Platform      model.Platform `json:"platform"`
	Nodes         []*model.Node  `json:"nodes"`
	Edges         []*model.Edge  `json:"edges"`
}

// NewDocument captures g for platform p. Flags derived by validation are not persisted.
func NewDocument(g *model.Graph, p model.Platform) *Document {
	c := g.Clone()
	for _, n := range c.Nodes {
		n.HasError, n.ErrorMessage, n.IsSorted = false, "", false
	}
	for _, e := range c.Edges {
		e.IsValid, e.Validation = false, nil
	}
	return &Document{
		FormatVersion: FormatVersion,
		Platform:      p,
		Nodes:         c.Nodes,
		Edges:         c.Edges,
	}
}

// Graph builds a live graph from the document after checking every node
// against the platform's rule table
func (d *Document) Graph() (*model.Graph, error) {
	rs, ok := validation.Rules(d.Platform)
	if !ok {
		return nil, fmt.Errorf("%w: platform %q", ErrCorrupt, d.Platform)
	}

	g := model.NewGraph()
	for _, n := range d.Nodes {
		if n == nil || n.ID == "" {
			return nil, fmt.Errorf("%w: node without an ID", ErrCorrupt)
		}
		if g.HasNode(n.ID) {
			return nil, fmt.Errorf("%w: duplicate node %q", ErrCorrupt, n.ID)
		}
		if err := rs.Accepts(n); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		g.AddNode(n)
	}
	for _, e := range d.Edges {
		if e == nil || e.Source == "" || e.Target == "" {
			return nil, fmt.Errorf("%w: edge without endpoints", ErrCorrupt)
		}
		g.AddEdge(e)
	}
	return g, nil
}

// Decode reads a JSON document
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if doc.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFormatVersion, doc.FormatVersion, FormatVersion)
	}
	return &doc, nil
}

// Encode writes g as an indented JSON document
func Encode(w io.Writer, g *model.Graph, p model.Platform) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewDocument(g, p)); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// IsHCL reports whether path names an HCL authoring file
func IsHCL(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".hcl")
}
