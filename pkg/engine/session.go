// Package engine owns one live pipeline graph and runs the editor cycle on it:
// mutate, record a history snapshot, revalidate and write the flags back.
//
// A Session does no locking. Callers that share one between goroutines must
// serialize access themselves.
package engine

import (
	"errors"
	"fmt"

	pgraph "github.com/ritzau/pipegraph/pkg/graph"
	"github.com/ritzau/pipegraph/pkg/history"
	"github.com/ritzau/pipegraph/pkg/logging"
	"github.com/ritzau/pipegraph/pkg/model"
	"github.com/ritzau/pipegraph/pkg/preview"
	"github.com/ritzau/pipegraph/pkg/simulate"
	"github.com/ritzau/pipegraph/pkg/validation"
)

var (
	// ErrNotRunnable is returned when structural errors prevent a simulation
	ErrNotRunnable = errors.New("engine: pipeline has structural errors")

	ErrUnknownEdge     = errors.New("engine: unknown edge")
	ErrUnknownCategory = errors.New("engine: unknown category")
	ErrInvalidNode     = errors.New("engine: invalid node")
)

// Event describes the state after an editor action
type Event struct {
	Action  string                   `json:"action"`
	Results []model.ValidationResult `json:"results"`
	CanUndo bool                     `json:"canUndo"`
	CanRedo bool                     `json:"canRedo"`
}

// Session is the explicit owner of one graph, its platform and its history
type Session struct {
	graph    *model.Graph
	platform model.Platform
	history  *history.Manager
	capacity int
	results  []model.ValidationResult

	listeners []func(Event)
}

// New creates a session over an empty graph
func New(p model.Platform, historyCapacity int) *Session {
	s := &Session{capacity: historyCapacity}
	s.Load(model.NewGraph(), p)
	return s
}

// Load replaces the graph and platform and starts a fresh history
func (s *Session) Load(g *model.Graph, p model.Platform) {
	s.graph = g
	s.platform = p
	s.history = history.New(s.capacity, g)
	s.revalidate("Load")
}

// OnChange registers a listener called after every action
func (s *Session) OnChange(fn func(Event)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Session) Graph() *model.Graph               { return s.graph }
func (s *Session) Platform() model.Platform          { return s.platform }
func (s *Session) History() *history.Manager         { return s.history }
func (s *Session) Results() []model.ValidationResult { return s.results }

// commit records the mutation and revalidates
func (s *Session) commit(label string) {
	snap := s.history.Save(label, s.graph)
	logging.Debug("committed action", "action", label, "snapshot", snap.ID)
	s.revalidate(label)
}

func (s *Session) revalidate(action string) {
	s.results = validation.Validate(s.graph, s.platform)
	validation.Apply(s.graph, s.results)

	ev := Event{
		Action:  action,
		Results: s.results,
		CanUndo: s.history.CanUndo(),
		CanRedo: s.history.CanRedo(),
	}
	for _, fn := range s.listeners {
		fn(ev)
	}
}

// AddNode inserts n, replacing any node with the same ID
func (s *Session) AddNode(n *model.Node) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("%w: node needs an ID", ErrInvalidNode)
	}
	s.graph.AddNode(n)
	s.commit("Add " + n.ID)
	return nil
}

// CatalogNode builds a node pre-filled from the platform catalog without
// adding it, so callers can adjust it before a single AddNode.
func (s *Session) CatalogNode(id, category string) (*model.Node, error) {
	rs, ok := validation.Rules(s.platform)
	if !ok {
		return nil, fmt.Errorf("%s: %w", s.platform, model.ErrUnknownPlatform)
	}
	entry, ok := rs.Catalog(category)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownCategory, category, s.platform)
	}
	return model.NewNodeFromCatalog(id, entry), nil
}

// AddNodeFromCatalog inserts a node pre-filled from the platform catalog
func (s *Session) AddNodeFromCatalog(id, category string) (*model.Node, error) {
	n, err := s.CatalogNode(id, category)
	if err != nil {
		return nil, err
	}
	if err := s.AddNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

// RemoveNode deletes a node and every edge touching it
func (s *Session) RemoveNode(id string) error {
	if !s.graph.RemoveNode(id) {
		return fmt.Errorf("%w: %s", model.ErrUnknownNode, id)
	}
	s.commit("Remove " + id)
	return nil
}

// Connect adds an edge. Endpoints need not exist yet; a dangling edge is
// reported by validation. Connecting an already connected pair is a no-op.
func (s *Session) Connect(source, target string, branch model.Branch) *model.Edge {
	before := len(s.graph.Edges)
	e := s.graph.AddEdge(&model.Edge{Source: source, Target: target, Branch: branch})
	if len(s.graph.Edges) != before {
		s.commit(fmt.Sprintf("Connect %s to %s", source, target))
	}
	return e
}

// Disconnect removes an edge by ID
func (s *Session) Disconnect(edgeID string) error {
	if !s.graph.RemoveEdge(edgeID) {
		return fmt.Errorf("%w: %s", ErrUnknownEdge, edgeID)
	}
	s.commit("Disconnect " + edgeID)
	return nil
}

// UpdateProperties patches node properties; an empty value removes the key
func (s *Session) UpdateProperties(id string, patch map[string]string) error {
	if err := s.graph.UpdateProperties(id, patch); err != nil {
		return err
	}
	s.commit("Update " + id)
	return nil
}

// Undo restores the previous snapshot. It reports false when there is none.
func (s *Session) Undo() bool {
	snap := s.history.Undo()
	if snap == nil {
		return false
	}
	s.graph = snap.Graph
	s.revalidate("Undo " + snap.Label)
	return true
}

// Redo restores the next snapshot. It reports false when there is none.
func (s *Session) Redo() bool {
	snap := s.history.Redo()
	if snap == nil {
		return false
	}
	s.graph = snap.Graph
	s.revalidate("Redo " + snap.Label)
	return true
}

// Validate reruns validation and returns the results
func (s *Session) Validate() []model.ValidationResult {
	s.revalidate("Validate")
	return s.results
}

// Simulate estimates a run with nominalRows entering every source
func (s *Session) Simulate(nominalRows int64) (*model.SimulationResult, error) {
	if blocking := validation.Structural(s.results); len(blocking) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotRunnable, blocking[0].Message)
	}
	return simulate.Run(s.graph, nominalRows, s.platform)
}

// Preview propagates sample rows through the graph
func (s *Session) Preview() *preview.Result {
	return preview.Run(s.graph)
}

// Highlight returns id with everything upstream and downstream of it
func (s *Session) Highlight(id string) ([]string, error) {
	if !s.graph.HasNode(id) {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownNode, id)
	}
	return pgraph.NewPipelineGraph(s.graph).Connected(id), nil
}
