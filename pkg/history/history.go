// Package history keeps a bounded, linear undo/redo stack of graph snapshots.
package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/ritzau/pipegraph/pkg/logging"
	"github.com/ritzau/pipegraph/pkg/model"
)

// DefaultCapacity is the number of snapshots kept when none is configured
const DefaultCapacity = 50

// InitialLabel labels the snapshot a Manager is seeded with
const InitialLabel = "Initial state"

// Snapshot is an independent copy of a graph at one point in the editing history
type Snapshot struct {
	ID        string       `json:"id"`
	Label     string       `json:"label"`
	Timestamp time.Time    `json:"timestamp"`
	Graph     *model.Graph `json:"graph"`
}

func (s *Snapshot) clone() *Snapshot {
	c := *s
	c.Graph = s.Graph.Clone()
	return &c
}

// Manager is the undo/redo stack. Every snapshot stored or returned is a deep
// copy, so later edits to the live graph never show through it.
//
// TODO: share unchanged nodes between snapshots (copy on write) if edited
// graphs grow past a few hundred nodes.
type Manager struct {
	entries  []*Snapshot
	current  int
	capacity int
}

// New creates a manager seeded with the initial state of the graph
func New(capacity int, initial *model.Graph) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if initial == nil {
		initial = model.NewGraph()
	}
	return &Manager{
		entries:  []*Snapshot{newSnapshot(InitialLabel, initial)},
		capacity: capacity,
	}
}

func newSnapshot(label string, g *model.Graph) *Snapshot {
	return &Snapshot{
		ID:        uuid.NewString(),
		Label:     label,
		Timestamp: time.Now(),
		Graph:     g.Clone(),
	}
}

// Save records g after a mutation. Any redo entries are discarded; once the
// stack is full the oldest entry is evicted.
func (m *Manager) Save(label string, g *model.Graph) *Snapshot {
	m.entries = append(m.entries[:m.current+1], newSnapshot(label, g))
	if len(m.entries) > m.capacity {
		evicted := m.entries[0]
		m.entries[0] = nil
		m.entries = m.entries[1:]
		logging.Trace("evicted history entry", "label", evicted.Label)
	}
	m.current = len(m.entries) - 1

	logging.Debug("saved history", "label", label, "position", m.current, "size", len(m.entries))
	return m.entries[m.current].clone()
}

// Undo steps back one entry and returns it, or nil at the start of the stack
func (m *Manager) Undo() *Snapshot {
	if !m.CanUndo() {
		return nil
	}
	m.current--
	return m.entries[m.current].clone()
}

// Redo steps forward one entry and returns it, or nil at the end of the stack
func (m *Manager) Redo() *Snapshot {
	if !m.CanRedo() {
		return nil
	}
	m.current++
	return m.entries[m.current].clone()
}

func (m *Manager) CanUndo() bool { return m.current > 0 }

func (m *Manager) CanRedo() bool { return m.current < len(m.entries)-1 }

// Len returns the number of stored snapshots, including the current one
func (m *Manager) Len() int { return len(m.entries) }

// Current returns a copy of the snapshot at the current position
func (m *Manager) Current() *Snapshot {
	return m.entries[m.current].clone()
}

// Entries returns the labels of all stored snapshots, oldest first
func (m *Manager) Entries() []string {
	labels := make([]string, len(m.entries))
	for i, s := range m.entries {
		labels[i] = s.Label
	}
	return labels
}

// Position returns the index of the current snapshot in Entries
func (m *Manager) Position() int { return m.current }
