// Package pubsub fans editor events out to streaming HTTP clients.
package pubsub

import (
	"context"
	"encoding/json"

	"github.com/ritzau/pipegraph/pkg/model"
)

// Topics published by the editing API
const (
	TopicValidation = "validation"
	TopicHistory    = "history"
)

// Event is one message on a topic
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"` // the editor action, e.g. "Add sort"
	Data    json.RawMessage `json:"data"`
	Version int             `json:"version"` // increases by one per topic
}

// Subscription receives the events of one topic
type Subscription interface {
	Topic() string
	Events() <-chan Event
	Close() error
}

// Publisher manages subscriptions and publishes to them.
// Cancelling the context passed to Subscribe closes the subscription.
type Publisher interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Publish(topic string, eventType string, data any) error
	Close() error
}

// ValidationUpdate is published on TopicValidation after every action
type ValidationUpdate struct {
	Results  []model.ValidationResult `json:"results"`
	Errors   int                      `json:"errors"`
	Warnings int                      `json:"warnings"`
	Runnable bool                     `json:"runnable"`
}

// NewValidationUpdate summarizes a result list
func NewValidationUpdate(results []model.ValidationResult, runnable bool) ValidationUpdate {
	u := ValidationUpdate{Results: results, Runnable: runnable}
	for _, r := range results {
		switch r.Severity {
		case model.SeverityError:
			u.Errors++
		case model.SeverityWarning:
			u.Warnings++
		}
	}
	return u
}

// HistoryUpdate is published on TopicHistory after every action
type HistoryUpdate struct {
	Entries  []string `json:"entries"`
	Position int      `json:"position"`
	CanUndo  bool     `json:"canUndo"`
	CanRedo  bool     `json:"canRedo"`
}
