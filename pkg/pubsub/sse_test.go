package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ritzau/pipegraph/pkg/model"
)

func publishN(t *testing.T, pub *SSEPublisher, topic string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		if err := pub.Publish(topic, "edit", map[string]int{"step": i}); err != nil {
			t.Fatalf("Failed to publish event %d: %v", i, err)
		}
	}
}

func receive(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
	return Event{}
}

func expectNothing(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Errorf("Received unexpected event version %d", ev.Version)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestReplay(t *testing.T) {
	tests := []struct {
		name     string
		cfg      TopicConfig
		versions []int
	}{
		{"no buffer", TopicConfig{}, nil},
		{"latest only", TopicConfig{BufferSize: 5}, []int{4}},
		{"all kept", TopicConfig{BufferSize: 3, ReplayAll: true}, []int{2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := NewSSEPublisher()
			defer pub.Close()
			pub.ConfigureTopic(TopicValidation, tt.cfg)
			publishN(t, pub, TopicValidation, 4)

			sub, err := pub.Subscribe(context.Background(), TopicValidation)
			if err != nil {
				t.Fatalf("Failed to subscribe: %v", err)
			}
			defer sub.Close()

			for _, want := range tt.versions {
				if got := receive(t, sub).Version; got != want {
					t.Errorf("Expected version %d, got %d", want, got)
				}
			}
			expectNothing(t, sub)

			publishN(t, pub, TopicValidation, 1)
			if got := receive(t, sub).Version; got != 5 {
				t.Errorf("Expected live event version 5, got %d", got)
			}
		})
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	sub, err := pub.Subscribe(context.Background(), TopicHistory)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	publishN(t, pub, TopicValidation, 2)
	expectNothing(t, sub)

	publishN(t, pub, TopicHistory, 1)
	if ev := receive(t, sub); ev.Topic != TopicHistory || ev.Version != 1 {
		t.Errorf("Unexpected event %+v", ev)
	}
}

func TestCancelUnsubscribes(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := pub.Subscribe(ctx, TopicValidation); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for {
		pub.mu.RLock()
		n := len(pub.subs[TopicValidation])
		pub.mu.RUnlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Subscription still registered after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClose(t *testing.T) {
	pub := NewSSEPublisher()
	sub, err := pub.Subscribe(context.Background(), TopicValidation)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	pub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Error("Expected the event channel to be closed")
	}
	if err := pub.Publish(TopicValidation, "edit", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Publish, got %v", err)
	}
	if _, err := pub.Subscribe(context.Background(), TopicValidation); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Subscribe, got %v", err)
	}
}

func TestWriteSSE(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()
	sub, _ := pub.Subscribe(context.Background(), TopicValidation)
	defer sub.Close()

	update := NewValidationUpdate([]model.ValidationResult{
		{NodeID: "a", Severity: model.SeverityError, Rule: "cycle"},
		{NodeID: "b", Severity: model.SeverityWarning, Rule: "unconnected-source"},
		{NodeID: "b", Severity: model.SeverityInfo, Rule: "advisory"},
	}, false)
	if err := pub.Publish(TopicValidation, "Add a", update); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteSSE(&buf, receive(t, sub)); err != nil {
		t.Fatalf("WriteSSE failed: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "id: 1\nevent: validation\ndata: ") || !strings.HasSuffix(out, "\n\n") {
		t.Fatalf("Unexpected framing %q", out)
	}

	var ev Event
	line := strings.TrimSuffix(strings.TrimPrefix(out, "id: 1\nevent: validation\ndata: "), "\n\n")
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("Data line is not JSON: %v", err)
	}
	var got ValidationUpdate
	if err := json.Unmarshal(ev.Data, &got); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "Add a" || got.Errors != 1 || got.Warnings != 1 || got.Runnable || len(got.Results) != 3 {
		t.Errorf("Unexpected payload %+v / %+v", ev, got)
	}
}
