package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestClassify(t *testing.T) {
	path := filepath.Join("/work", "pipeline.json")

	tests := []struct {
		name     string
		event    fsnotify.Event
		kind     ChangeKind
		relevant bool
	}{
		{"write", fsnotify.Event{Name: path, Op: fsnotify.Write}, ChangeModified, true},
		{"create after rename-save", fsnotify.Event{Name: path, Op: fsnotify.Create}, ChangeModified, true},
		{"remove", fsnotify.Event{Name: path, Op: fsnotify.Remove}, ChangeRemoved, true},
		{"renamed away", fsnotify.Event{Name: path, Op: fsnotify.Rename}, ChangeRemoved, true},
		{"chmod", fsnotify.Event{Name: path, Op: fsnotify.Chmod}, 0, false},
		{"sibling file", fsnotify.Event{Name: "/work/.pipeline.json.swp", Op: fsnotify.Write}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, relevant := classify(tt.event, path)
			if relevant != tt.relevant || kind != tt.kind {
				t.Errorf("Expected (%v, %v), got (%v, %v)", tt.kind, tt.relevant, kind, relevant)
			}
		})
	}
}

func TestDebouncer_CollapsesBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := make(chan ChangeEvent)
	d := NewDebouncer(input, 20*time.Millisecond, time.Second)
	d.Start(ctx)

	input <- ChangeEvent{Kind: ChangeRemoved, Path: "p"}
	input <- ChangeEvent{Kind: ChangeModified, Path: "p"}
	input <- ChangeEvent{Kind: ChangeModified, Path: "p"}

	select {
	case ev := <-d.Output():
		if ev.Kind != ChangeModified {
			t.Errorf("Expected the last kind of the burst, got %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for debounced event")
	}

	select {
	case ev := <-d.Output():
		t.Errorf("Expected a single event per burst, got another %+v", ev)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestDebouncer_MaxWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := make(chan ChangeEvent)
	d := NewDebouncer(input, 50*time.Millisecond, 120*time.Millisecond)
	d.Start(ctx)

	// Keep the burst alive past maxWait
	stop := time.After(400 * time.Millisecond)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case input <- ChangeEvent{Kind: ChangeModified}:
			case <-d.Output():
				return
			}
		case <-d.Output():
			return
		case <-stop:
			t.Fatal("Expected a flush once maxWait elapsed")
		}
	}
}

func TestDebouncer_ClosedInputFlushes(t *testing.T) {
	input := make(chan ChangeEvent, 1)
	d := NewDebouncer(input, time.Hour, time.Hour)
	d.Start(context.Background())

	input <- ChangeEvent{Kind: ChangeRemoved}
	close(input)

	ev, ok := <-d.Output()
	if !ok || ev.Kind != ChangeRemoved {
		t.Errorf("Expected pending event on close, got %+v %v", ev, ok)
	}
	if _, ok := <-d.Output(); ok {
		t.Error("Expected output to close after input")
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changes := make(chan ChangeEvent, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 20*time.Millisecond, func(ev ChangeEvent) { changes <- ev })
	}()

	// Give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644)
	os.WriteFile(path, []byte(`{"formatVersion": 2}`), 0o644)

	select {
	case ev := <-changes:
		if ev.Kind != ChangeModified || filepath.Base(ev.Path) != "pipeline.json" {
			t.Errorf("Unexpected change %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("Timeout waiting for change")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Expected context.Canceled after stop, got %v", err)
	}
}
