package watcher

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// classify decides whether a directory event concerns the watched file and
// what it means for it. Chmod-only events are ignored.
func classify(event fsnotify.Event, path string) (ChangeKind, bool) {
	if filepath.Clean(event.Name) != path {
		return 0, false
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return ChangeRemoved, true
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		return ChangeModified, true
	}
	return 0, false
}
