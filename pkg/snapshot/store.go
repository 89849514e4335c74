package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ritzau/pipegraph/pkg/logging"
	"github.com/ritzau/pipegraph/pkg/model"
)

// FileStore persists the working pipeline of a session in one JSON file
type FileStore struct {
	Path string
}

// Load reads the stored pipeline. A document that cannot be loaded because of
// its version or contents is deleted so the next session starts clean.
// A missing file returns an error matching os.ErrNotExist.
func (s *FileStore) Load() (*model.Graph, model.Platform, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, "", fmt.Errorf("load snapshot: %w", err)
	}

	g, p, err := decodeGraph(data)
	if err != nil {
		if errors.Is(err, ErrCorrupt) || errors.Is(err, ErrFormatVersion) {
			logging.Warn("discarding stored pipeline", "path", s.Path, "error", err)
			if rmErr := os.Remove(s.Path); rmErr != nil {
				logging.Error("failed to discard stored pipeline", "path", s.Path, "error", rmErr)
			}
		}
		return nil, "", fmt.Errorf("load %s: %w", s.Path, err)
	}
	return g, p, nil
}

// Save writes the pipeline, replacing the stored file atomically
func (s *FileStore) Save(g *model.Graph, p model.Platform) error {
	var buf bytes.Buffer
	if err := Encode(&buf, g, p); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".pipegraph-*.json")
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	logging.Debug("saved pipeline", "path", s.Path, "nodes", len(g.Nodes))
	return nil
}

func decodeGraph(data []byte) (*model.Graph, model.Platform, error) {
	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	g, err := doc.Graph()
	if err != nil {
		return nil, "", err
	}
	return g, doc.Platform, nil
}

// LoadFile reads a pipeline file given on the command line, JSON or HCL by
// extension. Unlike FileStore.Load it never deletes the file.
func LoadFile(path string) (*model.Graph, model.Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read pipeline: %w", err)
	}

	var (
		g *model.Graph
		p model.Platform
	)
	if IsHCL(path) {
		g, p, err = ParseHCL(data, path, nil)
	} else {
		g, p, err = decodeGraph(data)
	}
	if err != nil {
		return nil, "", fmt.Errorf("load %s: %w", path, err)
	}
	return g, p, nil
}
