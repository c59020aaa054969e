package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hubenschmidt/ultrarelay/vector"
)

// FilePersister keeps the fragment list as a single JSON document that is
// rewritten in full on every save.
type FilePersister struct {
	path string
}

func NewFilePersister(path string) *FilePersister {
	if path == "" {
		path = DefaultFilePath
	}
	return &FilePersister{path: path}
}

func (p *FilePersister) Path() string {
	return p.path
}

// Load returns an empty list when the file does not exist yet.
func (p *FilePersister) Load(ctx context.Context) ([]vector.Fragment, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.path, err)
	}

	var fragments []vector.Fragment
	if err := json.Unmarshal(data, &fragments); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.path, err)
	}
	return fragments, nil
}

// Save writes to a temporary file next to the target and renames it into place.
func (p *FilePersister) Save(ctx context.Context, fragments []vector.Fragment) error {
	if fragments == nil {
		fragments = []vector.Fragment{}
	}
	data, err := json.MarshalIndent(fragments, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fragments: %w", err)
	}

	dir := filepath.Dir(p.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replace %s: %w", p.path, err)
	}
	return nil
}

func (p *FilePersister) Close() error {
	return nil
}
