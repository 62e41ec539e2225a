package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister stores the snapshot as a JSON file named after StorageKey
// inside a directory.
type FilePersister struct {
	path string
}

// NewFilePersister stores state in dir/ebouqet-storage.json.
func NewFilePersister(dir string) *FilePersister {
	return &FilePersister{path: filepath.Join(dir, StorageKey+".json")}
}

// Path returns the backing file path.
func (f *FilePersister) Path() string {
	return f.path
}

// Load reads the file. A missing file yields an empty snapshot.
func (f *FilePersister) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read state file: %w", err)
	}
	return decode(data)
}

// Save writes the snapshot through a temp file and rename so a crash never
// leaves a half-written file behind.
func (f *FilePersister) Save(_ context.Context, snap Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), StorageKey+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
