// Package dir implements a Sink that writes artifacts to a local directory.
package dir

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shineum/ebouqets/internal/packager"
)

// Sink writes the artifact file into a directory. With extract set, an
// archive is unpacked so every .eml lands in the directory on its own.
type Sink struct {
	dir     string
	extract bool
}

// New creates a directory Sink. The directory is created on first write.
func New(dir string, extract bool) *Sink {
	return &Sink{dir: dir, extract: extract}
}

// Write stores art under the sink directory and returns the path written.
// For an extracted archive the directory itself is returned.
func (s *Sink) Write(_ context.Context, art *packager.Artifact) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if s.extract && art.IsArchive() {
		if err := s.extractArchive(art.Data); err != nil {
			return "", err
		}
		slog.Info("artifact extracted", "dir", s.dir, "entries", len(art.Entries))
		return s.dir, nil
	}

	path := filepath.Join(s.dir, filepath.Base(art.Filename))
	if err := writeFile(path, art.Data); err != nil {
		return "", err
	}
	return path, nil
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "dir"
}

func (s *Sink) extractArchive(data []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to read entry %s: %w", f.Name, err)
		}
		if err := writeFile(filepath.Join(s.dir, filepath.Base(f.Name)), content); err != nil {
			return err
		}
	}
	return nil
}

// writeFile writes through a temp file and rename so readers never see a
// partial artifact.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ebouqets-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
