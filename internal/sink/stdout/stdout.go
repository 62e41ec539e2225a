// Package stdout implements a Sink that prints an artifact summary to
// standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shineum/ebouqets/internal/packager"
)

// Sink prints what was built in a human-readable format. The artifact bytes
// themselves are not written.
type Sink struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Sink that writes to os.Stdout.
func New() *Sink {
	return &Sink{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Sink that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Sink {
	return &Sink{writer: w}
}

// Write prints the artifact summary.
func (s *Sink) Write(_ context.Context, art *packager.Artifact) (string, error) {
	var b strings.Builder

	b.WriteString("========================================\n")
	fmt.Fprintf(&b, "Artifact: %s\n", art.Filename)
	fmt.Fprintf(&b, "Type: %s\n", art.ContentType)
	fmt.Fprintf(&b, "Size: %s\n", formatSize(len(art.Data)))

	if art.IsArchive() {
		fmt.Fprintf(&b, "Entries (%d):\n", len(art.Entries))
		for _, name := range art.Entries {
			fmt.Fprintf(&b, "  %s\n", name)
		}
	}

	b.WriteString("========================================\n")

	if _, err := fmt.Fprint(s.writer, b.String()); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return "stdout", nil
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
