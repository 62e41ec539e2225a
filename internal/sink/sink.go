// Package sink defines where a built artifact ends up.
package sink

import (
	"context"

	"github.com/shineum/ebouqets/internal/packager"
)

// Sink is the interface that artifact destinations must implement.
type Sink interface {
	// Write stores the artifact and returns a human-readable location for
	// it (a path, an s3:// URL, ...).
	Write(ctx context.Context, art *packager.Artifact) (string, error)

	// Name returns the human-readable name of this sink.
	Name() string
}
