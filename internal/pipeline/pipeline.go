// Package pipeline turns order rows into per-recipient bouquets, messages
// and a packaged artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/shineum/ebouqets/internal/bouquet"
	"github.com/shineum/ebouqets/internal/email"
	"github.com/shineum/ebouqets/internal/flower"
	"github.com/shineum/ebouqets/internal/order"
	"github.com/shineum/ebouqets/internal/packager"
	"github.com/shineum/ebouqets/internal/state"
)

// FailureMessage is the user-visible error for a failed build.
const FailureMessage = "Failed to generate EML files."

// ErrStale is returned when the rows changed while a build was running.
var ErrStale = errors.New("pipeline: rows changed during build")

// Compositor renders a bouquet for a list of sprite locators. A nil image
// means no bouquet.
type Compositor interface {
	Compose(ctx context.Context, locators []string) *bouquet.Image
}

// Composer builds the message for one recipient group.
type Composer interface {
	Message(g order.Group, img *bouquet.Image) (*email.Message, error)
}

// GroupResult is everything produced for one recipient.
type GroupResult struct {
	Group   order.Group
	Flowers [][]string // sprite locators per row
	Bouquet *bouquet.Image
	Message *email.Message
}

// Result is a complete build.
type Result struct {
	Groups   []GroupResult
	Artifact *packager.Artifact
}

// Builder runs the per-group work and packages the output.
type Builder struct {
	catalog     *flower.Catalog
	compositor  Compositor
	composer    Composer
	packager    *packager.Packager
	concurrency int
}

// Option configures a Builder.
type Option func(*Builder)

// WithConcurrency bounds how many groups are processed at once. Output is
// identical for every value.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// New creates a Builder. Groups are processed one at a time unless
// WithConcurrency says otherwise.
func New(catalog *flower.Catalog, compositor Compositor, composer Composer, pkg *packager.Packager, opts ...Option) *Builder {
	b := &Builder{
		catalog:     catalog,
		compositor:  compositor,
		composer:    composer,
		packager:    pkg,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RowFlowers resolves the sprite locators for one row, skipping names the
// catalog does not know.
func (b *Builder) RowFlowers(row order.Row) []string {
	var out []string
	for _, r := range b.catalog.ResolveAll(flower.Names(row.FlowerType)) {
		out = append(out, r.Locator)
	}
	return out
}

// Bouquet composes the bouquet for every flower in g, in row order, and
// returns it with the per-row locators. The image is nil when no flower
// resolved or a sprite failed to load.
func (b *Builder) Bouquet(ctx context.Context, g order.Group) (*bouquet.Image, [][]string) {
	flowers := make([][]string, len(g.Rows))
	var locators []string
	for i, row := range g.Rows {
		flowers[i] = b.RowFlowers(row)
		locators = append(locators, flowers[i]...)
	}

	img := b.compositor.Compose(ctx, locators)
	if img == nil && len(locators) > 0 {
		slog.Info("continuing without bouquet", "recipient", g.Recipient)
	}
	return img, flowers
}

// ProcessGroup composes the bouquet and builds the message for g.
func (b *Builder) ProcessGroup(ctx context.Context, g order.Group) (GroupResult, error) {
	res := GroupResult{Group: g}
	res.Bouquet, res.Flowers = b.Bouquet(ctx, g)

	msg, err := b.composer.Message(g, res.Bouquet)
	if err != nil {
		return GroupResult{}, fmt.Errorf("compose %s: %w", g.Recipient, err)
	}
	res.Message = msg
	return res, nil
}

// Process runs ProcessGroup for every group of rows. Results are in group
// order regardless of concurrency.
func (b *Builder) Process(ctx context.Context, rows []order.Row) ([]GroupResult, error) {
	groups := order.GroupRows(rows)
	results := make([]GroupResult, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, grp := range groups {
		g.Go(func() error {
			res, err := b.ProcessGroup(gctx, grp)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Build processes rows and packages every message. Packaging starts only
// after all groups are done.
func (b *Builder) Build(ctx context.Context, rows []order.Row) (*Result, error) {
	groups, err := b.Process(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", packager.ErrPackaging, err)
	}

	msgs := make([]*email.Message, len(groups))
	for i, g := range groups {
		msgs[i] = g.Message
	}
	art, err := b.packager.Package(msgs)
	if err != nil {
		return nil, err
	}

	slog.Info("build complete",
		"recipients", len(groups),
		"artifact", art.Filename,
		"bytes", len(art.Data),
	)
	return &Result{Groups: groups, Artifact: art}, nil
}

// BuildFromStore builds from the store's current rows. The error is
// cleared first and set to FailureMessage on failure. Results are written
// back only when the rows have not been replaced meanwhile; otherwise
// ErrStale is returned and nothing is written.
func (b *Builder) BuildFromStore(ctx context.Context, s *state.Store) (*Result, error) {
	s.ClearError(ctx)
	gen := s.Generation()

	res, err := b.Build(ctx, s.Orders())
	if err != nil {
		if s.Generation() == gen {
			s.SetError(ctx, FailureMessage)
		}
		slog.Error("build failed", "error", err)
		return nil, err
	}

	processed, bouquets := Processed(res.Groups)
	if !s.CommitProcessed(ctx, gen, processed, bouquets) {
		return nil, ErrStale
	}
	return res, nil
}

// Processed flattens group results into the persisted shape: one entry per
// row in group order, and a recipient to bouquet data URL map.
func Processed(groups []GroupResult) ([]state.ProcessedOrder, map[string]string) {
	var processed []state.ProcessedOrder
	bouquets := make(map[string]string, len(groups))
	for _, g := range groups {
		var dataURL string
		if g.Bouquet != nil {
			dataURL = g.Bouquet.DataURL()
			bouquets[g.Group.Recipient] = dataURL
		}
		for i, row := range g.Group.Rows {
			processed = append(processed, state.ProcessedOrder{
				Row:          row,
				Flowers:      g.Flowers[i],
				BouquetImage: dataURL,
			})
		}
	}
	return processed, bouquets
}
