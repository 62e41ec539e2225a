package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shineum/ebouqets/internal/bouquet"
	"github.com/shineum/ebouqets/internal/compose"
	"github.com/shineum/ebouqets/internal/config"
	"github.com/shineum/ebouqets/internal/packager"
	"github.com/shineum/ebouqets/internal/pipeline"
	"github.com/shineum/ebouqets/internal/sink"
	"github.com/shineum/ebouqets/internal/sink/dir"
	s3sink "github.com/shineum/ebouqets/internal/sink/s3"
	"github.com/shineum/ebouqets/internal/sink/stdout"
	"github.com/shineum/ebouqets/internal/state"
)

// components is everything a command needs to build messages.
type components struct {
	assets   bouquet.Loader
	composer *compose.Composer
	builder  *pipeline.Builder
	store    *state.Store
	closers  []func() error
}

func (c *components) Close() {
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
}

func newComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{}

	assets, err := bouquet.NewLoader(ctx, cfg.AssetBase(), cfg.ObjectStore())
	if err != nil {
		return nil, fmt.Errorf("failed to create asset loader: %w", err)
	}
	if cfg.Bouquet.Cache {
		assets = bouquet.NewCachingLoader(assets)
	}
	c.assets = assets

	catalog := cfg.FlowerCatalog()
	composer, err := compose.New(compose.Config{
		From:           cfg.SenderAddress(),
		Subject:        cfg.Compose.Subject,
		HeaderImageURL: cfg.Compose.HeaderImageURL,
		PublicAssetURL: cfg.Compose.PublicAssetURL,
	}, catalog)
	if err != nil {
		return nil, err
	}
	c.composer = composer

	c.builder = pipeline.New(
		catalog,
		bouquet.NewCompositor(assets, bouquet.WithQuality(cfg.Bouquet.Quality)),
		composer,
		packager.New(packager.WithArchiveName(cfg.Output.ArchiveName)),
		pipeline.WithConcurrency(cfg.Pipeline.Concurrency),
	)

	persister, err := c.openPersister(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.store = state.Open(ctx, persister)

	slog.Info("components ready",
		"asset_base", cfg.AssetBase(),
		"store", cfg.Store.Backend,
		"concurrency", cfg.Pipeline.Concurrency,
	)
	return c, nil
}

// openPersister selects the session state backend.
func (c *components) openPersister(ctx context.Context, cfg *config.Config) (state.Persister, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return state.NewMemoryPersister(), nil
	case config.StoreFile:
		return state.NewFilePersister(cfg.Store.Dir), nil
	case config.StoreRedis:
		client, err := state.OpenRedis(ctx, cfg.Store.RedisURL)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, client.Close)
		return state.NewRedisPersister(client, cfg.Store.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// selectSink chooses where build writes its artifact.
func selectSink(ctx context.Context, cfg *config.Config) (sink.Sink, error) {
	switch cfg.Output.Sink {
	case config.SinkStdout:
		return stdout.New(), nil
	case config.SinkDir:
		return dir.New(cfg.Output.Dir, cfg.Output.Extract), nil
	case config.SinkS3:
		s, err := s3sink.New(ctx, cfg.Output.S3URL, cfg.ObjectStore())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown output sink %q", cfg.Output.Sink)
	}
}
