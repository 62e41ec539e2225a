package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/shineum/ebouqets/internal/config"
	"github.com/shineum/ebouqets/internal/order"
	"github.com/shineum/ebouqets/internal/pipeline"
)

type buildFlags struct {
	input       string
	sink        string
	out         string
	extract     bool
	concurrency int
}

func parseBuildFlags(args []string) buildFlags {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	var f buildFlags
	fs.StringVarP(&f.input, "input", "i", "", "Order CSV, or - for stdin")
	fs.StringVar(&f.sink, "sink", "", "Output sink: stdout, dir or s3")
	fs.StringVarP(&f.out, "out", "o", "", "Output directory for the dir sink")
	fs.BoolVar(&f.extract, "extract", false, "Write archive entries as separate files")
	fs.IntVar(&f.concurrency, "concurrency", 0, "Groups processed in parallel")
	if err := fs.Parse(args); err != nil {
		fatal("build: %v", err)
	}
	return f
}

// apply layers flags that were set over the loaded configuration.
func (f buildFlags) apply(cfg *config.Config) error {
	if f.sink != "" {
		cfg.Output.Sink = f.sink
	}
	if f.out != "" {
		cfg.Output.Dir = f.out
	}
	if f.extract {
		cfg.Output.Extract = true
	}
	if f.concurrency > 0 {
		cfg.Pipeline.Concurrency = f.concurrency
	}
	return cfg.Validate()
}

func handleBuild(ctx context.Context, cfg *config.Config, f buildFlags) error {
	if err := f.apply(cfg); err != nil {
		return err
	}

	c, err := newComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	out, err := selectSink(ctx, cfg)
	if err != nil {
		return err
	}

	data, source, err := readInput(ctx, c, cfg, f.input)
	if err != nil {
		return err
	}

	c.store.ClearError(ctx)
	rows, err := order.ReadCSV(bytes.NewReader(data))
	if err != nil {
		msg := order.UserMessage(err)
		c.store.SetOrders(ctx, nil)
		c.store.SetError(ctx, msg)
		return errors.New(msg)
	}
	c.store.SetOrders(ctx, rows)
	slog.Info("orders loaded", "rows", len(rows), "source", source)

	res, err := c.builder.BuildFromStore(ctx, c.store)
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.FailureMessage, err)
	}

	location, err := out.Write(ctx, res.Artifact)
	if err != nil {
		return err
	}

	slog.Info("artifact written",
		"sink", out.Name(),
		"location", location,
		"messages", len(res.Groups),
	)
	return nil
}

// readInput returns the CSV bytes and a label for logging. Without a path
// the sample file is read through the asset loader.
func readInput(ctx context.Context, c *components, cfg *config.Config, path string) ([]byte, string, error) {
	switch path {
	case "":
		locator := "/" + strings.TrimPrefix(cfg.Assets.SampleFile, "/")
		data, err := c.assets.Load(ctx, locator)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load sample data: %w", err)
		}
		return data, "sample", nil
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, "stdin", nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read input: %w", err)
		}
		return data, path, nil
	}
}
