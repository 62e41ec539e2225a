package main

import (
	"context"
	"crypto/tls"
	"log/slog"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/shineum/ebouqets/internal/config"
	"github.com/shineum/ebouqets/internal/server"
	ebtls "github.com/shineum/ebouqets/internal/tls"
)

type serveFlags struct {
	listen string
	tls    bool
}

func parseServeFlags(args []string) serveFlags {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var f serveFlags
	fs.StringVar(&f.listen, "listen", "", "Listen address")
	fs.BoolVar(&f.tls, "tls", false, "Serve HTTPS")
	if err := fs.Parse(args); err != nil {
		fatal("serve: %v", err)
	}
	return f
}

func handleServe(ctx context.Context, cfg *config.Config, f serveFlags) error {
	if f.listen != "" {
		cfg.Server.Listen = f.listen
	}
	if f.tls {
		cfg.TLS.Enabled = true
	}

	c, err := newComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var tlsConfig *tls.Config
	tlsMode := "disabled"
	if cfg.TLS.Enabled {
		tlsConfig, tlsMode, err = ebtls.Load(cfg.TLS.CertFile, cfg.TLS.KeyFile, ebtls.HostsForListen(cfg.Server.Listen)...)
		if err != nil {
			return err
		}
	}

	srv := server.New(server.Config{
		ListenAddr:    cfg.Server.Listen,
		TLSConfig:     tlsConfig,
		AssetsDir:     cfg.Assets.Dir,
		SampleLocator: "/" + strings.TrimPrefix(cfg.Assets.SampleFile, "/"),
		ClientLog:     cfg.Server.ClientLog,
	}, c.store, c.builder, c.composer, c.assets)

	slog.Info("starting ebouqets",
		"listen", cfg.Server.Listen,
		"asset_base", cfg.AssetBase(),
		"tls_mode", tlsMode,
	)

	// Blocks until the context is cancelled.
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}

	slog.Info("ebouqets stopped")
	return nil
}
