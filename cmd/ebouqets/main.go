// Package main is the entry point for ebouqets.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/shineum/ebouqets/internal/config"
)

// app holds global options parsed from the command line.
type app struct {
	configPath string
	envFile    string
}

func main() {
	a := &app{}

	flag.StringVarP(&a.configPath, "config", "c", "", "path to YAML configuration file (optional)")
	flag.StringVar(&a.envFile, "env-file", ".env", "path to a .env file loaded before configuration")
	flag.Usage = printUsage
	flag.CommandLine.SetInterspersed(false)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	cmd, cmdArgs := args[0], args[1:]

	if cmd == "help" {
		printUsage()
		return
	}

	// inspect works on files alone and needs no configuration.
	if cmd == "inspect" {
		if err := handleInspect(os.Stdout, cmdArgs); err != nil {
			fatal("inspect: %v", err)
		}
		return
	}

	if err := config.LoadEnvFile(a.envFile); err != nil {
		fatal("%v", err)
	}
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		fatal("failed to load configuration: %v", err)
	}
	setupLogger(cfg.Logging.Level)

	ctx, cancel := signalContext()
	defer cancel()

	switch cmd {
	case "build":
		opts := parseBuildFlags(cmdArgs)
		if err := handleBuild(ctx, cfg, opts); err != nil {
			fatal("build: %v", err)
		}
	case "serve":
		opts := parseServeFlags(cmdArgs)
		if err := handleServe(ctx, cfg, opts); err != nil {
			fatal("serve: %v", err)
		}
	default:
		fatal("unknown command '%s'", cmd)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `ebouqets - turn flower orders into Valentine's emails

Usage:
  ebouqets [global options] <command> [command options]

Commands:
  build      Build .eml files from an order CSV and write them to the output sink
  serve      Run the HTTP service
  inspect    Print a summary of .eml or .zip files
  help       Show this message

Global Options:
  -c, --config <path>    YAML configuration file
  --env-file <path>      .env file to load (default: .env)

Build Options:
  --input <path>         Order CSV (default: sample data from the asset base)
  --sink <name>          Output sink: stdout, dir or s3
  --out <dir>            Output directory for the dir sink
  --extract              Write archive entries as separate files (dir sink)
  --concurrency <n>      Groups processed in parallel

Serve Options:
  --listen <addr>        Listen address (default: 0.0.0.0:3001)
  --tls                  Serve HTTPS

Configuration is read from environment variables, layered over the YAML
file when one is given.
`)
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, initiating shutdown", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
