// Package server exposes the order session over HTTP: upload rows, load the
// sample, preview a recipient's email, download the packaged messages and
// accept client log lines. Flower sprites and sample data are served as
// static files.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shineum/ebouqets/internal/bouquet"
	"github.com/shineum/ebouqets/internal/compose"
	"github.com/shineum/ebouqets/internal/pipeline"
	"github.com/shineum/ebouqets/internal/state"
)

// shutdownTimeout is the maximum time to wait for in-flight requests
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

const (
	defaultMaxUploadSize = 10 << 20
	defaultSampleLocator = "/data.csv"
)

// Config holds the configuration for the HTTP server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "0.0.0.0:3001").
	ListenAddr string

	// TLSConfig enables HTTPS when set.
	TLSConfig *tls.Config

	// AssetsDir is served at the root path. Empty disables static files.
	AssetsDir string

	// SampleLocator is loaded through the asset loader for the sample
	// endpoint.
	SampleLocator string

	// ClientLog is the file client log lines are appended to.
	ClientLog string

	// MaxUploadSize bounds uploaded CSV bodies.
	MaxUploadSize int64
}

// Server serves the HTTP API for one order session.
type Server struct {
	config   Config
	store    *state.Store
	builder  *pipeline.Builder
	composer *compose.Composer
	assets   bouquet.Loader
	router   http.Handler
	now      func() time.Time

	// logMu serializes appends to the client log.
	logMu sync.Mutex

	mu       sync.Mutex
	listener net.Listener
}

// New creates a Server. assets is where the sample CSV is loaded from.
func New(cfg Config, store *state.Store, builder *pipeline.Builder, composer *compose.Composer, assets bouquet.Loader) *Server {
	if cfg.SampleLocator == "" {
		cfg.SampleLocator = defaultSampleLocator
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = defaultMaxUploadSize
	}

	s := &Server{
		config:   cfg,
		store:    store,
		builder:  builder,
		composer: composer,
		assets:   assets,
		now:      time.Now,
	}
	s.router = s.routes()
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)

		r.Post("/orders", s.handleUploadOrders)
		r.Post("/orders/sample", s.handleLoadSample)
		r.Delete("/orders", s.handleReset)

		r.Get("/preview/{recipient}", s.handlePreview)
		r.Post("/download", s.handleDownload)

		r.Post("/log", s.handleClientLog)
	})

	if s.config.AssetsDir != "" {
		r.Get("/*", assetHandler(s.config.AssetsDir))
	}

	return r
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. On cancellation it stops accepting new connections and waits
// up to 30 seconds for in-flight requests to complete.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	if s.config.TLSConfig != nil {
		ln = tls.NewListener(ln, s.config.TLSConfig)
	}
	return s.serve(ctx, ln)
}

// serve runs the HTTP server on ln until ctx is cancelled or Serve fails.
// It returns only after the shutdown goroutine has exited.
func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("HTTP server listening",
		"addr", ln.Addr().String(),
		"tls_enabled", s.config.TLSConfig != nil,
		"assets_dir", s.config.AssetsDir,
	)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown timeout reached, forcing close", "error", err)
			srv.Close()
			return
		}
		slog.Info("all requests completed")
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-shutdownDone
		return err
	}
	<-shutdownDone
	return nil
}

// Addr returns the listener address, or empty string if not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
