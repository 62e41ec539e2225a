package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shineum/ebouqets/internal/order"
	"github.com/shineum/ebouqets/internal/pipeline"
	"github.com/shineum/ebouqets/internal/state"
)

// User-visible messages for the sample endpoint.
const (
	sampleLoadFailed   = "Failed to load sample data."
	sampleInvalid      = "Sample data is invalid. Missing: "
	sampleParseFailed  = "Error parsing sample data: "
	logWriteFailed     = "Failed to write log"
	clientLogTimestamp = "2006-01-02T15:04:05.000Z07:00"
)

type groupSummary struct {
	Recipient  string `json:"recipient"`
	Name       string `json:"name"`
	Orders     int    `json:"orders"`
	HasBouquet bool   `json:"hasBouquet"`
}

type stateResponse struct {
	state.Snapshot
	Groups []groupSummary `json:"groups"`
}

func (s *Server) stateBody() stateResponse {
	snap := s.store.Snapshot()
	groups := order.GroupRows(snap.Orders)
	resp := stateResponse{Snapshot: snap, Groups: make([]groupSummary, 0, len(groups))}
	for _, g := range groups {
		_, hasBouquet := snap.Bouquets[g.Recipient]
		resp.Groups = append(resp.Groups, groupSummary{
			Recipient:  g.Recipient,
			Name:       g.DisplayName(),
			Orders:     len(g.Rows),
			HasBouquet: hasBouquet,
		})
	}
	return resp
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.stateBody())
}

// handleUploadOrders accepts a CSV either as the raw body or as the "file"
// field of a multipart form. Invalid input empties the rows and sets the
// session error.
func (s *Server) handleUploadOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize)

	var src io.Reader = r.Body
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			respondErr(w, http.StatusBadRequest, "missing form field \"file\"")
			return
		}
		defer file.Close()
		src = file
	}

	rows, err := order.ReadCSV(src)
	if err != nil {
		msg := order.UserMessage(err)
		s.store.SetOrders(ctx, nil)
		s.store.SetError(ctx, msg)
		slog.Warn("rejected order upload", "error", err, "request_id", middleware.GetReqID(ctx))
		respondErr(w, http.StatusUnprocessableEntity, msg)
		return
	}

	s.store.SetOrders(ctx, rows)
	slog.Info("orders loaded", "rows", len(rows), "source", "upload")
	respond(w, http.StatusOK, s.stateBody())
}

func (s *Server) handleLoadSample(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.store.ClearError(ctx)

	data, err := s.assets.Load(ctx, s.config.SampleLocator)
	if err != nil {
		slog.Error("failed to load sample data", "locator", s.config.SampleLocator, "error", err)
		s.store.SetError(ctx, sampleLoadFailed)
		respondErr(w, http.StatusInternalServerError, sampleLoadFailed)
		return
	}

	rows, err := order.ReadCSV(bytes.NewReader(data))
	if err != nil {
		var msg string
		var mf *order.MissingFieldsError
		if errors.As(err, &mf) {
			msg = sampleInvalid + strings.Join(mf.Fields, ", ")
		} else {
			msg = sampleParseFailed + strings.TrimPrefix(err.Error(), order.ErrParse.Error()+": ")
		}
		s.store.SetOrders(ctx, nil)
		s.store.SetError(ctx, msg)
		respondErr(w, http.StatusUnprocessableEntity, msg)
		return
	}

	s.store.SetOrders(ctx, rows)
	slog.Info("orders loaded", "rows", len(rows), "source", "sample")
	respond(w, http.StatusOK, s.stateBody())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.store.Reset(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handlePreview renders one recipient's email with the bouquet inlined.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	recipient := chi.URLParam(r, "recipient")
	if unescaped, err := url.PathUnescape(recipient); err == nil {
		recipient = unescaped
	}

	g, ok := order.Find(order.GroupRows(s.store.Orders()), recipient)
	if !ok {
		respondErr(w, http.StatusNotFound, "no orders for recipient")
		return
	}

	img, _ := s.builder.Bouquet(r.Context(), g)
	html, err := s.composer.Preview(g, img)
	if err != nil {
		slog.Error("failed to render preview", "recipient", recipient, "error", err)
		respondErr(w, http.StatusInternalServerError, "failed to render preview")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, html)
}

// handleDownload builds every message from the current rows and streams
// the artifact.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if len(s.store.Orders()) == 0 {
		respondErr(w, http.StatusBadRequest, "no orders loaded")
		return
	}

	res, err := s.builder.BuildFromStore(r.Context(), s.store)
	switch {
	case errors.Is(err, pipeline.ErrStale):
		respondErr(w, http.StatusConflict, "orders changed during build, try again")
		return
	case err != nil:
		respondErr(w, http.StatusInternalServerError, pipeline.FailureMessage)
		return
	}

	art := res.Artifact
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": art.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
}

type clientLogRequest struct {
	Message *string `json:"message"`
}

type clientLogResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// handleClientLog appends `<ISO time>: <message>` to the client log file.
func (s *Server) handleClientLog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req clientLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == nil {
		respond(w, http.StatusBadRequest, clientLogResponse{Error: "message is required"})
		return
	}

	line := fmt.Sprintf("%s: %s\n", s.now().UTC().Format(clientLogTimestamp), *req.Message)
	if err := s.appendClientLog(line); err != nil {
		slog.Error("failed to write to log file", "path", s.config.ClientLog, "error", err)
		respond(w, http.StatusInternalServerError, clientLogResponse{Error: logWriteFailed})
		return
	}
	respond(w, http.StatusOK, clientLogResponse{Success: true})
}

func (s *Server) appendClientLog(line string) error {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	f, err := os.OpenFile(s.config.ClientLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
