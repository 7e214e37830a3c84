// Package api serves comparison results over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gomodsel/domain/comparison"
	"gomodsel/internal"
	"gomodsel/internal/aggregate"
	"gomodsel/internal/report"
	"gomodsel/ports"
)

// ReaderFunc adapts a function to ports.ResultReader.
type ReaderFunc func(ctx context.Context) (*comparison.ComparisonTable, error)

// ReadTable calls f.
func (f ReaderFunc) ReadTable(ctx context.Context) (*comparison.ComparisonTable, error) {
	return f(ctx)
}

// Server is a read-only view over a result store.
type Server struct {
	router *chi.Mux
	reader ports.ResultReader
	alpha  float64
	hub    *Hub
	logger *internal.Logger
}

// NewServer builds the router. hub may be nil, in which case the events
// endpoint is not mounted.
func NewServer(reader ports.ResultReader, alpha float64, hub *Hub, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger.With("API")
	}
	s := &Server{router: chi.NewRouter(), reader: reader, alpha: alpha, hub: hub, logger: logger}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	if logger.GetLevel() >= internal.LogLevelDebug {
		s.router.Use(middleware.Logger)
	}

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/healthz", s.handleHealth)
		r.Get("/api/table", s.handleTable)
		r.Get("/api/summary", s.handleSummary)
		r.Get("/api/pipelines/{id}", s.handlePipeline)
		r.Get("/report", s.handleReport)
		r.Get("/report.md", s.handleReportMarkdown)
	})
	if hub != nil {
		s.router.Get("/api/events", hub.ServeHTTP)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener. Open event streams are
// closed when shutdown starts.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	if s.hub != nil {
		srv.RegisterOnShutdown(s.hub.Close)
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("listening on %s", ln.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) (*comparison.ComparisonTable, *comparison.Summary, bool) {
	table, err := s.reader.ReadTable(r.Context())
	if err != nil {
		s.logger.Error("read results: %v", err)
		writeError(w, http.StatusServiceUnavailable, "results unavailable")
		return nil, nil, false
	}
	if table == nil {
		table = &comparison.ComparisonTable{}
	}
	return table, aggregate.Summarize(table, s.alpha), true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	table, _, ok := s.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newTableView(table))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	_, summary, ok := s.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSummaryView(summary))
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	table, summary, ok := s.load(w, r)
	if !ok {
		return
	}
	for _, p := range summary.Pipelines {
		if p.PipelineID != id {
			continue
		}
		detail := pipelineDetailView{Summary: newPipelineView(p)}
		for _, row := range table.Rows {
			if row.PipelineID == id {
				detail.Rows = append(detail.Rows, newOutcomeView(row))
			}
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}
	writeError(w, http.StatusNotFound, "unknown pipeline "+id)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	table, summary, ok := s.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(report.HTML(table, summary))
}

func (s *Server) handleReportMarkdown(w http.ResponseWriter, r *http.Request) {
	table, summary, ok := s.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write(report.Markdown(table, summary))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
