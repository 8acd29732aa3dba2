package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elonfeng/trendpulse/internal/collector"
	"github.com/elonfeng/trendpulse/internal/store"
	"github.com/elonfeng/trendpulse/pkg/source"
)

const (
	DefaultPort = 8080

	defaultListLimit   = 100
	defaultSearchLimit = 20
	maxLimit           = 500
	shutdownTimeout    = 10 * time.Second
)

// Reader is the read side of the store used by the API.
type Reader interface {
	GetItem(ctx context.Context, id int64) (*store.Item, error)
	ListItems(ctx context.Context, opts store.ListOpts) ([]store.Item, error)
	SearchItems(ctx context.Context, query string, limit int) ([]store.Item, error)
	CountItemsBySource(ctx context.Context) (map[source.SourceType]int, error)
}

// Runner runs one collection pass.
type Runner interface {
	Run(ctx context.Context) *collector.Report
	Sources() []source.SourceType
}

// Server provides the HTTP API.
type Server struct {
	store  Reader
	runner Runner
	port   int
	logger *slog.Logger
}

func New(st Reader, runner Runner, port int, logger *slog.Logger) *Server {
	if port == 0 {
		port = DefaultPort
	}
	return &Server{
		store:  st,
		runner: runner,
		port:   port,
		logger: logger.With("component", "server"),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/items", s.handleItems)
	mux.HandleFunc("GET /api/v1/items/{id}", s.handleItem)
	mux.HandleFunc("GET /api/v1/search", s.handleSearch)
	mux.HandleFunc("GET /api/v1/sources", s.handleSources)
	mux.HandleFunc("POST /api/v1/collect", s.handleCollect)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"), defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts := store.ListOpts{Limit: limit}

	if src := q.Get("source"); src != "" {
		st, ok := source.ParseSourceType(src)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown source %q", src))
			return
		}
		opts.Source = st
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("since must be RFC3339: %w", err))
			return
		}
		opts.Since = t
	}

	items, err := s.store.ListItems(r.Context(), opts)
	if err != nil {
		s.internalError(w, "list items", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  nonNil(items),
		"count": len(items),
	})
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("id must be a positive integer"))
		return
	}

	item, err := s.store.GetItem(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("item %d not found", id))
		return
	}
	if err != nil {
		s.internalError(w, "get item", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": item})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, errors.New("q is required"))
		return
	}
	limit, err := parseLimit(q.Get("limit"), defaultSearchLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	items, err := s.store.SearchItems(r.Context(), query, limit)
	if err != nil {
		s.internalError(w, "search items", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  nonNil(items),
		"count": len(items),
		"query": query,
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountItemsBySource(r.Context())
	if err != nil {
		s.internalError(w, "count items", err)
		return
	}

	enabled := make(map[source.SourceType]bool)
	if s.runner != nil {
		for _, st := range s.runner.Sources() {
			enabled[st] = true
		}
	}

	type sourceInfo struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
		Items   int    `json:"items"`
	}

	infos := make([]sourceInfo, 0, len(source.AllSourceTypes()))
	for _, st := range source.AllSourceTypes() {
		infos = append(infos, sourceInfo{
			Name:    string(st),
			Enabled: enabled[st],
			Items:   counts[st],
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  infos,
		"count": len(infos),
	})
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("collection not configured"))
		return
	}

	// A disconnecting client does not abort a run in progress.
	report := s.runner.Run(context.WithoutCancel(r.Context()))

	writeJSON(w, http.StatusOK, map[string]any{
		"data":   report,
		"failed": report.Failed(),
	})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, fmt.Errorf("%s failed", op))
}

func parseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}

func nonNil(items []store.Item) []store.Item {
	if items == nil {
		return []store.Item{}
	}
	return items
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
