package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/geosearch/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Geocoder is the search surface exposed over HTTP.
type Geocoder interface {
	Search(ctx context.Context, q domain.Query, opts domain.Options) ([]domain.Result, error)
	Coordinates(ctx context.Context, q domain.Query, opts domain.Options) (domain.Coordinates, bool, error)
	Address(ctx context.Context, q domain.Query, opts domain.Options) (string, bool, error)
}

// Server exposes the search API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	geocoder   Geocoder
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /v1/search, /v1/coordinates,
// /v1/address, /healthz, /readyz, and /metrics routes.
func NewServer(addr string, geo Geocoder, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		geocoder: geo,
		logger:   logger,
	}

	mux.HandleFunc("GET /v1/search", s.handleSearch)
	mux.HandleFunc("GET /v1/coordinates", s.handleCoordinates)
	mux.HandleFunc("GET /v1/address", s.handleAddress)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type searchResponse struct {
	Query          string                `json:"query"`
	Classification domain.Classification `json:"classification,omitempty"`
	Results        []domain.Result       `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, opts, err := parseSearchParams(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	results, err := s.geocoder.Search(r.Context(), q, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := searchResponse{Query: q.String(), Results: results}
	if !domain.IsBlank(q) {
		resp.Classification = domain.Classify(q)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCoordinates(w http.ResponseWriter, r *http.Request) {
	q, opts, err := parseSearchParams(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	coords, found, err := s.geocoder.Coordinates(r.Context(), q, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body := map[string]any{"query": q.String(), "found": found}
	if found {
		body["coordinates"] = coords
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	q, opts, err := parseSearchParams(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	addr, found, err := s.geocoder.Address(r.Context(), q, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body := map[string]any{"query": q.String(), "found": found}
	if found {
		body["address"] = addr
	}
	writeJSON(w, http.StatusOK, body)
}

// writeError maps search failures to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var (
		cfgErr *domain.ConfigurationError
		pErr   *domain.ProviderError
	)
	switch {
	case errors.As(err, &cfgErr):
		status = http.StatusInternalServerError
	case errors.Is(err, domain.ErrInvalidCoordinates), errors.Is(err, domain.ErrUnsupportedQuery):
		status = http.StatusBadRequest
	case domain.IsTimeout(err):
		status = http.StatusGatewayTimeout
	case errors.As(err, &pErr):
		status = http.StatusBadGateway
	}
	s.logger.Error("search request failed", "path", r.URL.Path, "status", status, "error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
