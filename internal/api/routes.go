package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/meridian-markets/surveillance-platform/internal/api/middleware"
	"github.com/meridian-markets/surveillance-platform/internal/submitter"
)

// setupRoutes registers the Reporter's HTTP surface and marks the
// unauthenticated endpoints public before the auth middleware ever sees a
// request for them.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	middleware.RegisterPublicEndpoint("/ping")
	middleware.RegisterPublicEndpoint("/ready")
	middleware.RegisterPublicEndpoint("/health")
	middleware.RegisterPublicEndpoint("/submit")

	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/submit", s.handleSubmit)
	mux.HandleFunc("/admin/refresh-cache", s.handleRefreshCache)
	mux.HandleFunc("/admin/cache-status", s.handleCacheStatus)
	mux.HandleFunc("/", s.handleNotFound)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.wh.Query(r.Context(), "SELECT 1"); err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("warehouse not reachable"))

		return
	}

	w.WriteHeader(http.StatusOK)
}

// healthResponse is the /health body.
type healthResponse struct {
	Status           string    `json:"status"`
	CacheStale       bool      `json:"cache_stale"`        //nolint: tagliatelle
	LastCacheRefresh time.Time `json:"last_cache_refresh"` //nolint: tagliatelle
	UptimeSeconds    float64   `json:"uptime_seconds"`     //nolint: tagliatelle
}

// handleHealth reports 503 once the cache has gone stale past
// stale_threshold_seconds, otherwise 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.cache.Status()

	resp := healthResponse{
		Status:           "healthy",
		CacheStale:       status.IsStale,
		LastCacheRefresh: status.LastRefresh,
		UptimeSeconds:    time.Since(s.startTime).Seconds(),
	}

	code := http.StatusOK

	if status.IsStale {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// submitResponse is the /submit body.
type submitResponse struct {
	Status             string `json:"status"`
	EventID            string `json:"event_id"`                       //nolint: tagliatelle
	RegulatorReference string `json:"regulator_reference,omitempty"` //nolint: tagliatelle
}

// handleSubmit accepts a single event, enriches and submits it, and reports
// the resulting disposition.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorResponse(w, r, s.logger, MethodNotAllowed("only POST is supported"))

		return
	}

	var ev submitter.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		WriteErrorResponse(w, r, s.logger, UnprocessableEntity("malformed event body: "+err.Error()))

		return
	}

	result, err := s.submitter.Submit(r.Context(), ev)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError(err.Error()))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(submitResponse{
		Status:             result.Status,
		EventID:            result.EventID,
		RegulatorReference: result.RegulatorReference,
	})
}

// handleRefreshCache triggers a cache refresh. force=true always proceeds;
// force=false (default) is a no-op "skipped" if a refresh is already in
// progress.
func (s *Server) handleRefreshCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorResponse(w, r, s.logger, MethodNotAllowed("only POST is supported"))

		return
	}

	force := r.URL.Query().Get("force") == "true"

	status, err := s.cache.Refresh(r.Context(), force)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError(err.Error()))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// handleCacheStatus reports snapshot counts, last_refresh, and is_stale.
func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(s.cache.Status())
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("no such route: "+r.URL.Path))
}
