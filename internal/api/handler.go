// Package api serves the worker's health, metrics and read-only scan
// endpoints.
package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adverant/nexus/mrz-worker/internal/logging"
	"github.com/adverant/nexus/mrz-worker/internal/pipeline"
	"github.com/adverant/nexus/mrz-worker/internal/storage"
)

// ScannerStatus is the view of the live scanner the API needs
type ScannerStatus interface {
	Busy() bool
	Stopped() bool
	Stats() (admitted, dropped uint64)
}

// OutcomeReader reads persisted outcomes. *storage.PostgresClient implements it.
type OutcomeReader interface {
	GetOutcome(ctx context.Context, frameID string) (*storage.ScanOutcome, error)
	GetOutcomes(ctx context.Context, frameIDs []string) ([]*storage.ScanOutcome, error)
	SessionMatches(ctx context.Context, sessionID string) ([]*storage.ScanOutcome, error)
	CountByOutcome(ctx context.Context) (map[string]int64, error)
	GetStats() sql.DBStats
}

// LatestMatch returns the most recent match. *pipeline.Listener implements it.
type LatestMatch interface {
	Last() *pipeline.LastMatch
}

// Pinger is a dependency health check
type Pinger func(ctx context.Context) error

// Handler serves the worker HTTP API
type Handler struct {
	scanner  ScannerStatus
	outcomes OutcomeReader
	latest   LatestMatch
	checks   map[string]Pinger
	gatherer prometheus.Gatherer
	logger   *logging.Logger
}

// Config holds handler dependencies. Outcomes, Latest and Checks are optional.
type Config struct {
	Scanner  ScannerStatus
	Outcomes OutcomeReader
	Latest   LatestMatch
	Checks   map[string]Pinger
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger
}

// New creates a handler
func New(cfg *Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("API")
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		scanner:  cfg.Scanner,
		outcomes: cfg.Outcomes,
		latest:   cfg.Latest,
		checks:   cfg.Checks,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Router builds the chi router
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/scanner", h.handleScanner)
		r.Get("/scans", h.handleListScans)
		r.Get("/scans/latest", h.handleLatest)
		r.Get("/scans/{frameID}", h.handleGetScan)
		r.Get("/sessions/{sessionID}/matches", h.handleSessionMatches)
		r.Get("/stats", h.handleStats)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.checks)+1)

	for name, ping := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := ping(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("Health check failed", "check", name, "error", err)
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	if h.scanner != nil && h.scanner.Stopped() {
		checks["scanner"] = "stopped"
		status = http.StatusServiceUnavailable
	} else {
		checks["scanner"] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	writeJSON(w, status, map[string]interface{}{"status": state, "checks": checks})
}

func (h *Handler) handleScanner(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		writeError(w, http.StatusNotFound, "no live scanner")
		return
	}
	admitted, dropped := h.scanner.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"busy":     h.scanner.Busy(),
		"stopped":  h.scanner.Stopped(),
		"admitted": admitted,
		"dropped":  dropped,
	})
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	if h.latest == nil {
		writeError(w, http.StatusNotFound, "no match yet")
		return
	}
	last := h.latest.Last()
	if last == nil {
		writeError(w, http.StatusNotFound, "no match yet")
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (h *Handler) handleGetScan(w http.ResponseWriter, r *http.Request) {
	if h.outcomes == nil {
		writeError(w, http.StatusNotImplemented, "outcome storage not configured")
		return
	}
	frameID := chi.URLParam(r, "frameID")
	outcome, err := h.outcomes.GetOutcome(r.Context(), frameID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		h.logger.Error("Failed to load scan", "frame", frameID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load scan")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(outcome))
}

// maxScanLookup bounds the frame IDs accepted by one /v1/scans request
const maxScanLookup = 100

// handleListScans looks up several frames at once:
// /v1/scans?frameId=a,b&frameId=c
func (h *Handler) handleListScans(w http.ResponseWriter, r *http.Request) {
	if h.outcomes == nil {
		writeError(w, http.StatusNotImplemented, "outcome storage not configured")
		return
	}
	var frameIDs []string
	for _, v := range r.URL.Query()["frameId"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				frameIDs = append(frameIDs, id)
			}
		}
	}
	if len(frameIDs) == 0 {
		writeError(w, http.StatusBadRequest, "frameId is required")
		return
	}
	if len(frameIDs) > maxScanLookup {
		writeError(w, http.StatusBadRequest, "too many frame IDs")
		return
	}

	outcomes, err := h.outcomes.GetOutcomes(r.Context(), frameIDs)
	if err != nil {
		h.logger.Error("Failed to load scans", "frames", len(frameIDs), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load scans")
		return
	}
	writeJSON(w, http.StatusOK, toResponses(outcomes))
}

func (h *Handler) handleSessionMatches(w http.ResponseWriter, r *http.Request) {
	if h.outcomes == nil {
		writeError(w, http.StatusNotImplemented, "outcome storage not configured")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	outcomes, err := h.outcomes.SessionMatches(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load session matches", "session", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session matches")
		return
	}
	writeJSON(w, http.StatusOK, toResponses(outcomes))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.outcomes == nil {
		writeError(w, http.StatusNotImplemented, "outcome storage not configured")
		return
	}
	counts, err := h.outcomes.CountByOutcome(r.Context())
	if err != nil {
		h.logger.Error("Failed to count outcomes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count outcomes")
		return
	}
	pool := h.outcomes.GetStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"outcomes": counts,
		"pool": map[string]interface{}{
			"open":         pool.OpenConnections,
			"inUse":        pool.InUse,
			"idle":         pool.Idle,
			"waitCount":    pool.WaitCount,
			"waitDuration": pool.WaitDuration.Milliseconds(),
		},
	})
}
