package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/logging"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/store"
)

const (
	defaultLogLimit    = 100
	maxLogLimit        = 1000
	defaultRunLimit    = 50
	maxRunLimit        = 500
	defaultReportLimit = 50
	maxReportLimit     = 50
	runLookupTimeout   = 3 * time.Second
)

type logsResponse struct {
	Service  string          `json:"service,omitempty"`
	Services []string        `json:"services"`
	Entries  []logging.Entry `json:"entries"`
}

// listLogs handles GET /api/logs and /api/logs/{service}?limit=. Without a
// service the buffers of every service are merged by time.
func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log recorder unavailable")
		return
	}
	limit, err := parseLimit(r, defaultLogLimit, maxLogLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	service := strings.TrimSpace(chi.URLParam(r, "service"))
	entries := s.logs.Recent(service, limit)
	if entries == nil {
		entries = []logging.Entry{}
	}
	writeJSON(w, http.StatusOK, logsResponse{
		Service:  service,
		Services: s.logs.Services(),
		Entries:  entries,
	})
}

// listRuns handles GET /api/runs?task=&limit=. It returns {"runs": [...]}
// newest first, 400 for invalid filters, 503 when no run log is configured, or
// 500 if the repository call fails.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run log unavailable")
		return
	}
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var task seo.TaskName
	if raw := strings.TrimSpace(r.URL.Query().Get("task")); raw != "" {
		task, err = seo.ParseTaskName(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), runLookupTimeout)
	defer cancel()

	runs, err := s.runs.List(ctx, task, limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []seo.TaskResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// getRun handles GET /api/runs/{id}. It returns {"run": {...}}, 404 when the
// repository reports store.ErrNotFound, or 500 otherwise.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run log unavailable")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), runLookupTimeout)
	defer cancel()

	run, err := s.runs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}
