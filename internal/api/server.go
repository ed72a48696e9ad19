package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/config"
	"github.com/JakeFAU/seo-orchestrator/internal/logging"
	"github.com/JakeFAU/seo-orchestrator/internal/metrics"
	"github.com/JakeFAU/seo-orchestrator/internal/report"
	"github.com/JakeFAU/seo-orchestrator/internal/scheduler"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/store"
)

const (
	defaultRequestTimeout = 60 * time.Second
	maxConfigBytes        = 1 << 20
	maxOptionsBytes       = 64 << 10
)

// TaskRunner is the scheduler surface the dashboard drives.
type TaskRunner interface {
	RunTask(ctx context.Context, name seo.TaskName, opts seo.TaskOptions) (seo.TaskResult, error)
	Status() []scheduler.TaskStatus
	PerformHealthCheck(ctx context.Context) (seo.HealthReport, error)
	Reschedule(schedules []seo.TaskSchedule) error
}

// ReportBuilder renders dashboard reports.
type ReportBuilder interface {
	Build(ctx context.Context, t report.Type, limit int) (report.Document, error)
}

// LogSource serves recently recorded log entries.
type LogSource interface {
	Recent(service string, limit int) []logging.Entry
	Services() []string
}

// Options tune the server.
type Options struct {
	Auth config.AuthConfig
	// RequestTimeout bounds every route except task runs and the event stream.
	RequestTimeout time.Duration
	// ConfigPath is the file PUT /api/config replaces. Empty disables the route.
	ConfigPath string
	// OnConfigChange receives every configuration accepted through the API.
	OnConfigChange func(config.Config)
}

// Server wires HTTP handlers to the scheduler, stores and event stream.
type Server struct {
	router  chi.Router
	tasks   TaskRunner
	reports ReportBuilder
	history seo.HistoryStore
	runs    store.RunRepository
	logs    LogSource
	stream  *Broadcaster
	opts    Options
	started time.Time
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. history, runs, logs
// and stream may be nil; their routes then answer 503.
func NewServer(
	tasks TaskRunner,
	reports ReportBuilder,
	history seo.HistoryStore,
	runs store.RunRepository,
	logs LogSource,
	stream *Broadcaster,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		tasks:   tasks,
		reports: reports,
		history: history,
		runs:    runs,
		logs:    logs,
		stream:  stream,
		opts:    opts,
		started: time.Now(),
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if opts.Auth.Enabled {
			r.Use(basicAuthMiddleware(opts.Auth.Username, opts.Auth.Password))
		}
		// Task runs and the stream outlive the request timeout.
		r.Post("/tasks/{name}", s.runTask)
		r.Get("/ws", s.events)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(opts.RequestTimeout))
			r.Get("/status", s.status)
			r.Get("/health", s.health)
			r.Get("/reports/{type}", s.report)
			r.Get("/logs", s.listLogs)
			r.Get("/logs/{service}", s.listLogs)
			r.Get("/runs", s.listRuns)
			r.Get("/runs/{id}", s.getRun)
			r.Put("/config", s.updateConfig)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Tasks         []scheduler.TaskStatus `json:"tasks"`
	LatestAudit   *latestAudit           `json:"latest_audit,omitempty"`
	Clients       int                    `json:"dashboard_clients"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
}

type latestAudit struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	OverallScore int       `json:"overall_score"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Tasks:         s.tasks.Status(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if s.stream != nil {
		resp.Clients = s.stream.Count()
	}
	if s.history != nil {
		run, err := s.history.Latest(r.Context())
		switch {
		case err == nil:
			resp.LatestAudit = &latestAudit{ID: run.ID, Timestamp: run.Timestamp, OverallScore: run.OverallScore}
		case errors.Is(err, seo.ErrNoHistory):
		default:
			s.logger.Warn("load latest audit failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	report, err := s.tasks.PerformHealthCheck(r.Context())
	if err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) runTask(w http.ResponseWriter, r *http.Request) {
	name, err := seo.ParseTaskName(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	opts, err := decodeOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.tasks.RunTask(r.Context(), name, opts)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, seo.ErrUnknownTask):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, seo.ErrTaskInFlight):
		writeJSON(w, http.StatusConflict, taskError{Error: err.Error(), Result: &result})
	default:
		writeJSON(w, http.StatusInternalServerError, taskError{Error: err.Error(), Result: &result})
	}
}

type taskError struct {
	Error  string          `json:"error"`
	Result *seo.TaskResult `json:"result,omitempty"`
}

func decodeOptions(r *http.Request) (seo.TaskOptions, error) {
	opts := seo.TaskOptions{}
	if r.Body == nil || r.ContentLength == 0 {
		return opts, nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxOptionsBytes))
	if err := dec.Decode(&opts); err != nil {
		if errors.Is(err, io.EOF) {
			return seo.TaskOptions{}, nil
		}
		return nil, fmt.Errorf("invalid JSON options: %w", err)
	}
	if opts == nil {
		opts = seo.TaskOptions{}
	}
	return opts, nil
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "reports unavailable")
		return
	}
	t, err := report.ParseType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	limit, err := parseLimit(r, defaultReportLimit, maxReportLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := s.reports.Build(r.Context(), t, limit)
	if err != nil {
		if errors.Is(err, seo.ErrNoHistory) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("build report failed", zap.String("type", string(t)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	if t == report.TypePDF {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="seo-report.%s"`, doc.Extension()))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Body); err != nil {
		s.logger.Warn("write report failed", zap.Error(err))
	}
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	if s.opts.ConfigPath == "" {
		writeError(w, http.StatusServiceUnavailable, "config updates disabled")
		return
	}
	raw, err := readBody(r, maxConfigBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !json.Valid(raw) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	cfg, err := config.Parse(raw, "json")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	schedules, err := cfg.TaskSchedules()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// The file is only written once the scheduler has accepted the new
	// schedules, so a rejected update leaves disk and memory in agreement.
	if err := s.tasks.Reschedule(schedules); err != nil {
		s.logger.Error("reschedule for config update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("config not saved: %v", err))
		return
	}
	if _, err := config.Update(s.opts.ConfigPath, raw); err != nil {
		s.logger.Error("config update applied to the scheduler but not saved", zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("schedules applied but config not saved: %v", err))
		return
	}
	if s.opts.OnConfigChange != nil {
		s.opts.OnConfigChange(cfg)
	}
	s.logger.Info("configuration updated", zap.Int("schedules", len(schedules)))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "updated",
		"applied": "automation schedules; other settings take effect after restart",
		"tasks":   s.tasks.Status(),
	})
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, errors.New("request body is required")
	}
	raw, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("request body is required")
	}
	return raw, nil
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	s.stream.ServeHTTP(w, r)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Debug("request completed",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

// basicAuthMiddleware checks a single shared credential pair in constant time.
func basicAuthMiddleware(username, password string) func(http.Handler) http.Handler {
	wantUser := []byte(username)
	wantPass := []byte(password)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			userOK := subtle.ConstantTimeCompare([]byte(user), wantUser) == 1
			passOK := subtle.ConstantTimeCompare([]byte(pass), wantPass) == 1
			if !ok || !userOK || !passOK {
				w.Header().Set("WWW-Authenticate", `Basic realm="seo-dashboard", charset="UTF-8"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
