// Package server wires the HTTP surface: upload, analysis, the source
// library, and operational endpoints, behind rate limiting, concurrency
// gating, logging, and panic recovery.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sourcelens/ingestion-service/internal/analysis"
	"github.com/sourcelens/ingestion-service/internal/config"
	"github.com/sourcelens/ingestion-service/internal/library"
	"github.com/sourcelens/ingestion-service/internal/pipeline"
)

type Server struct {
	cfg      config.Config
	log      *slog.Logger
	pipe     *pipeline.Pipeline
	lib      *library.Store
	analyzer *analysis.Service

	requestSem *semaphore.Weighted
	visionSem  *semaphore.Weighted

	limiters sync.Map // ip -> *rate.Limiter
	metrics  serverMetrics
}

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}

func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}

func (m *serverMetrics) get() (total, active int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs
}

// New builds a server. lib may be nil (library endpoints return 503) and
// analyzer may be unavailable (analyze returns 503).
func New(cfg config.Config, log *slog.Logger, pipe *pipeline.Pipeline, lib *library.Store, analyzer *analysis.Service) *Server {
	return &Server{
		cfg:        cfg,
		log:        log,
		pipe:       pipe,
		lib:        lib,
		analyzer:   analyzer,
		requestSem: semaphore.NewWeighted(cfg.MaxConcurrentRequests),
		visionSem:  semaphore.NewWeighted(cfg.MaxVisionConcurrent),
	}
}

// Routes assembles the router. Heavy endpoints carry rate limiting and the
// concurrency gate; operational endpoints stay cheap and ungated.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withLogging, s.withRecovery)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Group(func(r chi.Router) {
		r.Use(s.withRateLimit, s.withConcurrencyLimit)

		r.Post("/upload", s.handleUpload)
		r.Post("/analyze", s.handleAnalyze)

		r.Route("/library/sources", func(r chi.Router) {
			r.Post("/", s.handleLibrarySave)
			r.Get("/", s.handleLibraryList)
			r.Get("/{id}", s.handleLibraryGet)
			r.Delete("/{id}", s.handleLibraryDelete)
		})
	})

	return r
}

// StartLimiterCleanup clears the per-IP limiter map on an interval and logs
// runtime stats. The map would otherwise grow without bound.
func (s *Server) StartLimiterCleanup() {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			total, active := s.metrics.get()
			s.log.Info("housekeeping", "active", active, "total", total)
			s.limiters.Range(func(key, _ any) bool {
				s.limiters.Delete(key)
				return true
			})
		}
	}()
}

// ---------- Middleware ----------

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &wrapWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", sanitizeLogString(r.URL.Path),
			"status", ww.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal server error", "internal_error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := s.limiterFor(clientIP(r))
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limit")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withConcurrencyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.requestSem.Acquire(r.Context(), 1); err != nil {
			writeError(w, http.StatusServiceUnavailable, "service at capacity", "capacity")
			return
		}
		defer s.requestSem.Release(1)

		s.metrics.incActive()
		defer s.metrics.decActive()

		next.ServeHTTP(w, r)
	})
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ---------- Helpers ----------

func (s *Server) limiterFor(ip string) *rate.Limiter {
	if v, ok := s.limiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}

	every := s.cfg.RateLimitEvery
	if every <= 0 {
		every = 600 * time.Millisecond
	}
	burst := s.cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}

	limiter := rate.NewLimiter(rate.Every(every), burst)
	actual, _ := s.limiters.LoadOrStore(ip, limiter)
	return actual.(*rate.Limiter)
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx > 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, os.TempDir(), "[tmp]")
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func parseJSON[T any](r *http.Request, limit int64) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	if err := dec.Decode(new(any)); err != io.EOF {
		if err == nil {
			return out, fmt.Errorf("unexpected trailing data")
		}
		return out, err
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the error envelope: {message, error?}. The error field
// carries a machine-readable code (e.g. TOO_MANY_PAGES) when one exists.
func writeError(w http.ResponseWriter, status int, message, code string) {
	body := map[string]any{"message": message}
	if code != "" {
		body["error"] = code
	}
	writeJSON(w, status, body)
}
