// Package api provides the HTTP server for the engagement service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/touchsync/touchsync/internal/app/engagement"
	"github.com/touchsync/touchsync/internal/domain"
	"github.com/touchsync/touchsync/internal/health"
	"github.com/touchsync/touchsync/internal/infra/metrics"
)

var validate = validator.New()

// ServerConfig wires a Server.
type ServerConfig struct {
	Manager        *engagement.Manager
	Health         *health.Checker
	Verifier       Verifier
	Logger         *zap.Logger
	Version        string
	CORSOrigins    []string
	RequestTimeout time.Duration
	Metrics        bool
}

// Server is the engagement HTTP API server.
type Server struct {
	manager        *engagement.Manager
	health         *health.Checker
	verifier       Verifier
	log            *zap.Logger
	version        string
	corsOrigins    []string
	timeout        time.Duration
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Verifier == nil {
		cfg.Verifier = noopVerifier{}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Server{
		manager:        cfg.Manager,
		health:         cfg.Health,
		verifier:       cfg.Verifier,
		log:            cfg.Logger.Named("api"),
		version:        cfg.Version,
		corsOrigins:    cfg.CORSOrigins,
		timeout:        cfg.RequestTimeout,
		metricsEnabled: cfg.Metrics,
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(s.corsMiddleware)
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Get("/health/checks", s.handleHealthChecks)
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": s.version,
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/engagement", func(r chi.Router) {
		r.Use(authMiddleware(s.verifier))

		r.Get("/level", s.handleLevel)
		r.Post("/xp", s.handleAwardXP)
		r.Get("/streak", s.handleStreak)
		r.Post("/streak/check", s.handleStreakCheck)
		r.Get("/goals", s.handleGoals)
		r.Post("/goals/touch", s.handleGoalTouch)
		r.Post("/goals/response", s.handleGoalResponse)
		r.Post("/goals/quality", s.handleGoalQuality)
		r.Get("/summary", s.handleSummary)
		r.Get("/notifications", s.handleNotifications)
		r.Post("/notifications/{id}/shown", s.handleNotificationShown)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil && !s.health.IsHealthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthChecks(w http.ResponseWriter, r *http.Request) {
	statuses := []health.Status{}
	if s.health != nil {
		statuses = s.health.Statuses()
	}
	writeJSON(w, http.StatusOK, map[string]any{"checks": statuses})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    kind,
		},
	})
}

// writeDomainError maps engine errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnknownAction),
		errors.Is(err, domain.ErrInvalidGoal):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrMissingProfile):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, domain.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrRevisionConflict):
		writeError(w, http.StatusConflict, "conflict", "profile is being updated elsewhere, retry")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "error", "internal error")
	}
}

// decode reads a JSON body into v and validates it. An empty body leaves v zero.
func decode(r *http.Request, v any) error {
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}
	return validate.Struct(v)
}

// corsMiddleware adds CORS headers for the configured origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.corsOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

// instrument counts requests by route pattern and status.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}
