// Package http exposes the REST API for expenses, budgets, alerts and the
// derived analytics views.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"budgetwatch/internal/cache"
	"budgetwatch/internal/core"
	"budgetwatch/internal/forecast"
	"budgetwatch/internal/log"
	"budgetwatch/internal/middleware/ratelimit"
	"budgetwatch/internal/services"
	"budgetwatch/internal/storage"
)

// BudgetStore is the storage surface the budget endpoints need.
type BudgetStore interface {
	UpsertBudget(ctx context.Context, b core.BudgetLimit) error
	ListBudgets(ctx context.Context) ([]core.BudgetLimit, error)
	DeleteBudget(ctx context.Context, category string, period core.Period) error
}

// AlertReader lists recorded alerts for the API.
type AlertReader interface {
	ListAlerts(ctx context.Context, limit int) ([]storage.Alert, error)
}

type Server struct {
	http.Server

	// DefaultForecastDays is the horizon used when /forecast gets no days
	// parameter. Set it before serving; zero falls back to 30.
	DefaultForecastDays int

	expenses   *services.ExpenseService
	evaluation *services.EvaluationService
	budgets    BudgetStore
	alerts     AlertReader
	logger     *log.Logger

	rateLimiter *ratelimit.Limiter

	// LRU caches for the derived read views, invalidated on writes
	summaryCache  *cache.LRUCache[core.SpendSummary]
	forecastCache *cache.LRUCache[[]forecast.Point]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, expenses *services.ExpenseService, evaluation *services.EvaluationService, budgets BudgetStore, alerts AlertReader, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		expenses:         expenses,
		evaluation:       evaluation,
		budgets:          budgets,
		alerts:           alerts,
		logger:           logger.WithComponent(log.ComponentHTTP),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		summaryCache:     cache.NewLRUCache[core.SpendSummary](100, 5*time.Minute),
		forecastCache:    cache.NewLRUCache[[]forecast.Point](50, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/expenses", s.withSecurityHeaders(s.handleExpenses))
	mux.HandleFunc("/budgets", s.withSecurityHeaders(s.handleBudgets))
	mux.HandleFunc("/alerts", s.withSecurityHeaders(s.handleListAlerts))
	mux.HandleFunc("/summary", s.withSecurityHeaders(s.handleSummary))
	mux.HandleFunc("/forecast", s.withSecurityHeaders(s.handleForecast))
	mux.HandleFunc("/anomalies", s.withSecurityHeaders(s.handleAnomalies))
	mux.HandleFunc("/evaluate", s.withSecurityHeaders(s.handleEvaluate))

	return s
}

// startCacheCleanup runs periodic cleanup for both caches
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			summaryCleaned := s.summaryCache.CleanExpired()
			forecastCleaned := s.forecastCache.CleanExpired()
			if summaryCleaned > 0 || forecastCleaned > 0 {
				s.logger.Debug("Cache cleanup completed",
					"summary_entries_removed", summaryCleaned,
					"forecast_entries_removed", forecastCleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// invalidateDerived drops cached views after a write.
func (s *Server) invalidateDerived() {
	s.summaryCache.Clear()
	s.forecastCache.Clear()
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}

		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}

		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		s.logger.InfoContext(ctx, "Request started",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP)

		// Rate limit mutating requests only
		if r.Method != http.MethodGet && !s.rateLimiter.Allow(clientIP) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		s.logger.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, duration.Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
