package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fleetcare/internal/types"
)

// A run over a large fleet can take a while; the timeout bounds it anyway.
const defaultRequestTimeout = 5 * time.Minute

// defaultRedactedHeaders are masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	adminKeyHeader,
}

// mountRoutes registers middleware in order:
//  1. Recoverer
//  2. ContextTimeout
//  3. RequestID
//  4. RequestLogger
//
// /healthz and /metrics stay public; /v1 sits behind AdminAuth.
func (s *Server) mountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))

	s.router.Get("/healthz", s.HandleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics)
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.AdminAuth)
		r.Post("/runs", s.handleRun)
		r.Post("/requests/{id}/notify-completed", s.handleNotifyCompleted)
		r.Get("/risk", s.handleRisk)
		r.Get("/rules/{id}/next", s.handleRuleNext)
	})
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware propagates X-Request-Id or mints one. The id doubles
// as the run id of any run the request triggers.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(types.WithRunID(r.Context(), id)))
	})
}
