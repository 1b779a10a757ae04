// Package http assembles the REST surface of the ledger.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ulule/limiter/v3"

	"github.com/mmynk/groupledger/internal/auth"
	"github.com/mmynk/groupledger/internal/http/expense"
	"github.com/mmynk/groupledger/internal/http/group"
	"github.com/mmynk/groupledger/internal/http/invitation"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/middleware"
)

// Options configures the cross-cutting middleware of the router.
type Options struct {
	JWT     *auth.JWTManager
	Metrics *metrics.Metrics

	// Limiter is optional; nil disables rate limiting.
	Limiter *limiter.Limiter

	// CORSOrigins defaults to any origin when empty.
	CORSOrigins []string

	// Timeout bounds each API request. Zero means no bound.
	Timeout time.Duration
}

func New(
	opts Options,
	groupsV1 *group.Handler,
	invitationsV1 *invitation.Handler,
	ledgerV1 *expense.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.Logging)
	router.Use(chimw.Recoverer)
	router.Use(opts.Metrics.Middleware)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(middleware.RateLimit(opts.Limiter))
		}
		if opts.Timeout > 0 {
			r.Use(chimw.Timeout(opts.Timeout))
		}
		r.Use(middleware.RequireAuth(opts.JWT))

		r.Get("/categories", groupsV1.ListCategories)

		r.Route("/groups", func(r chi.Router) {
			r.Use(chimw.AllowContentType("application/json"))
			groupsV1.Routes(r)
			ledgerV1.Routes(r)
		})

		r.Route("/invitations", func(r chi.Router) {
			r.Use(chimw.AllowContentType("application/json"))
			invitationsV1.Routes(r)
		})
	})

	return router
}
