package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/packline-io/packline/internal/dispatch"
	"github.com/packline-io/packline/internal/labeling"
	"github.com/packline-io/packline/internal/observability"
	"github.com/packline-io/packline/internal/receiving"
	"github.com/packline-io/packline/internal/verification"
	"github.com/packline-io/packline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	Pool                *pgxpool.Pool
	Metrics             *observability.Metrics
	ReceivingHandler    *receiving.Handler
	LabelingHandler     *labeling.Handler
	VerificationHandler *verification.Handler
	DispatchHandler     *dispatch.Handler
	JobsHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with Packline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if params.ReceivingHandler != nil {
			api.Group(func(g chi.Router) {
				params.ReceivingHandler.MountRoutes(g)
			})
		}
		if params.LabelingHandler != nil {
			api.Group(func(g chi.Router) {
				params.LabelingHandler.MountRoutes(g)
			})
		}
		if params.VerificationHandler != nil {
			api.Group(func(g chi.Router) {
				g.Use(ScanRateLimiter(params.Config))
				params.VerificationHandler.MountRoutes(g)
			})
		}
		if params.DispatchHandler != nil {
			api.Route("/dispatch", func(g chi.Router) {
				params.DispatchHandler.MountRoutes(g)
			})
		}
		if params.JobsHandler != nil {
			api.Route("/jobs", func(g chi.Router) {
				params.JobsHandler.MountRoutes(g)
			})
		}
	})

	return r
}
