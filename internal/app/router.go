package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vendora-erp/vendora-erp/internal/fulfillment"
	"github.com/vendora-erp/vendora-erp/internal/observability"
	"github.com/vendora-erp/vendora-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	FulfillmentHandler *fulfillment.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter assembles the chi router with the middleware stack and routes.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/fulfillment", func(api chi.Router) {
		if params.FulfillmentHandler != nil {
			params.FulfillmentHandler.MountRoutes(api)
		}
	})
	if params.JobHandler != nil {
		r.Route("/api/jobs", func(api chi.Router) {
			params.JobHandler.MountRoutes(api)
		})
	}
	return r
}
