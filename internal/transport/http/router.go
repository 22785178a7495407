package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paflow/internal/platform/middleware"
)

const requestTimeout = 30 * time.Second

// Registrar adds a module's routes to the authenticated API router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter assembles the full HTTP surface: health and metrics outside the
// authenticated chain, every module's routes under /api behind it.
func NewRouter(logger *slog.Logger, signingKey []byte, health http.HandlerFunc, apis ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.RequireActor(signingKey, logger))
		for _, a := range apis {
			a.Register(api)
		}
	})
	return r
}
