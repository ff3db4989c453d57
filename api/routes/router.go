package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldpath/visittracker/api/controllers"
	"github.com/fieldpath/visittracker/api/middleware"
	"github.com/fieldpath/visittracker/internal/directory"
	"github.com/fieldpath/visittracker/internal/visits"
	"github.com/fieldpath/visittracker/pkg/config"
	"github.com/fieldpath/visittracker/pkg/logger"
	"github.com/fieldpath/visittracker/pkg/redis"
)

// NewRouter wires every HTTP route. redisClient is only used for write rate
// limiting and may be nil; readiness pings every non-nil entry in deps.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	deps map[string]controllers.Pinger,
	redisClient *redis.Client,
	visitsService visits.Service,
	directoryService directory.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Stream.AllowedOrigins),
	)

	writeLimit := func(next http.Handler) http.Handler { return next }
	if redisClient != nil {
		policy := middleware.NewRateLimitPolicy("writes", cfg.RateLimit.Window, cfg.RateLimit.WriteLimit)
		writeLimit = middleware.RateLimit(policy, redisClient, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Get("/visits", controllers.VisitFeed(visitsService, logg))

	r.With(middleware.TenantScope(logg)).
		Handle("/ws/tenants/{tenantId}/visits", controllers.NewVisitStreamHandler(visitsService, logg, cfg.Stream.AllowedOrigins, cfg.Stream.PingInterval))

	r.Route("/api/v1/tenants/{tenantId}", func(r chi.Router) {
		r.Use(middleware.TenantScope(logg))

		r.Get("/", controllers.TenantGet(directoryService, logg))
		r.With(writeLimit).Put("/", controllers.TenantSave(directoryService, logg))
		r.With(writeLimit).Post("/deactivate", controllers.TenantDeactivate(directoryService, logg))

		r.Route("/visits", func(r chi.Router) {
			r.Get("/", controllers.VisitList(visitsService, logg))
			r.Get("/{visitId}", controllers.VisitGet(visitsService, logg))
			r.Group(func(r chi.Router) {
				r.Use(writeLimit)
				r.Post("/", controllers.VisitCreate(visitsService, logg))
				r.Put("/{visitId}", controllers.VisitUpdate(visitsService, logg))
				r.Post("/{visitId}/approve", controllers.VisitApprove(visitsService, logg))
			})
		})

		r.Get("/customers", controllers.CustomerList(directoryService, logg))
		r.With(writeLimit).Post("/customers", controllers.CustomerSave(directoryService, logg))
		r.Get("/routes", controllers.RouteList(directoryService, logg))
		r.With(writeLimit).Post("/routes", controllers.RouteSave(directoryService, logg))
		r.Get("/users", controllers.UserList(directoryService, logg))
		r.With(writeLimit).Post("/users", controllers.UserSave(directoryService, logg))
	})

	return r
}
