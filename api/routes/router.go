package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	listingcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/listings"
	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/internal/auth"
	"github.com/angelmondragon/marketplace-backend/internal/categories"
	"github.com/angelmondragon/marketplace-backend/internal/listings"
	"github.com/angelmondragon/marketplace-backend/internal/profiles"
	"github.com/angelmondragon/marketplace-backend/internal/reports"
	"github.com/angelmondragon/marketplace-backend/pkg/auth/session"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
)

type windowCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies is everything the router hands to middleware and controllers.
// Nil services make their routes answer 500 instead of panicking.
type Dependencies struct {
	Config    *config.Config
	Logger    *logger.Logger
	Sessions  session.AccessSessionChecker
	Limiter   windowCounter
	Readiness []controllers.ReadinessCheck

	Metrics  *metrics.Marketplace
	Gatherer prometheus.Gatherer

	Auth       auth.Service
	Profiles   profiles.Service
	Listings   listings.Service
	Categories categories.Service
	Reports    reports.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
	)
	if cfg.Sentry.Enabled() && sentry.CurrentHub().Client() != nil {
		r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	r.Use(
		middleware.Logging(logg),
		middleware.Metrics(deps.Metrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	limits := cfg.RateLimit
	loginPolicy := middleware.NewThrottlePolicy("login", limits.LoginWindow).
		Limit(middleware.ByClientIP, limits.LoginIPLimit).
		Limit(middleware.ByBodyEmail, limits.LoginEmailLimit)
	registerPolicy := middleware.NewThrottlePolicy("register", limits.RegisterWindow).
		Limit(middleware.ByClientIP, limits.RegisterIPLimit).
		Limit(middleware.ByBodyEmail, limits.RegisterEmailLimit)
	reportPolicy := middleware.NewThrottlePolicy("reports", limits.ReportWindow).
		Limit(middleware.ByIdentity, limits.ReportUserLimit)

	streamOpts := listingcontrollers.StreamOptions{
		Heartbeat: cfg.Streams.Heartbeat,
		Metrics:   deps.Metrics,
	}
	requireAuth := middleware.Auth(cfg.JWT, deps.Sessions, logg)
	optionalAuth := middleware.OptionalAuth(cfg.JWT, deps.Sessions, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness...))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.Throttle(loginPolicy, deps.Limiter, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.With(middleware.Throttle(registerPolicy, deps.Limiter, logg)).Post("/register", controllers.AuthRegister(deps.Auth, logg))
			r.With(requireAuth).Post("/logout", controllers.AuthLogout(deps.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
			r.Post("/verify-email", controllers.AuthVerifyEmail(deps.Auth, logg))
		})

		r.Get("/categories", controllers.CategoriesList(deps.Categories, logg))

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", listingcontrollers.List(deps.Listings, logg))
			r.Get("/stream", listingcontrollers.Stream(deps.Listings, streamOpts, logg))
			r.With(optionalAuth).Get("/{listingId}", listingcontrollers.Get(deps.Listings, logg))

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", listingcontrollers.Create(deps.Listings, cfg.Listings, logg))
				r.With(middleware.Throttle(reportPolicy, deps.Limiter, logg)).
					Post("/{listingId}/reports", controllers.ReportListing(deps.Reports, logg))
			})
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/profile", controllers.ProfileMe(deps.Profiles, logg))
			r.Put("/profile", controllers.ProfileUpdate(deps.Profiles, logg))
			r.Post("/profile/complete", controllers.ProfileComplete(deps.Profiles, logg))
			r.Get("/profile/stream", controllers.ProfileStream(deps.Profiles, cfg.Streams.Heartbeat, deps.Metrics, logg))
			r.Get("/listings", listingcontrollers.Mine(deps.Listings, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(middleware.RequireAdmin(logg))

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", listingcontrollers.AdminList(deps.Listings, logg))
			r.Get("/pending", listingcontrollers.AdminPending(deps.Listings, logg))
			r.Get("/pending/stream", listingcontrollers.AdminPendingStream(deps.Listings, streamOpts, logg))
			r.Post("/{listingId}/moderation", listingcontrollers.AdminModerate(deps.Listings, logg))
		})
		r.Post("/categories", controllers.AdminCategoryCreate(deps.Categories, logg))
		r.Get("/users/professionals", controllers.AdminListProfessionals(deps.Profiles, logg))
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", controllers.AdminReportsList(deps.Reports, logg))
			r.Post("/{reportId}/resolution", controllers.AdminReportResolve(deps.Reports, logg))
		})
	})

	return r
}
