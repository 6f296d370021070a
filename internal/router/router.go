package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-auth-server/internal/handler"
	"go-auth-server/internal/metrics"
	"go-auth-server/internal/middleware"
	"go-auth-server/internal/permission"
)

type Options struct {
	CORSOrigins []string
	// CORSHeaders are allowed in addition to the fixed request headers.
	CORSHeaders    []string
	TrustedProxies int
	RequestTimeout time.Duration
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
}

type Handlers struct {
	OAuth  *handler.OAuthHandler
	User   *handler.UserHandler
	Policy *handler.PolicyHandler
	Health *handler.HealthHandler
	Docs   *handler.DocsHandler
}

type Middleware struct {
	Auth *middleware.AuthMiddleware
	// OAuthAuth resolves Basic clients and users on /oauth so they are throttled by
	// principal rather than against the anonymous budget.
	OAuthAuth *middleware.AuthMiddleware
	RateLimit *middleware.RateLimitMiddleware
	// Throttle is nil when throttling is disabled.
	Throttle *middleware.ThrottleMiddleware
}

func New(opts Options, mw Middleware, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.ClientIP(opts.TrustedProxies))
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	if opts.Metrics != nil {
		r.Use(middleware.Metrics(opts.Metrics))
	}
	r.Use(middleware.CORS(opts.CORSOrigins, opts.CORSHeaders...))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", h.Health.Health)
	if h.Docs != nil {
		r.Get("/openapi.yaml", h.Docs.OpenAPI)
		r.Get("/docs", h.Docs.SwaggerUI)
	}
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	throttled := func(next http.Handler) http.Handler { return next }
	if mw.Throttle != nil {
		throttled = mw.Throttle.Handler
	}

	r.Route("/oauth", func(oauth chi.Router) {
		oauth.Use(mw.RateLimit.Handler)
		oauth.Use(mw.OAuthAuth.Authenticate)
		oauth.Use(throttled)

		oauth.Post("/token", h.OAuth.Token)
		oauth.Get("/authorize", h.OAuth.Authorize)
		oauth.Post("/authorize", h.OAuth.Authorize)
		oauth.Post("/revoke", h.OAuth.Revoke)
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(opts.RequestTimeout))
		api.Use(mw.Auth.Authenticate)
		api.Use(throttled)

		api.With(mw.Auth.RequirePermission(permission.AllowAny)).Post("/users", h.User.Create)
		api.With(mw.Auth.RequirePermission(permission.IsAuthenticated)).Get("/users/me", h.User.Me)
		api.With(mw.Auth.RequirePermission(permission.IsAuthenticated)).Get("/userinfo", h.User.UserInfo)
		api.With(mw.Auth.RequirePermission(permission.IsAuthenticatedOrReadOnly)).Get("/password-policy", h.Policy.Active)
		api.With(mw.Auth.RequirePermission(permission.IsAdminUser)).Post("/password-policy", h.Policy.Create)
	})

	return r
}
