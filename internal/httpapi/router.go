package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/darkauth/darkauth/internal/crypto/kek"
)

func chiURLParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// NewRouter wires every HTTP route onto ac, using a chi-based router
// assembly: security headers and CORS at
// the top, route-keyed rate limiting per group, then the three cohorts
// (user, admin, install) and the unauthenticated well-known documents.
func NewRouter(ac *AppContext, kekStore *kek.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(ac.Config.Development))
	r.Use(corsMiddleware(ac.Config.CorsAllowedOrigins))
	if ac.Metrics != nil {
		r.Use(ac.Metrics.Middleware)
		r.Handle("/metrics", ac.Metrics.Handler())
	}

	r.Get("/.well-known/openid-configuration", Wrap(ac.Logger, wellKnownOpenIDConfiguration(ac)))
	r.Get("/.well-known/jwks.json", Wrap(ac.Logger, wellKnownJWKS(ac)))

	r.Group(func(r chi.Router) {
		r.Use(routeRateLimit(30, time.Minute))
		r.Post("/api/user/opaque/register/start", Wrap(ac.Logger, userRegisterStart(ac)))
		r.Post("/api/user/opaque/register/finish", Wrap(ac.Logger, userRegisterFinish(ac)))
		r.Post("/api/user/opaque/login/start", Wrap(ac.Logger, userLoginStart(ac)))
		r.Post("/api/user/opaque/login/finish", Wrap(ac.Logger, userLoginFinish(ac)))
	})

	r.Group(func(r chi.Router) {
		r.Use(principalRateLimit(120, time.Minute))
		r.Get("/api/user/otp/status", Wrap(ac.Logger, userOtpStatus(ac)))
		r.Post("/api/user/otp/verify", Wrap(ac.Logger, userOtpVerify(ac)))
		r.Post("/api/user/otp/setup/init", Wrap(ac.Logger, userOtpSetupInit(ac)))
		r.Post("/api/user/otp/setup/verify", Wrap(ac.Logger, userOtpSetupVerify(ac)))
		r.Post("/api/user/authorize/finalize", Wrap(ac.Logger, authorizeFinalize(ac)))
	})

	r.Group(func(r chi.Router) {
		r.Use(routeRateLimit(60, time.Minute))
		r.Get("/authorize", Wrap(ac.Logger, authorize(ac)))
		r.Post("/token", Wrap(ac.Logger, token(ac)))
	})

	r.Group(func(r chi.Router) {
		r.Use(routeRateLimit(10, time.Minute))
		ceremony := newInstallCeremony()
		r.Post("/install/init", Wrap(ac.Logger, installInit(ac, ceremony)))
		r.Post("/install/complete", Wrap(ac.Logger, installComplete(ac, ceremony)))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(routeRateLimit(30, time.Minute))
			r.Post("/opaque/login/start", Wrap(ac.Logger, adminLoginStart(ac)))
			r.Post("/opaque/login/finish", Wrap(ac.Logger, adminLoginFinish(ac)))
		})
		r.Group(func(r chi.Router) {
			r.Use(principalRateLimit(120, time.Minute))
			r.Post("/otp/verify", Wrap(ac.Logger, adminOtpVerify(ac)))
			r.Get("/audit-logs", Wrap(ac.Logger, auditLogsList(ac)))
			r.Get("/audit-logs/{id}", Wrap(ac.Logger, auditLogDetail(ac)))
			r.Post("/jwks/rotate", Wrap(ac.Logger, jwksRotate(ac, kekStore)))
		})
	})

	return r
}
