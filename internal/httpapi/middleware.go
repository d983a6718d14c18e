package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// securityHeaders sets the fixed response headers required on every
// response: framing restrictions, MIME-sniffing off, referrer
// policy, and (outside development) HSTS.
func securityHeaders(development bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "same-origin")
			if !development {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware reflects only the configured allow-list; it never
// returns `*` with credentials, so an empty allow-list
// means no origin is ever reflected, not a wildcard fallback.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		// cors.Options treats an empty AllowedOrigins as "allow all", so
		// skip CORS handling entirely instead.
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "x-csrf-token", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// routeRateLimit applies an httprate limit keyed by (ip, endpoint). The
// authenticated route groups in router.go use principalRateLimit in its
// place, not in addition to it.
func routeRateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(rateLimitedResponse),
	)
}

// principalRateLimit keys by the principal stored in the request context
// by withPrincipal, falling back to the real IP when none is present.
// Nothing in router.go calls withPrincipal before this limiter runs
// (sessions are authenticated inside the handlers), so these limits are
// keyed by (ip, endpoint), not by principal.
func principalRateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if p, ok := principalFromContext(r.Context()); ok {
				return p, nil
			}
			return httprate.KeyByRealIP(r)
		}, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(rateLimitedResponse),
	)
}

func rateLimitedResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too_many_requests", ErrorDescription: "rate limit exceeded"})
}
