package httpapi

import (
	"context"
	"time"

	"github.com/darkauth/darkauth/internal/ake"
	"github.com/darkauth/darkauth/internal/audit"
	"github.com/darkauth/darkauth/internal/config"
	"github.com/darkauth/darkauth/internal/logging"
	"github.com/darkauth/darkauth/internal/metrics"
	"github.com/darkauth/darkauth/internal/oidc"
	"github.com/darkauth/darkauth/internal/rbac"
	"github.com/darkauth/darkauth/internal/session"
	"github.com/darkauth/darkauth/internal/store"
	"github.com/darkauth/darkauth/internal/totp"
)

// AppContext is the explicit, plumbed-through value used in place of a
// singleton/global: database handle, every engine, the
// logger, and the resolved config. Constructed once in cmd/darkauthd and
// passed to every handler constructor.
type AppContext struct {
	Config   *config.Config
	Logger   *logging.Logger
	DB       *store.DB
	UserAke  *ake.Engine
	AdminAke *ake.Engine
	Sessions *session.Manager
	Oidc     *oidc.Engine
	Rbac     *rbac.Resolver
	Totp     *totp.Engine
	Audit    *audit.Logger
	Metrics  *metrics.Metrics
	PendingReg *ake.RedisPendingRegistrationStore
}

type contextKey int

const principalContextKey contextKey = iota

func withPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalContextKey, principalID)
}

func principalFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(principalContextKey).(string)
	return v, ok && v != ""
}

func now() time.Time { return time.Now() }
