package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/darkauth/darkauth/internal/config"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// configFromEnv overlays process environment variables onto config.Default
// without pulling in a config-file parser.
func configFromEnv() *config.Config {
	c := config.Default()
	c.Issuer = getenv("DARKAUTH_ISSUER", c.Issuer)
	c.ListenAddr = getenv("DARKAUTH_LISTEN_ADDR", c.ListenAddr)
	c.Development = getenvBool("DARKAUTH_DEV", c.Development)
	c.CookieDomain = getenv("DARKAUTH_COOKIE_DOMAIN", c.CookieDomain)
	c.PostgresDSN = getenv("DARKAUTH_POSTGRES_DSN", c.PostgresDSN)
	c.RedisAddr = getenv("DARKAUTH_REDIS_ADDR", c.RedisAddr)
	c.RedisDB = getenvInt("DARKAUTH_REDIS_DB", c.RedisDB)
	c.KekPassphraseEnvVar = getenv("DARKAUTH_KEK_PASSPHRASE_ENV_VAR", c.KekPassphraseEnvVar)
	c.AdminSessionIdleTimeout = getenvDuration("DARKAUTH_ADMIN_SESSION_IDLE", c.AdminSessionIdleTimeout)
	c.AdminSessionAbsoluteTTL = getenvDuration("DARKAUTH_ADMIN_SESSION_ABSOLUTE", c.AdminSessionAbsoluteTTL)
	c.DefaultUserSessionIdleTimeout = getenvDuration("DARKAUTH_USER_SESSION_IDLE", c.DefaultUserSessionIdleTimeout)
	c.DefaultUserSessionAbsoluteTTL = getenvDuration("DARKAUTH_USER_SESSION_ABSOLUTE", c.DefaultUserSessionAbsoluteTTL)
	c.AuthRequestTTL = getenvDuration("DARKAUTH_AUTH_REQUEST_TTL", c.AuthRequestTTL)
	c.AuthCodeTTL = getenvDuration("DARKAUTH_AUTH_CODE_TTL", c.AuthCodeTTL)
	c.LoginSessionTTL = getenvDuration("DARKAUTH_LOGIN_SESSION_TTL", c.LoginSessionTTL)
	c.TotpIssuer = getenv("DARKAUTH_TOTP_ISSUER", c.TotpIssuer)
	c.TotpMaxFailures = getenvInt("DARKAUTH_TOTP_MAX_FAILURES", c.TotpMaxFailures)
	c.TotpLockDuration = getenvDuration("DARKAUTH_TOTP_LOCK_DURATION", c.TotpLockDuration)
	c.AuditBufferSize = getenvInt("DARKAUTH_AUDIT_BUFFER_SIZE", c.AuditBufferSize)
	if origins := os.Getenv("DARKAUTH_CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CorsAllowedOrigins = strings.Split(origins, ",")
	}
	return c
}
