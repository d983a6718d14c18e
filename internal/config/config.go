// Package config resolves the process-wide Config value every other
// component is constructed from: listen address, database/redis DSNs,
// cookie domain, per-cohort session lifetimes, rate-limit and TOTP
// parameters. A flat struct of already-resolved values, validated once
// at startup rather than re-checked on every read.
package config

import (
	"fmt"
	"time"

	"github.com/darkauth/darkauth/internal/logging"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Issuer       string
	ListenAddr   string
	Development  bool
	CookieDomain string

	PostgresDSN string
	RedisAddr   string
	RedisDB     int

	KekPassphraseEnvVar string

	AdminSessionIdleTimeout     time.Duration
	AdminSessionAbsoluteTTL     time.Duration
	DefaultUserSessionIdleTimeout time.Duration
	DefaultUserSessionAbsoluteTTL time.Duration

	AuthRequestTTL   time.Duration
	AuthCodeTTL      time.Duration
	LoginSessionTTL  time.Duration

	TotpIssuer       string
	TotpMaxFailures  int
	TotpLockDuration time.Duration

	CorsAllowedOrigins []string

	AuditBufferSize int
}

const (
	MinAuthCodeTTL = 1 * time.Second
	MaxAuthCodeTTL = 60 * time.Second
	MaxAuthRequestTTL = 10 * time.Minute
)

// Default returns the shipped defaults (idle 30
// min, admin absolute 24h, auth code 60s, login session 5 min, TOTP
// lockout 5 failures / 10 min). Callers overlay environment-specific
// values (issuer, DSNs, cookie domain) before calling Validate.
func Default() *Config {
	return &Config{
		ListenAddr:                    ":8080",
		AdminSessionIdleTimeout:       30 * time.Minute,
		AdminSessionAbsoluteTTL:       24 * time.Hour,
		DefaultUserSessionIdleTimeout: 30 * time.Minute,
		DefaultUserSessionAbsoluteTTL: 24 * time.Hour,
		AuthRequestTTL:                10 * time.Minute,
		AuthCodeTTL:                   60 * time.Second,
		LoginSessionTTL:               5 * time.Minute,
		TotpIssuer:                    "DarkAuth",
		TotpMaxFailures:               5,
		TotpLockDuration:              10 * time.Minute,
		AuditBufferSize:               1024,
		KekPassphraseEnvVar:           "DARKAUTH_KEK_PASSPHRASE",
	}
}

// Validate checks every field the rest of the process depends on at
// startup: logged first, then field-by-field, failing fast on the first
// problem.
func (c *Config) Validate(logger *logging.Logger) error {
	logger.Debugw("validating config", "issuer", c.Issuer, "listenAddr", c.ListenAddr)

	if c.Issuer == "" {
		return fmt.Errorf("config: issuer is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listenAddr is required")
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("config: postgresDSN is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("config: redisAddr is required")
	}
	if c.CookieDomain == "" {
		return fmt.Errorf("config: cookieDomain is required")
	}
	if c.AuthCodeTTL <= 0 || c.AuthCodeTTL > MaxAuthCodeTTL {
		return fmt.Errorf("config: authCodeTTL must be in (0, %s], got %s", MaxAuthCodeTTL, c.AuthCodeTTL)
	}
	if c.AuthRequestTTL <= 0 || c.AuthRequestTTL > MaxAuthRequestTTL {
		return fmt.Errorf("config: authRequestTTL must be in (0, %s], got %s", MaxAuthRequestTTL, c.AuthRequestTTL)
	}
	if c.LoginSessionTTL <= 0 {
		return fmt.Errorf("config: loginSessionTTL must be positive")
	}
	if c.AdminSessionIdleTimeout <= 0 || c.AdminSessionAbsoluteTTL <= 0 {
		return fmt.Errorf("config: admin session timeouts must be positive")
	}
	if c.AdminSessionIdleTimeout > c.AdminSessionAbsoluteTTL {
		return fmt.Errorf("config: admin idle timeout cannot exceed absolute ttl")
	}
	if c.DefaultUserSessionIdleTimeout <= 0 || c.DefaultUserSessionAbsoluteTTL <= 0 {
		return fmt.Errorf("config: user session timeouts must be positive")
	}
	if c.TotpMaxFailures <= 0 {
		return fmt.Errorf("config: totpMaxFailures must be positive")
	}
	if c.TotpLockDuration <= 0 {
		return fmt.Errorf("config: totpLockDuration must be positive")
	}
	if c.AuditBufferSize <= 0 {
		return fmt.Errorf("config: auditBufferSize must be positive")
	}
	for _, origin := range c.CorsAllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("config: corsAllowedOrigins must not contain \"*\"")
		}
	}
	return nil
}
