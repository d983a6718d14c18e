package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkauth/darkauth/internal/logging"
)

func validConfig() *Config {
	c := Default()
	c.Issuer = "https://auth.example.com"
	c.PostgresDSN = "postgres://localhost/darkauth"
	c.RedisAddr = "localhost:6379"
	c.CookieDomain = "example.com"
	return c
}

func TestDefaultThenValidateSucceedsOnceOverlaid(t *testing.T) {
	t.Parallel()
	logger := logging.New(true)
	require.NoError(t, validConfig().Validate(logger))
}

func TestValidateRequiresIssuer(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.Issuer = ""
	require.Error(t, c.Validate(logging.New(true)))
}

func TestValidateRejectsWildcardCors(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.CorsAllowedOrigins = []string{"https://app.example.com", "*"}
	require.Error(t, c.Validate(logging.New(true)))
}

func TestValidateRejectsAuthCodeTTLOutOfRange(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.AuthCodeTTL = MaxAuthCodeTTL + 1
	require.Error(t, c.Validate(logging.New(true)))
}

func TestValidateRejectsAdminIdleExceedingAbsolute(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.AdminSessionIdleTimeout = c.AdminSessionAbsoluteTTL + 1
	err := c.Validate(logging.New(true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin idle timeout")
}

func TestValidateRejectsNonPositiveAuditBufferSize(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.AuditBufferSize = 0
	require.Error(t, c.Validate(logging.New(true)))
}
