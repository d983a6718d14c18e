package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCohortCookieNamesDoNotOverlap(t *testing.T) {
	t.Parallel()
	assert.NotEqual(t, CohortUser.sessionCookieName(), CohortAdmin.sessionCookieName())
	assert.NotEqual(t, CohortUser.csrfCookieName(), CohortAdmin.csrfCookieName())
	assert.NotEqual(t, CohortUser.sessionCookieName(), CohortUser.csrfCookieName())
}

func TestSetCookiesWritesBothCookies(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	setCookies(rec, CohortUser, "session-id-value", "csrf-token-value", 3600)

	resp := rec.Result()
	var sessionCookie, csrfCookie *http.Cookie
	for _, c := range resp.Cookies() {
		switch c.Name {
		case CohortUser.sessionCookieName():
			sessionCookie = c
		case CohortUser.csrfCookieName():
			csrfCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	require.NotNil(t, csrfCookie)
	assert.Equal(t, "session-id-value", sessionCookie.Value)
	assert.True(t, sessionCookie.HttpOnly)
	assert.False(t, csrfCookie.HttpOnly)
	assert.Equal(t, "csrf-token-value", csrfCookie.Value)
}

func TestClearCookiesExpiresBoth(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	clearCookies(rec, CohortAdmin)

	for _, c := range rec.Result().Cookies() {
		assert.Equal(t, -1, c.MaxAge)
		assert.Empty(t, c.Value)
	}
}

func TestSessionIDFromRequest(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := sessionIDFromRequest(req, CohortUser)
	assert.False(t, ok)

	req.AddCookie(&http.Cookie{Name: CohortUser.sessionCookieName(), Value: "abc123"})
	id, ok := sessionIDFromRequest(req, CohortUser)
	require.True(t, ok)
	assert.Equal(t, "abc123", id)
}
