// Package session implements SessionManager: opaque
// server-side sessions delivered via cookie, CSRF token binding, idle
// timeout and absolute expiry enforcement, and refresh-token rotation.
// Cookie naming and attributes live in exactly one place ("centralize
// cookie naming and attributes in one module;
// cohort selection via a parameter, not path inspection").
package session

import "net/http"

// Cohort distinguishes the user and admin session spaces, which never
// share a cookie, a CSRF token, or a session row.
type Cohort string

const (
	CohortUser  Cohort = "user"
	CohortAdmin Cohort = "admin"
)

func (c Cohort) sessionCookieName() string {
	if c == CohortAdmin {
		return "__Host-DarkAuth-Admin"
	}
	return "__Host-DarkAuth"
}

func (c Cohort) csrfCookieName() string {
	if c == CohortAdmin {
		return "__Host-DarkAuth-Admin-Csrf"
	}
	return "__Host-DarkAuth-Csrf"
}

// setCookies writes the paired session/CSRF cookies for cohort. __Host-
// prefixed cookies are Secure+Path=/ with no Domain attribute by browser
// contract, so cfg.CookieDomain is deliberately not applied here. The
// session cookie is HttpOnly; the CSRF cookie is not, so scripts can read it.
func setCookies(w http.ResponseWriter, cohort Cohort, sessionID, csrfToken string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     cohort.sessionCookieName(),
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     cohort.csrfCookieName(),
		Value:    csrfToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	})
}

// clearCookies deletes both cookies for cohort, used on logout/revoke.
func clearCookies(w http.ResponseWriter, cohort Cohort) {
	for _, name := range []string{cohort.sessionCookieName(), cohort.csrfCookieName()} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
			MaxAge:   -1,
		})
	}
}

// sessionIDFromRequest reads the opaque session id for cohort, if present.
func sessionIDFromRequest(r *http.Request, cohort Cohort) (string, bool) {
	c, err := r.Cookie(cohort.sessionCookieName())
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
