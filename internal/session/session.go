package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/darkauth/darkauth/internal/apperr"
	"github.com/darkauth/darkauth/internal/store"
)

// Store is the subset of *store.DB this package needs.
type Store interface {
	CreateSession(ctx context.Context, s *store.Session) error
	SessionByID(ctx context.Context, id string) (*store.Session, error)
	SessionByRefreshHash(ctx context.Context, hash []byte) (*store.Session, error)
	TouchSession(ctx context.Context, id string, now time.Time) error
	MarkOtpVerified(ctx context.Context, id string) error
	RevokeSession(ctx context.Context, id string) error
	RotateRefreshToken(ctx context.Context, oldHash []byte, expectedClientID string, next *store.Session) (*store.Session, error)
}

// Manager owns session creation, validation, and rotation for both
// cohorts.
type Manager struct {
	store Store
}

func NewManager(s Store) *Manager {
	return &Manager{store: s}
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", apperr.Internal(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// StartParams configures a freshly created session.
type StartParams struct {
	Cohort       Cohort
	PrincipalID  string
	ClientID     *string
	OrgID        *string
	IdleTimeout  time.Duration
	AbsoluteTTL  time.Duration
	WithRefresh  bool // OIDC user sessions carry a refresh token; admin/browser sessions don't.
}

// StartResult is what Start returns: the persisted row plus the raw
// tokens that must never be persisted in the clear.
type StartResult struct {
	Session      *store.Session
	RawRefresh   string // empty unless StartParams.WithRefresh
}

// Start creates a new session row and, for OIDC sessions, a fresh refresh
// token bound to clientId. It does not
// write cookies; callers that serve browsers call WriteCookies separately
// so API-only token issuance (the /token endpoint) never sets one.
func (m *Manager) Start(ctx context.Context, p StartParams, now time.Time) (*StartResult, error) {
	sessionID, err := randomToken()
	if err != nil {
		return nil, err
	}
	csrfToken, err := randomToken()
	if err != nil {
		return nil, err
	}
	s := &store.Session{
		SessionID:         sessionID,
		Cohort:            string(p.Cohort),
		SubjectOrAdminID:  p.PrincipalID,
		ClientID:          p.ClientID,
		CreatedAt:         now,
		LastSeenAt:        now,
		IdleTimeoutAt:     now.Add(p.IdleTimeout),
		AbsoluteExpiresAt: now.Add(p.AbsoluteTTL),
		CSRFToken:         csrfToken,
		OrgID:             p.OrgID,
	}

	var rawRefresh string
	if p.WithRefresh {
		rawRefresh, err = randomToken()
		if err != nil {
			return nil, err
		}
		hash := hashToken(rawRefresh)
		s.RefreshTokenHash = hash
		chainID := uuid.NewString()
		s.RotationChainID = &chainID
	}

	if err := m.store.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	return &StartResult{Session: s, RawRefresh: rawRefresh}, nil
}

// WriteCookies sets the session/CSRF cookie pair for a browser-facing
// session (not used for pure OIDC token responses, which carry no
// cookie).
func (m *Manager) WriteCookies(w http.ResponseWriter, cohort Cohort, s *store.Session) {
	maxAge := int(time.Until(s.AbsoluteExpiresAt).Seconds())
	setCookies(w, cohort, s.SessionID, s.CSRFToken, maxAge)
}

// ClearCookies deletes the cookie pair, used on logout.
func (m *Manager) ClearCookies(w http.ResponseWriter, cohort Cohort) {
	clearCookies(w, cohort)
}

// Authenticate resolves the cohort's session cookie to a live session,
// enforcing idle timeout, absolute expiry, and revocation, then updates
// lastSeenAt best-effort. Cohort is always an explicit parameter — never inferred
// from the request path.
func (m *Manager) Authenticate(ctx context.Context, r *http.Request, cohort Cohort, now time.Time) (*store.Session, error) {
	sessionID, ok := sessionIDFromRequest(r, cohort)
	if !ok {
		return nil, apperr.Unauthorized("no session cookie", nil)
	}
	s, err := m.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, apperr.Unauthorized("invalid session", err)
	}
	if s.Cohort != string(cohort) {
		return nil, apperr.Unauthorized("cohort mismatch", nil)
	}
	if s.RevokedAt != nil {
		return nil, apperr.Unauthorized("session revoked", nil)
	}
	if now.After(s.AbsoluteExpiresAt) {
		return nil, apperr.Unauthorized("session expired", nil)
	}
	if now.After(s.IdleTimeoutAt) {
		return nil, apperr.Unauthorized("session idle timeout", nil)
	}
	_ = m.store.TouchSession(ctx, sessionID, now)
	return s, nil
}

// RequireCSRF enforces that the x-csrf-token header must equal the
// session's CSRF token exactly, regardless of the cookie being
// present, compared in constant time so a mismatching header can't be
// distinguished byte-by-byte.
func RequireCSRF(r *http.Request, s *store.Session) error {
	got := r.Header.Get("x-csrf-token")
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.CSRFToken)) != 1 {
		return apperr.ForbiddenCSRF("csrf token missing or mismatched")
	}
	return nil
}

// MarkOtpVerified flips a session's otp_verified flag after a successful
// TOTP challenge.
func (m *Manager) MarkOtpVerified(ctx context.Context, sessionID string) error {
	return m.store.MarkOtpVerified(ctx, sessionID)
}

// Revoke marks a session revoked server-side; callers clear cookies separately.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	return m.store.RevokeSession(ctx, sessionID)
}

// RotateRefresh implements the OIDC refresh_token grant's rotation
//: the presented raw refresh token is hashed and
// looked up, the bound clientId is checked against clientID inside the
// store transaction, and a replacement session row with fresh refresh/CSRF
// material is inserted while the old row is revoked, all in one
// transaction (internal/store.RotateRefreshToken).
func (m *Manager) RotateRefresh(ctx context.Context, rawOldRefresh string, clientID string, idleTimeout, absoluteTTL time.Duration, now time.Time) (*StartResult, *store.Session, error) {
	oldHash := hashToken(rawOldRefresh)

	rawNewRefresh, err := randomToken()
	if err != nil {
		return nil, nil, err
	}
	sessionID, err := randomToken()
	if err != nil {
		return nil, nil, err
	}
	csrfToken, err := randomToken()
	if err != nil {
		return nil, nil, err
	}

	next := &store.Session{
		SessionID:         sessionID,
		Cohort:            string(CohortUser),
		ClientID:          &clientID,
		CreatedAt:         now,
		LastSeenAt:        now,
		IdleTimeoutAt:     now.Add(idleTimeout),
		AbsoluteExpiresAt: now.Add(absoluteTTL),
		CSRFToken:         csrfToken,
		RefreshTokenHash:  hashToken(rawNewRefresh),
	}

	old, err := m.store.RotateRefreshToken(ctx, oldHash, clientID, next)
	if err != nil {
		return nil, nil, err
	}

	next.SubjectOrAdminID = old.SubjectOrAdminID
	next.OrgID = old.OrgID
	return &StartResult{Session: next, RawRefresh: rawNewRefresh}, old, nil
}
