// Package oidc implements the OidcEngine: authorization
// request validation, PKCE binding, authorization-code issuance and
// single-use redemption, token composition, and refresh rotation — the
// OIDC half of the OPAQUE<->OIDC handoff.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"

	"github.com/darkauth/darkauth/internal/apperr"
	"github.com/darkauth/darkauth/internal/crypto/pkce"
	"github.com/darkauth/darkauth/internal/rbac"
	"github.com/darkauth/darkauth/internal/session"
	"github.com/darkauth/darkauth/internal/store"
)

const (
	ResponseTypeCode       = "code"
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// Store is the subset of *store.DB this package needs.
type Store interface {
	ClientByID(ctx context.Context, clientID string) (*store.Client, error)
	SubjectByID(ctx context.Context, sub string) (*store.Subject, error)
	CreateAuthRequest(ctx context.Context, r *store.AuthRequest) error
	AuthRequestByID(ctx context.Context, id string) (*store.AuthRequest, error)
	FinalizeAuthRequest(ctx context.Context, reqID, code, subject string, wrappedDrk []byte, zkClientPubKey *string, orgID *string, codeTTL time.Duration) error
	RedeemAuthorizationCode(ctx context.Context, code string) (*store.AuthorizationCode, error)
	AuthorizationCodeByCode(ctx context.Context, code string) (*store.AuthorizationCode, error)
	RevokeSessionsByAuthRequest(ctx context.Context, authRequestID string) error
}

// SessionIssuer is the subset of *session.Manager this package needs.
type SessionIssuer interface {
	Start(ctx context.Context, p session.StartParams, now time.Time) (*session.StartResult, error)
	RotateRefresh(ctx context.Context, rawOldRefresh, clientID string, idleTimeout, absoluteTTL time.Duration, now time.Time) (*session.StartResult, *store.Session, error)
}

// RbacResolver is the subset of *rbac.Resolver this package needs.
type RbacResolver interface {
	Resolve(ctx context.Context, subject, requestedOrgID string) (*rbac.Context, error)
}

// Engine drives the OIDC authorization-code and refresh-token grants.
type Engine struct {
	store    Store
	sessions SessionIssuer
	rbac     RbacResolver
	signer   *Signer
	issuer   string
}

func NewEngine(s Store, sessions SessionIssuer, r RbacResolver, signer *Signer, issuer string) *Engine {
	return &Engine{store: s, sessions: sessions, rbac: r, signer: signer, issuer: issuer}
}

// JWKS exposes the signer's published key set for the
// /.well-known/jwks.json endpoint.
func (e *Engine) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	return e.signer.JWKS(ctx)
}

func generateCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", apperr.Internal(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// AuthorizeParams is the validated query of a GET /authorize request.
type AuthorizeParams struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	ZkPubKey            *string
	RequestOrigin       string
}

// Authorize validates a pending authorization request against its client
// registration and persists it.
func (e *Engine) Authorize(ctx context.Context, p AuthorizeParams, ttl time.Duration, now time.Time) (*store.AuthRequest, error) {
	client, err := e.store.ClientByID(ctx, p.ClientID)
	if err != nil {
		return nil, apperr.Validation("unknown client", err)
	}
	if !client.MatchesRedirectURI(p.RedirectURI) {
		return nil, apperr.Validation("redirect_uri does not match a registered uri", nil)
	}
	if p.ResponseType != ResponseTypeCode {
		return nil, apperr.Validation("unsupported response_type", nil)
	}
	if client.PkceRequired() {
		if p.CodeChallenge == "" {
			return nil, apperr.Validation("pkce is required for this client", nil)
		}
		if p.CodeChallengeMethod != pkce.MethodS256 {
			return nil, apperr.Validation("code_challenge_method must be S256", nil)
		}
	} else if p.CodeChallenge != "" && p.CodeChallengeMethod != pkce.MethodS256 {
		return nil, apperr.Validation("code_challenge_method must be S256", nil)
	}

	req := &store.AuthRequest{
		ID:                  uuid.NewString(),
		ClientID:            p.ClientID,
		RedirectURI:         p.RedirectURI,
		ResponseType:        p.ResponseType,
		Scope:               p.Scope,
		State:               p.State,
		Nonce:               p.Nonce,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
		ZkPubKey:            p.ZkPubKey,
		RequestOrigin:       p.RequestOrigin,
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
		Status:              "pending",
	}
	if err := e.store.CreateAuthRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// FinalizeParams is what the already-authenticated sign-in UI submits
// once login (and OTP, if required) has succeeded.
type FinalizeParams struct {
	AuthRequestID  string
	Subject        string
	WrappedDrk     []byte
	ZkClientPubKey *string
	OrgID          *string
}

// Finalize converts a pending AuthRequest into an AuthorizationCode and
// returns the redirect URL carrying `code` and `state`. The nonce is carried by the store layer's
// FinalizeAuthRequest, unconditionally, into the AuthorizationCode row.
func (e *Engine) Finalize(ctx context.Context, p FinalizeParams, codeTTL time.Duration) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	if err := e.store.FinalizeAuthRequest(ctx, p.AuthRequestID, code, p.Subject, p.WrappedDrk, p.ZkClientPubKey, p.OrgID, codeTTL); err != nil {
		return "", err
	}
	req, err := e.store.AuthRequestByID(ctx, p.AuthRequestID)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(req.RedirectURI)
	if err != nil {
		return "", apperr.Internal(err)
	}
	q := u.Query()
	q.Set("code", code)
	q.Set("state", req.State)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// TokenResponse is the standard OIDC token response shape.
type TokenResponse struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    int64
	RefreshToken string
	IDToken      string
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (e *Engine) mintTokens(ctx context.Context, subject, clientID, orgID, scope, nonce string, now time.Time, client *store.Client) (*TokenResponse, *rbac.Context, error) {
	rbacCtx, err := e.rbac.Resolve(ctx, subject, orgID)
	if err != nil {
		return nil, nil, err
	}
	subjectRow, err := e.store.SubjectByID(ctx, subject)
	if err != nil {
		return nil, nil, err
	}

	idClaims := map[string]interface{}{
		"iss":            e.issuer,
		"sub":            subject,
		"aud":            clientID,
		"iat":            now.Unix(),
		"exp":            now.Add(client.AccessTokenLifetime()).Unix(),
		"email":          subjectRow.Email,
		"email_verified": true,
		"name":           subjectRow.DisplayName,
		"jti":            uuid.NewString(),
	}
	if nonce != "" {
		idClaims["nonce"] = nonce
	}
	if rbacCtx != nil {
		idClaims["org_id"] = rbacCtx.OrgID
		idClaims["org_slug"] = rbacCtx.OrgSlug
		idClaims["roles"] = []string{rbacCtx.RoleName}
		idClaims["permissions"] = rbacCtx.Permissions
	}
	idToken, err := e.signer.SignClaims(ctx, idClaims)
	if err != nil {
		return nil, nil, err
	}

	accessClaims := map[string]interface{}{
		"iss":   e.issuer,
		"sub":   subject,
		"aud":   clientID,
		"iat":   now.Unix(),
		"exp":   now.Add(client.AccessTokenLifetime()).Unix(),
		"scope": scope,
		"jti":   uuid.NewString(),
	}
	accessToken, err := e.signer.SignClaims(ctx, accessClaims)
	if err != nil {
		return nil, nil, err
	}

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(client.AccessTokenLifetime().Seconds()),
		IDToken:     idToken,
	}, rbacCtx, nil
}

// AuthorizationCodeGrantParams is the `grant_type=authorization_code`
// request body.
type AuthorizationCodeGrantParams struct {
	Code         string
	RedirectURI  string
	ClientID     string
	CodeVerifier string
}

// ExchangeAuthorizationCode implements the authorization_code grant end
// to end: redeem, validate, mint, and bind
// a fresh OIDC session carrying the refresh token.
func (e *Engine) ExchangeAuthorizationCode(ctx context.Context, p AuthorizationCodeGrantParams, now time.Time) (*TokenResponse, error) {
	ac, err := e.store.RedeemAuthorizationCode(ctx, p.Code)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInvalidGrant {
			if replayed, lookupErr := e.store.AuthorizationCodeByCode(ctx, p.Code); lookupErr == nil {
				_ = e.store.RevokeSessionsByAuthRequest(ctx, replayed.AuthRequestID)
			}
		}
		return nil, err
	}
	if ac.RedirectURI != p.RedirectURI {
		return nil, apperr.InvalidGrant("redirect_uri mismatch", nil)
	}
	if ac.ClientID != p.ClientID {
		return nil, apperr.InvalidGrant("client_id mismatch", nil)
	}

	client, err := e.store.ClientByID(ctx, p.ClientID)
	if err != nil {
		return nil, apperr.InvalidGrant("unknown client", err)
	}
	if ac.CodeChallenge != "" {
		if p.CodeVerifier == "" || !pkce.Verify(p.CodeVerifier, ac.CodeChallenge) {
			return nil, apperr.InvalidGrant("pkce verification failed", nil)
		}
	} else if client.PkceRequired() {
		return nil, apperr.InvalidGrant("pkce required", nil)
	}

	resp, _, err := e.mintTokens(ctx, ac.Subject, ac.ClientID, derefOrEmpty(ac.OrgID), ac.Scope, ac.Nonce, now, client)
	if err != nil {
		return nil, err
	}

	clientID := ac.ClientID
	startResult, err := e.sessions.Start(ctx, session.StartParams{
		Cohort:      session.CohortUser,
		PrincipalID: ac.Subject,
		ClientID:    &clientID,
		OrgID:       ac.OrgID,
		IdleTimeout: client.SessionIdleTimeout(),
		AbsoluteTTL: client.SessionAbsoluteTTL(),
		WithRefresh: true,
	}, now)
	if err != nil {
		return nil, err
	}
	resp.RefreshToken = startResult.RawRefresh
	return resp, nil
}

// RefreshGrantParams is the `grant_type=refresh_token` request body.
type RefreshGrantParams struct {
	RefreshToken string
	ClientID     string
}

// ExchangeRefreshToken implements the refresh_token grant: the old
// refresh token is invalid the instant
// rotation commits, before any new token is handed back.
func (e *Engine) ExchangeRefreshToken(ctx context.Context, p RefreshGrantParams, now time.Time) (*TokenResponse, error) {
	client, err := e.store.ClientByID(ctx, p.ClientID)
	if err != nil {
		return nil, apperr.InvalidGrant("unknown client", err)
	}

	rotated, old, err := e.sessions.RotateRefresh(ctx, p.RefreshToken, p.ClientID, client.SessionIdleTimeout(), client.SessionAbsoluteTTL(), now)
	if err != nil {
		return nil, err
	}

	orgID := derefOrEmpty(old.OrgID)
	resp, _, err := e.mintTokens(ctx, old.SubjectOrAdminID, p.ClientID, orgID, "", "", now, client)
	if err != nil {
		return nil, err
	}
	resp.RefreshToken = rotated.RawRefresh
	return resp, nil
}
