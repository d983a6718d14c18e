package httpapi

import (
	"net/http"
	"time"

	"github.com/darkauth/darkauth/internal/apperr"
	"github.com/darkauth/darkauth/internal/oidc"
	"github.com/darkauth/darkauth/internal/session"
)

// authorize implements GET /authorize: it validates the
// request against the client registration and persists it as a pending
// AuthRequest. The caller (a browser-hosted sign-in UI) then drives
// login/OTP separately and finishes with authorizeFinalize.
func authorize(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		q := r.URL.Query()
		var zkPubKey *string
		if v := q.Get("zk_pub_key"); v != "" {
			zkPubKey = &v
		}
		req, err := ac.Oidc.Authorize(r.Context(), oidc.AuthorizeParams{
			ClientID:            q.Get("client_id"),
			RedirectURI:         q.Get("redirect_uri"),
			ResponseType:        q.Get("response_type"),
			Scope:               q.Get("scope"),
			State:               q.Get("state"),
			Nonce:               q.Get("nonce"),
			CodeChallenge:       q.Get("code_challenge"),
			CodeChallengeMethod: q.Get("code_challenge_method"),
			ZkPubKey:            zkPubKey,
			RequestOrigin:       r.Header.Get("Origin"),
		}, ac.Config.AuthRequestTTL, time.Now())
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, map[string]string{"authRequestId": req.ID})
	}
}

type authorizeFinalizeRequest struct {
	AuthRequestID  string  `json:"authRequestId"`
	WrappedDrk     []byte  `json:"wrappedDrk"`
	ZkClientPubKey *string `json:"zkClientPubKey"`
	OrgID          *string `json:"orgId"`
}

// authorizeFinalize implements POST /api/user/authorize/finalize: the
// caller must already hold an authenticated user session, and an
// org that requires OTP must have been satisfied by a prior otp/verify
// call.
func authorizeFinalize(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		now := time.Now()
		s, err := ac.Sessions.Authenticate(r.Context(), r, session.CohortUser, now)
		if err != nil {
			return err
		}
		if err := session.RequireCSRF(r, s); err != nil {
			return err
		}
		var req authorizeFinalizeRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}

		requestedOrg := ""
		if req.OrgID != nil {
			requestedOrg = *req.OrgID
		}
		rbacCtx, err := ac.Rbac.Resolve(r.Context(), s.SubjectOrAdminID, requestedOrg)
		if err != nil {
			return err
		}
		if rbacCtx.RequireOtp && !s.OtpVerified {
			return apperr.OtpRequired()
		}

		redirectURL, err := ac.Oidc.Finalize(r.Context(), oidc.FinalizeParams{
			AuthRequestID:  req.AuthRequestID,
			Subject:        s.SubjectOrAdminID,
			WrappedDrk:     req.WrappedDrk,
			ZkClientPubKey: req.ZkClientPubKey,
			OrgID:          &rbacCtx.OrgID,
		}, ac.Config.AuthCodeTTL)
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, map[string]string{"redirectUrl": redirectURL})
	}
}

// token implements POST /token: form-encoded, dispatching
// on grant_type the way every OAuth2 token endpoint in the pack does.
func token(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := r.ParseForm(); err != nil {
			return apperr.Validation("malformed form body", err)
		}
		now := time.Now()
		switch r.PostForm.Get("grant_type") {
		case oidc.GrantAuthorizationCode:
			resp, err := ac.Oidc.ExchangeAuthorizationCode(r.Context(), oidc.AuthorizationCodeGrantParams{
				Code:         r.PostForm.Get("code"),
				RedirectURI:  r.PostForm.Get("redirect_uri"),
				ClientID:     r.PostForm.Get("client_id"),
				CodeVerifier: r.PostForm.Get("code_verifier"),
			}, now)
			if err != nil {
				return err
			}
			return writeTokenResponse(w, resp)
		case oidc.GrantRefreshToken:
			resp, err := ac.Oidc.ExchangeRefreshToken(r.Context(), oidc.RefreshGrantParams{
				RefreshToken: r.PostForm.Get("refresh_token"),
				ClientID:     r.PostForm.Get("client_id"),
			}, now)
			if err != nil {
				return err
			}
			return writeTokenResponse(w, resp)
		default:
			return apperr.Validation("unsupported grant_type", nil)
		}
	}
}

func writeTokenResponse(w http.ResponseWriter, resp *oidc.TokenResponse) error {
	return writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  resp.AccessToken,
		"token_type":    resp.TokenType,
		"expires_in":    resp.ExpiresIn,
		"refresh_token": resp.RefreshToken,
		"id_token":      resp.IDToken,
	})
}

// wellKnownOpenIDConfiguration implements GET /.well-known/openid-configuration.
func wellKnownOpenIDConfiguration(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		return writeJSON(w, http.StatusOK, ac.Oidc.BuildDiscovery())
	}
}

// wellKnownJWKS implements GET /.well-known/jwks.json.
func wellKnownJWKS(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		jwks, err := ac.Oidc.JWKS(r.Context())
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, jwks)
	}
}
