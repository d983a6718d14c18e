package httpapi

import (
	"net/http"
	"time"

	"github.com/darkauth/darkauth/internal/ake"
	"github.com/darkauth/darkauth/internal/apperr"
	"github.com/darkauth/darkauth/internal/crypto/kek"
	"github.com/darkauth/darkauth/internal/session"
	"github.com/darkauth/darkauth/internal/store"
)

// adminLoginStart mirrors userLoginStart against the admin cohort and
// admin_users table.
func adminLoginStart(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req loginStartRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		admin, err := ac.DB.AdminByEmail(r.Context(), req.Email)
		if err != nil {
			return apperr.AuthFailed(err)
		}
		cred, err := ac.DB.CredentialByPrincipal(r.Context(), admin.ID, "admin")
		if err != nil {
			return apperr.AuthFailed(err)
		}
		resp, err := ac.AdminAke.BeginLogin(r.Context(), "admin", admin.ID, cred.Envelope, &ake.LoginStartRequest{
			BlindedElement:           req.BlindedElement,
			ClientEphemeralPublicKey: req.ClientEphemeralPublicKey,
		})
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, loginStartResponse{
			SessionID:                resp.SessionID,
			Evaluation:               resp.Evaluation,
			Envelope:                 resp.Envelope,
			ServerEphemeralPublicKey: resp.ServerEphemeralPublicKey,
			ServerMAC:                resp.ServerMAC,
		})
	}
}

func adminLoginFinish(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req loginFinishRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		result, err := ac.AdminAke.FinishLogin(r.Context(), &ake.LoginFinishRequest{
			SessionID: req.SessionID,
			ClientMAC: req.ClientMAC,
		})
		if err != nil {
			return err
		}
		now := time.Now()
		started, err := ac.Sessions.Start(r.Context(), session.StartParams{
			Cohort:      session.CohortAdmin,
			PrincipalID: result.PrincipalID,
			IdleTimeout: ac.Config.AdminSessionIdleTimeout,
			AbsoluteTTL: ac.Config.AdminSessionAbsoluteTTL,
		}, now)
		if err != nil {
			return err
		}
		ac.Sessions.WriteCookies(w, session.CohortAdmin, started.Session)

		status, err := ac.Totp.Status(r.Context(), result.PrincipalID, "admin")
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, loginFinishResponse{OtpRequired: status == "enabled"})
	}
}

func adminOtpVerify(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		s, err := ac.Sessions.Authenticate(r.Context(), r, session.CohortAdmin, time.Now())
		if err != nil {
			return err
		}
		if err := session.RequireCSRF(r, s); err != nil {
			return err
		}
		var req otpCodeRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		if err := ac.Totp.Verify(r.Context(), s.SubjectOrAdminID, "admin", req.Code, time.Now()); err != nil {
			return err
		}
		if err := ac.Sessions.MarkOtpVerified(r.Context(), s.SessionID); err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
	}
}

// requireAdminSession authenticates the admin cohort session and CSRF
// header, returning the session row for handlers that need the caller's
// identity.
func requireAdminSession(ac *AppContext, r *http.Request) (*store.Session, error) {
	s, err := ac.Sessions.Authenticate(r.Context(), r, session.CohortAdmin, time.Now())
	if err != nil {
		return nil, err
	}
	if err := session.RequireCSRF(r, s); err != nil {
		return nil, err
	}
	return s, nil
}

// jwksRotate rotates the active signing key. The new key generation goes through the same KEK
// store every other wrapped secret uses; kekStore is threaded in from
// cmd/darkauthd since the signer itself only ever reads, never rotates.
func jwksRotate(ac *AppContext, kekStore *kek.Store) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		if _, err := requireAdminSession(ac, r); err != nil {
			return err
		}
		now := time.Now()
		next, err := kekStore.GenerateSigningKey(now)
		if err != nil {
			return err
		}
		row := &store.SigningKeyRow{
			KID: next.KID, Algorithm: next.Algorithm,
			WrappedPrivateKey: next.WrappedPrivateKey, PublicKey: next.PublicKey,
			CreatedAt: now,
		}
		if err := ac.DB.RotateSigningKey(r.Context(), row, now); err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, map[string]string{"kid": next.KID})
	}
}

// auditLogsList implements GET /admin/audit-logs; detail is auditLogDetail
// below, and there is no export route.
func auditLogsList(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		if _, err := requireAdminSession(ac, r); err != nil {
			return err
		}
		limit := 100
		logs, err := ac.DB.ListAuditLogs(r.Context(), limit)
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, logs)
	}
}

func auditLogDetail(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		if _, err := requireAdminSession(ac, r); err != nil {
			return err
		}
		id := chiURLParam(r, "id")
		entry, err := ac.DB.AuditLogByID(r.Context(), id)
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, entry)
	}
}
