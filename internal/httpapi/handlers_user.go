package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/darkauth/darkauth/internal/ake"
	"github.com/darkauth/darkauth/internal/apperr"
	"github.com/darkauth/darkauth/internal/session"
	"github.com/darkauth/darkauth/internal/store"
)

// pendingRegistration is the value stashed between register/start and
// register/finish, keyed by email (see ake.RedisPendingRegistrationStore).
type pendingRegistration struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

type registerStartRequest struct {
	Email   string `json:"email"`
	Request []byte `json:"request"`
}

type registerStartResponse struct {
	Evaluation      []byte `json:"evaluation"`
	ServerPublicKey []byte `json:"serverPublicKey"`
}

// userRegisterStart begins self-service registration: the
// server allocates the subject's stable sub now, since the OPRF
// evaluation below must be keyed by the same identifier every later
// login will use, and stashes it until register/finish creates the row.
func userRegisterStart(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req registerStartRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		if req.Email == "" {
			return apperr.Validation("email is required", nil)
		}
		if _, err := ac.DB.SubjectByEmail(r.Context(), req.Email); err == nil {
			return apperr.Conflict("email already registered", nil)
		} else if apperr.KindOf(err) != apperr.KindNotFound {
			return err
		}

		sub := uuid.NewString()
		resp, err := ac.UserAke.BeginRegistration("user", sub, &ake.RegistrationStartRequest{BlindedElement: req.Request})
		if err != nil {
			return err
		}
		pending := pendingRegistration{Sub: sub, Email: req.Email}
		buf, err := json.Marshal(pending)
		if err != nil {
			return apperr.Internal(err)
		}
		if err := ac.PendingReg.Save(r.Context(), req.Email, buf, ake.PendingRegistrationTTL); err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, registerStartResponse{
			Evaluation:      resp.Evaluation,
			ServerPublicKey: resp.ServerPublicKey,
		})
	}
}

type registerFinishRequest struct {
	Email            string `json:"email"`
	DisplayName      string `json:"displayName"`
	ClientPublicKey  []byte `json:"clientPublicKey"`
	SealedCiphertext []byte `json:"sealedCiphertext"`
	ServerPublicKey  []byte `json:"serverPublicKey"`
	ExportKeyHash    []byte `json:"exportKeyHash"`
}

func userRegisterFinish(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req registerFinishRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		buf, err := ac.PendingReg.LoadAndDelete(r.Context(), req.Email)
		if err != nil {
			return err
		}
		var pending pendingRegistration
		if err := json.Unmarshal(buf, &pending); err != nil {
			return apperr.Internal(err)
		}

		record, err := ac.UserAke.FinishRegistration(&ake.RegistrationFinishRequest{
			ClientPublicKey:  req.ClientPublicKey,
			SealedCiphertext: req.SealedCiphertext,
			ServerPublicKey:  req.ServerPublicKey,
		})
		if err != nil {
			return err
		}

		now := time.Now()
		if err := ac.DB.CreateSubject(r.Context(), &store.Subject{
			Sub:         pending.Sub,
			Email:       pending.Email,
			DisplayName: req.DisplayName,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if err := ac.DB.UpsertCredential(r.Context(), &store.Credential{
			PrincipalID:   pending.Sub,
			Cohort:        "user",
			Envelope:      record.Envelope,
			ServerPubKey:  record.ServerPubKey,
			ExportKeyHash: req.ExportKeyHash,
			UpdatedAt:     now,
		}); err != nil {
			return err
		}
		return writeJSON(w, http.StatusCreated, map[string]string{"sub": pending.Sub})
	}
}

type loginStartRequest struct {
	Email                    string `json:"email"`
	BlindedElement           []byte `json:"blindedElement"`
	ClientEphemeralPublicKey []byte `json:"clientEphemeralPublicKey"`
}

type loginStartResponse struct {
	SessionID                string `json:"sessionId"`
	Evaluation               []byte `json:"evaluation"`
	Envelope                 []byte `json:"envelope"`
	ServerEphemeralPublicKey []byte `json:"serverEphemeralPublicKey"`
	ServerMAC                []byte `json:"serverMac"`
}

func userLoginStart(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req loginStartRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		subject, err := ac.DB.SubjectByEmail(r.Context(), req.Email)
		if err != nil {
			return apperr.AuthFailed(err)
		}
		cred, err := ac.DB.CredentialByPrincipal(r.Context(), subject.Sub, "user")
		if err != nil {
			return apperr.AuthFailed(err)
		}
		resp, err := ac.UserAke.BeginLogin(r.Context(), "user", subject.Sub, cred.Envelope, &ake.LoginStartRequest{
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

type loginFinishRequest struct {
	SessionID string `json:"sessionId"`
	ClientMAC []byte `json:"clientMac"`
}

type loginFinishResponse struct {
	OtpRequired bool `json:"otpRequired"`
}

func userLoginFinish(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req loginFinishRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		result, err := ac.UserAke.FinishLogin(r.Context(), &ake.LoginFinishRequest{
			SessionID: req.SessionID,
			ClientMAC: req.ClientMAC,
		})
		if err != nil {
			return err
		}

		now := time.Now()
		started, err := ac.Sessions.Start(r.Context(), session.StartParams{
			Cohort:      session.CohortUser,
			PrincipalID: result.PrincipalID,
			IdleTimeout: ac.Config.DefaultUserSessionIdleTimeout,
			AbsoluteTTL: ac.Config.DefaultUserSessionAbsoluteTTL,
		}, now)
		if err != nil {
			return err
		}
		ac.Sessions.WriteCookies(w, session.CohortUser, started.Session)

		status, err := ac.Totp.Status(r.Context(), result.PrincipalID, "user")
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, loginFinishResponse{OtpRequired: status == "enabled"})
	}
}

func userOtpStatus(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		s, err := ac.Sessions.Authenticate(r.Context(), r, session.CohortUser, time.Now())
		if err != nil {
			return err
		}
		status, err := ac.Totp.Status(r.Context(), s.SubjectOrAdminID, "user")
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}

type otpCodeRequest struct {
	Code string `json:"code"`
}

func userOtpVerify(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		s, err := ac.Sessions.Authenticate(r.Context(), r, session.CohortUser, time.Now())
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
		if err := ac.Totp.Verify(r.Context(), s.SubjectOrAdminID, "user", req.Code, time.Now()); err != nil {
			return err
		}
		if err := ac.Sessions.MarkOtpVerified(r.Context(), s.SessionID); err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
	}
}

func userOtpSetupInit(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		s, err := ac.Sessions.Authenticate(r.Context(), r, session.CohortUser, time.Now())
		if err != nil {
			return err
		}
		if err := session.RequireCSRF(r, s); err != nil {
			return err
		}
		subject, err := ac.DB.SubjectByID(r.Context(), s.SubjectOrAdminID)
		if err != nil {
			return err
		}
		key, err := ac.Totp.SetupInit(r.Context(), s.SubjectOrAdminID, "user", subject.Email, time.Now())
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, map[string]string{
			"secret":     key.Secret(),
			"otpAuthUrl": key.URL(),
		})
	}
}

func userOtpSetupVerify(ac *AppContext) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		s, err := ac.Sessions.Authenticate(r.Context(), r, session.CohortUser, time.Now())
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
		codes, err := ac.Totp.SetupVerify(r.Context(), s.SubjectOrAdminID, "user", req.Code, time.Now())
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, map[string][]string{"backupCodes": codes})
	}
}
