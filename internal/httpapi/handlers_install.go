package httpapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/darkauth/darkauth/internal/ake"
	"github.com/darkauth/darkauth/internal/apperr"
	"github.com/darkauth/darkauth/internal/crypto/kek"
	"github.com/darkauth/darkauth/internal/store"
)

// installCeremony holds the freshly generated, still-unwrapped bootstrap
// material between /install/init and /install/complete. The install token
// is single-use by construction (store.ConsumeInstallToken), so exactly
// one ceremony can ever complete; keeping this in process memory rather
// than round-tripping it through Redis avoids ever serializing an
// unwrapped KEK or seed outside this process.
type installCeremony struct {
	mu        sync.Mutex
	kekStore  *kek.Store
	kekParams kek.Params
	oprfSeed  *kek.OprfSeed
	akeKey    *kek.AkeServerKey
	signing   *kek.SigningKey
	akeEngine *ake.Engine
	sub       string // the single admin's stable id, allocated at init
	tokenHash []byte
}

func newInstallCeremony() *installCeremony {
	return &installCeremony{}
}

func hashInstallToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

type missingKekPassphraseError struct{}

func (missingKekPassphraseError) Error() string {
	return "kek passphrase environment variable is unset"
}

var errMissingKekPassphrase = missingKekPassphraseError{}

type installInitRequest struct {
	InstallToken string `json:"installToken"`
	Request      []byte `json:"request"` // blinded OPRF element for the admin's credential
}

type installInitResponse struct {
	Evaluation      []byte `json:"evaluation"`
	ServerPublicKey []byte `json:"serverPublicKey"`
}

// installInit validates the single-use install token, generates the KEK
// parameters / OPRF seed / AKE static keypair / first signing key, and
// runs the OPRF half of the admin's aPAKE registration — all held in
// memory until installComplete persists it atomically with the token
// consumption.
func installInit(ac *AppContext, ceremony *installCeremony) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		if exists, err := ac.DB.AnyAdminExists(r.Context()); err != nil {
			return err
		} else if exists {
			return apperr.Forbidden("install already completed", nil)
		}
		var req installInitRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		ok, err := ac.DB.InstallTokenValid(r.Context(), hashInstallToken(req.InstallToken))
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Forbidden("invalid or already-used install token", nil)
		}

		passphrase := os.Getenv(ac.Config.KekPassphraseEnvVar)
		if passphrase == "" {
			return apperr.Internal(errMissingKekPassphrase)
		}
		params, err := kek.DefaultParams()
		if err != nil {
			return err
		}
		kekStore, err := kek.Unlock(passphrase, params)
		if err != nil {
			return err
		}
		oprfSeed, err := kekStore.GenerateOprfSeed()
		if err != nil {
			return err
		}
		akeKey, err := kekStore.GenerateAkeServerKey()
		if err != nil {
			return err
		}
		signingKey, err := kekStore.GenerateSigningKey(time.Now())
		if err != nil {
			return err
		}

		rawSeed, err := kekStore.UnwrapOprfSeed(oprfSeed)
		if err != nil {
			return err
		}
		rawAkePriv, err := kekStore.UnwrapAkeServerKey(akeKey)
		if err != nil {
			return err
		}
		// Registration never touches the login-session store, so a nil
		// LoginSessionStore is safe here: this engine exists only to run
		// BeginRegistration/FinishRegistration for the bootstrap admin.
		engine, err := ake.NewEngine(rawSeed, rawAkePriv, nil)
		if err != nil {
			return err
		}

		sub := "admin-" + base64.RawURLEncoding.EncodeToString(hashInstallToken(req.InstallToken)[:9])
		resp, err := engine.BeginRegistration("admin", sub, &ake.RegistrationStartRequest{BlindedElement: req.Request})
		if err != nil {
			return err
		}

		ceremony.mu.Lock()
		ceremony.kekStore = kekStore
		ceremony.kekParams = params
		ceremony.oprfSeed = oprfSeed
		ceremony.akeKey = akeKey
		ceremony.signing = signingKey
		ceremony.akeEngine = engine
		ceremony.sub = sub
		ceremony.tokenHash = hashInstallToken(req.InstallToken)
		ceremony.mu.Unlock()

		return writeJSON(w, http.StatusOK, installInitResponse{
			Evaluation:      resp.Evaluation,
			ServerPublicKey: resp.ServerPublicKey,
		})
	}
}

type installCompleteRequest struct {
	InstallToken     string `json:"installToken"`
	AdminEmail       string `json:"adminEmail"`
	AdminDisplayName string `json:"adminDisplayName"`
	ClientPublicKey  []byte `json:"clientPublicKey"`
	SealedCiphertext []byte `json:"sealedCiphertext"`
	ServerPublicKey  []byte `json:"serverPublicKey"`
	ExportKeyHash    []byte `json:"exportKeyHash"`
}

// installComplete finishes the admin's aPAKE envelope and persists every
// bootstrap artifact — KEK params, OPRF seed, AKE key, first signing key,
// first admin principal and credential — plus the install token
// consumption, all inside one transaction.
func installComplete(ac *AppContext, ceremony *installCeremony) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req installCompleteRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}

		ceremony.mu.Lock()
		defer ceremony.mu.Unlock()
		if ceremony.akeEngine == nil {
			return apperr.Validation("install has not been initialized", nil)
		}
		if subtle.ConstantTimeCompare(hashInstallToken(req.InstallToken), ceremony.tokenHash) != 1 {
			return apperr.Forbidden("invalid install token", nil)
		}

		record, err := ceremony.akeEngine.FinishRegistration(&ake.RegistrationFinishRequest{
			ClientPublicKey:  req.ClientPublicKey,
			SealedCiphertext: req.SealedCiphertext,
			ServerPublicKey:  req.ServerPublicKey,
		})
		if err != nil {
			return err
		}

		now := time.Now()
		admin := &store.AdminPrincipal{
			ID:          ceremony.sub,
			Email:       req.AdminEmail,
			DisplayName: req.AdminDisplayName,
			Role:        "write",
			CreatedAt:   now,
		}
		cred := &store.Credential{
			PrincipalID:   ceremony.sub,
			Cohort:        "admin",
			Envelope:      record.Envelope,
			ServerPubKey:  record.ServerPubKey,
			ExportKeyHash: req.ExportKeyHash,
			UpdatedAt:     now,
		}
		params := store.KekParamsRow{Salt: ceremony.kekParams.Salt, TimeCost: ceremony.kekParams.TimeCost, MemoryKiB: ceremony.kekParams.MemoryKiB, Threads: ceremony.kekParams.Threads}
		seedRow := store.OprfSeedRow{Wrapped: ceremony.oprfSeed.Wrapped}
		akeKeyRow := store.AkeServerKeyRow{WrappedPrivateKey: ceremony.akeKey.WrappedPrivateKey, PublicKey: ceremony.akeKey.PublicKey}
		signingRow := store.SigningKeyRow{
			KID: ceremony.signing.KID, Algorithm: ceremony.signing.Algorithm,
			WrappedPrivateKey: ceremony.signing.WrappedPrivateKey, PublicKey: ceremony.signing.PublicKey,
			CreatedAt: ceremony.signing.CreatedAt, RotatedAt: ceremony.signing.RotatedAt,
		}

		if err := ac.DB.CompleteInstall(r.Context(), hashInstallToken(req.InstallToken), &params, &seedRow, &akeKeyRow, &signingRow, admin, cred, now); err != nil {
			return err
		}
		ceremony.akeEngine = nil
		return writeJSON(w, http.StatusCreated, map[string]string{"adminId": ceremony.sub})
	}
}
