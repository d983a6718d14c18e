package ake

import (
	"context"
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/darkauth/darkauth/internal/apperr"
)

// LoginStartRequest is KE1: the client's blinded OPRF element and its
// fresh ephemeral AKE public key.
type LoginStartRequest struct {
	BlindedElement           []byte
	ClientEphemeralPublicKey []byte
}

// LoginStartResponse is KE2: the OPRF evaluation, the stored envelope
// (returned here, not at registration, because only the server holds
// it), the server's fresh ephemeral public key, and a MAC proving the
// server holds the static private key matching ServerPubKeyAtRegistration.
type LoginStartResponse struct {
	SessionID                string
	Evaluation               []byte
	Envelope                 []byte
	ServerEphemeralPublicKey []byte
	ServerMAC                []byte
}

// LoginFinishRequest is KE3: the client's proof that it derived the same
// session key, which it can only do by recovering the correct static
// private key from the envelope — which requires the correct password.
type LoginFinishRequest struct {
	SessionID string
	ClientMAC []byte
}

// LoginResult identifies the principal a login handshake authenticated.
type LoginResult struct {
	Cohort      string
	PrincipalID string
}

type pendingLogin struct {
	Cohort            string
	PrincipalID       string
	ExpectedClientMAC []byte
	StartedAt         time.Time
}

// BeginLogin runs the server half of KE1->KE2: it derives the same OPRF
// key used at registration, runs three ECDH operations against the
// client's ephemeral key, its own ephemeral key, and the stored client
// static key, and stashes the expected client
// MAC in sessions until KE3 arrives or the handshake times out.
func (e *Engine) BeginLogin(ctx context.Context, cohort, principalID string, storedEnvelope []byte, req *LoginStartRequest) (*LoginStartResponse, error) {
	oprfKey, err := deriveOprfKey(e.seed, cohort, principalID)
	if err != nil {
		return nil, err
	}
	evaluation, err := evaluate(oprfKey, req.BlindedElement)
	if err != nil {
		return nil, err
	}

	clientStaticPubBytes, _, err := unpackEnvelope(storedEnvelope)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	curve := ecdh.P256()
	clientEphemeralPub, err := curve.NewPublicKey(req.ClientEphemeralPublicKey)
	if err != nil {
		return nil, apperr.Validation("malformed client ephemeral key", err)
	}
	clientStaticPub, err := curve.NewPublicKey(clientStaticPubBytes)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	serverEphemeral, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	dh1, err := serverEphemeral.ECDH(clientEphemeralPub)
	if err != nil {
		return nil, apperr.AuthFailed(err)
	}
	dh2, err := e.serverStatic.ECDH(clientEphemeralPub)
	if err != nil {
		return nil, apperr.AuthFailed(err)
	}
	dh3, err := serverEphemeral.ECDH(clientStaticPub)
	if err != nil {
		return nil, apperr.AuthFailed(err)
	}

	serverEphemeralPubBytes := serverEphemeral.PublicKey().Bytes()
	transcript := transcriptHash(credentialID(cohort, principalID), req.BlindedElement, evaluation, req.ClientEphemeralPublicKey, serverEphemeralPubBytes)

	ikm := make([]byte, 0, len(dh1)+len(dh2)+len(dh3))
	ikm = append(ikm, dh1...)
	ikm = append(ikm, dh2...)
	ikm = append(ikm, dh3...)
	_, km2, km3, err := deriveSessionKeys(ikm, transcript)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	serverMAC := hmacSum(km2, transcript)
	expectedClientMAC := hmacSum(km3, append(append([]byte{}, transcript...), serverMAC...))

	sessionID := uuid.NewString()
	pending := pendingLogin{
		Cohort:            cohort,
		PrincipalID:       principalID,
		ExpectedClientMAC: expectedClientMAC,
		StartedAt:         time.Now(),
	}
	buf, err := json.Marshal(pending)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := e.sessions.Save(ctx, sessionID, buf, loginSessionTTL); err != nil {
		return nil, err
	}

	return &LoginStartResponse{
		SessionID:                sessionID,
		Evaluation:               evaluation,
		Envelope:                 storedEnvelope,
		ServerEphemeralPublicKey: serverEphemeralPubBytes,
		ServerMAC:                serverMAC,
	}, nil
}

// FinishLogin verifies KE3. A wrong password means the client recovered
// the wrong static private key at envelope-opening time, so its derived
// session key — and therefore its MAC — silently diverges from the
// server's; there is nothing further to distinguish here, which is the
// point.
func (e *Engine) FinishLogin(ctx context.Context, req *LoginFinishRequest) (*LoginResult, error) {
	buf, err := e.sessions.LoadAndDelete(ctx, req.SessionID)
	if err != nil {
		return nil, apperr.AuthFailed(err)
	}
	var pending pendingLogin
	if err := json.Unmarshal(buf, &pending); err != nil {
		return nil, apperr.Internal(err)
	}
	if !hmac.Equal(pending.ExpectedClientMAC, req.ClientMAC) {
		return nil, apperr.AuthFailed(errClientMACMismatch)
	}
	return &LoginResult{Cohort: pending.Cohort, PrincipalID: pending.PrincipalID}, nil
}

func transcriptHash(cid, blindedElement, evaluation, clientEphemeralPub, serverEphemeralPub []byte) []byte {
	h := sha256.New()
	for _, part := range [][]byte{cid, blindedElement, evaluation, clientEphemeralPub, serverEphemeralPub} {
		var lenBuf [4]byte
		lenBuf[0] = byte(len(part) >> 24)
		lenBuf[1] = byte(len(part) >> 16)
		lenBuf[2] = byte(len(part) >> 8)
		lenBuf[3] = byte(len(part))
		h.Write(lenBuf[:])
		h.Write(part)
	}
	return h.Sum(nil)
}

func deriveSessionKeys(ikm, transcript []byte) (sessionKey, km2, km3 []byte, err error) {
	reader := hkdf.New(sha256.New, ikm, transcript, []byte("DarkAuth-OPAQUE-3DH"))
	out := make([]byte, 96)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, nil, nil, err
	}
	return out[:32], out[32:64], out[64:96], nil
}

func hmacSum(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
