package ake

import (
	"bytes"

	"github.com/darkauth/darkauth/internal/apperr"
)

// RegistrationStartRequest carries the client's blinded OPRF element.
type RegistrationStartRequest struct {
	BlindedElement []byte
}

// RegistrationStartResponse carries the OPRF evaluation and the engine's
// static public key.
type RegistrationStartResponse struct {
	Evaluation      []byte
	ServerPublicKey []byte
}

// BeginRegistration evaluates the OPRF for (cohort, principalID) and
// returns it alongside the server's long-term public key so the client
// can bind the envelope it builds to this specific server identity.
func (e *Engine) BeginRegistration(cohort, principalID string, req *RegistrationStartRequest) (*RegistrationStartResponse, error) {
	oprfKey, err := deriveOprfKey(e.seed, cohort, principalID)
	if err != nil {
		return nil, err
	}
	evaluation, err := evaluate(oprfKey, req.BlindedElement)
	if err != nil {
		return nil, err
	}
	return &RegistrationStartResponse{
		Evaluation:      evaluation,
		ServerPublicKey: e.serverStaticPub,
	}, nil
}

// RegistrationFinishRequest is the registration record the client
// produces after unblinding the evaluation and sealing its freshly
// generated static private key. ServerPublicKey is
// the identity the client bound the envelope to and must match the
// engine's current static key — the server never rotates this key, so a
// mismatch here means the client is stale or misdirected, not that the
// password was wrong.
type RegistrationFinishRequest struct {
	ClientPublicKey    []byte
	SealedCiphertext   []byte
	ServerPublicKey    []byte
}

// RegistrationRecord is what the caller persists as Credential.Envelope /
// Credential.ServerPubKey.
type RegistrationRecord struct {
	Envelope     []byte
	ServerPubKey []byte
}

// FinishRegistration validates the echoed server identity and packages
// the envelope for storage. It never inspects SealedCiphertext — that
// blob is opaque to the server by construction.
func (e *Engine) FinishRegistration(req *RegistrationFinishRequest) (*RegistrationRecord, error) {
	if !bytes.Equal(req.ServerPublicKey, e.serverStaticPub) {
		return nil, apperr.AuthFailed(errServerIdentityMismatch)
	}
	return &RegistrationRecord{
		Envelope:     packEnvelope(req.ClientPublicKey, req.SealedCiphertext),
		ServerPubKey: e.serverStaticPub,
	}, nil
}
