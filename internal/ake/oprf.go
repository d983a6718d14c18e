package ake

import (
	"github.com/cloudflare/circl/oprf"

	"github.com/darkauth/darkauth/internal/apperr"
)

// deriveOprfKey derives the per-credential OPRF private key from the
// engine's install-time seed. Deterministic so registration and
// every later login evaluate against the same key without persisting it.
func deriveOprfKey(seed []byte, cohort, principalID string) (*oprf.PrivateKey, error) {
	priv, err := oprf.DeriveKey(suite, oprf.BaseMode, seed, credentialID(cohort, principalID))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return priv, nil
}

// evaluate runs the OPRF server step over a client's blinded element and
// returns the wire-encoded evaluation. The server never sees (and cannot
// recover) the client's input to the OPRF — that's the whole point.
func evaluate(priv *oprf.PrivateKey, blindedElement []byte) ([]byte, error) {
	server, err := oprf.NewServer(suite, priv)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	req := new(oprf.EvaluationRequest)
	if err := req.UnmarshalBinary(blindedElement); err != nil {
		return nil, apperr.Validation("malformed oprf request", err)
	}
	resp, err := server.Evaluate(req)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out, err := resp.MarshalBinary()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}
