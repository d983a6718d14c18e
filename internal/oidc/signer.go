package oidc

import (
	"context"
	"crypto/ed25519"
	"encoding/json"

	"github.com/go-jose/go-jose/v4"

	"github.com/darkauth/darkauth/internal/apperr"
	"github.com/darkauth/darkauth/internal/crypto/kek"
	"github.com/darkauth/darkauth/internal/store"
)

// KeyStore is the subset of *store.DB the token signer needs.
type KeyStore interface {
	ActiveSigningKey(ctx context.Context) (*store.SigningKeyRow, error)
	AllSigningKeys(ctx context.Context) ([]*store.SigningKeyRow, error)
}

// Unwrapper recovers a signing private key from its wrapped, persisted
// form; satisfied by *kek.Store.
type Unwrapper interface {
	UnwrapSigningKey(k *kek.SigningKey) (ed25519.PrivateKey, error)
}

// Signer mints EdDSA-signed JWTs with the currently active signing key
// and publishes the JWKS spanning every non-purged key.
type Signer struct {
	keys KeyStore
	kek  Unwrapper
}

func NewSigner(keys KeyStore, kekStore Unwrapper) *Signer {
	return &Signer{keys: keys, kek: kekStore}
}

func toKekSigningKey(row *store.SigningKeyRow) *kek.SigningKey {
	return &kek.SigningKey{
		KID:               row.KID,
		Algorithm:         row.Algorithm,
		WrappedPrivateKey: row.WrappedPrivateKey,
		PublicKey:         ed25519.PublicKey(row.PublicKey),
		CreatedAt:         row.CreatedAt,
		RotatedAt:         row.RotatedAt,
	}
}

// SignClaims serializes claims as a compact JWS signed by the active
// signing key, with the key's kid set in the protected header so
// verifiers can select the matching JWKS entry.
func (s *Signer) SignClaims(ctx context.Context, claims map[string]interface{}) (string, error) {
	row, err := s.keys.ActiveSigningKey(ctx)
	if err != nil {
		return "", err
	}
	priv, err := s.kek.UnwrapSigningKey(toKekSigningKey(row))
	if err != nil {
		return "", err
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: priv},
		(&jose.SignerOptions{}).WithHeader("kid", row.KID).WithType("JWT"))
	if err != nil {
		return "", apperr.Internal(err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", apperr.Internal(err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", apperr.Internal(err)
	}
	compact, err := jws.CompactSerialize()
	if err != nil {
		return "", apperr.Internal(err)
	}
	return compact, nil
}

// JWKS builds the published key set from every non-purged signing key.
func (s *Signer) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	rows, err := s.keys.AllSigningKeys(ctx)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	keys := make([]*kek.SigningKey, len(rows))
	for i, r := range rows {
		keys[i] = toKekSigningKey(r)
	}
	return kek.JWKS(keys), nil
}
