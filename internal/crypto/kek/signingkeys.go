package kek

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"

	"github.com/darkauth/darkauth/internal/apperr"
)

// SigningKey is the persisted, wrapped form of an Ed25519 signing key
//. Exactly one row with RotatedAt == nil exists
// at any time — the active signer.
type SigningKey struct {
	KID               string
	Algorithm         string // always "EdDSA"
	WrappedPrivateKey []byte
	PublicKey         ed25519.PublicKey
	CreatedAt         time.Time
	RotatedAt         *time.Time
}

const AlgEdDSA = "EdDSA"

// GenerateSigningKey creates a fresh Ed25519 keypair, wraps the private
// half under the KEK, and returns a new, active (RotatedAt == nil) row.
func (s *Store) GenerateSigningKey(now time.Time) (*SigningKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	wrapped, err := s.Wrap(priv)
	if err != nil {
		return nil, err
	}
	return &SigningKey{
		KID:               uuid.NewString(),
		Algorithm:         AlgEdDSA,
		WrappedPrivateKey: wrapped,
		PublicKey:         pub,
		CreatedAt:         now,
	}, nil
}

// UnwrapSigningKey recovers the ed25519.PrivateKey from a persisted SigningKey row.
func (s *Store) UnwrapSigningKey(k *SigningKey) (ed25519.PrivateKey, error) {
	raw, err := s.Unwrap(k.WrappedPrivateKey)
	if err != nil {
		return nil, err
	}
	return ed25519.PrivateKey(raw), nil
}

// JWKS builds the published JSON Web Key Set from all non-purged signing
// keys. Active key is reported separately by the caller
// so verifiers during a rotation overlap accept both.
func JWKS(keys []*SigningKey) jose.JSONWebKeySet {
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(keys))}
	for _, k := range keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       k.PublicKey,
			KeyID:     k.KID,
			Algorithm: k.Algorithm,
			Use:       "sig",
		})
	}
	return set
}

// OprfSeed is the wrapped, persisted 32-byte seed used to derive
// per-credential OPRF keys. Wrapped once at install,
// never rotated.
type OprfSeed struct {
	Wrapped []byte
}

// GenerateOprfSeed creates and wraps a fresh 32-byte OPRF seed.
func (s *Store) GenerateOprfSeed() (*OprfSeed, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, apperr.Internal(err)
	}
	wrapped, err := s.Wrap(raw)
	if err != nil {
		return nil, err
	}
	return &OprfSeed{Wrapped: wrapped}, nil
}

// UnwrapOprfSeed recovers the raw 32-byte seed.
func (s *Store) UnwrapOprfSeed(seed *OprfSeed) ([]byte, error) {
	return s.Unwrap(seed.Wrapped)
}

// AkeServerKey is the aPAKE engine's single global, never-rotated P-256
// static keypair. Its
// curve matches the OPRF group so the login handshake's three ECDH
// operations and the OPRF evaluation share one group.
type AkeServerKey struct {
	WrappedPrivateKey []byte
	PublicKey         []byte // uncompressed SEC1 point
}

// GenerateAkeServerKey creates and wraps the fresh static AKE keypair.
// Called once at install time, alongside the OPRF seed.
func (s *Store) GenerateAkeServerKey() (*AkeServerKey, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	wrapped, err := s.Wrap(priv.Bytes())
	if err != nil {
		return nil, err
	}
	return &AkeServerKey{WrappedPrivateKey: wrapped, PublicKey: priv.PublicKey().Bytes()}, nil
}

// UnwrapAkeServerKey recovers the P-256 static private key.
func (s *Store) UnwrapAkeServerKey(k *AkeServerKey) (*ecdh.PrivateKey, error) {
	raw, err := s.Unwrap(k.WrappedPrivateKey)
	if err != nil {
		return nil, err
	}
	priv, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return priv, nil
}
