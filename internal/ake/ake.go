// Package ake implements the server side of the augmented
// password-authenticated key exchange: an
// OPRF-blinded registration handshake and an OPAQUE-3DH login handshake,
// so the server never observes a cleartext password and never holds
// enough state to reconstruct one offline.
package ake

import (
	"context"
	"crypto/ecdh"
	"time"

	"github.com/cloudflare/circl/oprf"

	"github.com/darkauth/darkauth/internal/apperr"
)

const suite = oprf.SuiteP256

const loginSessionTTL = 5 * time.Minute

// LoginSessionStore holds the server's half-open handshake state between
// KE1 and KE3. Backed by Redis so a crashed node loses nothing but in-flight
// logins, which simply time out and must be retried from KE1.
type LoginSessionStore interface {
	Save(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error
	LoadAndDelete(ctx context.Context, sessionID string) ([]byte, error)
}

// Engine is the server side of the handshake. One Engine is constructed
// per process from the unwrapped OPRF seed and the unwrapped static AKE
// keypair.
type Engine struct {
	seed            []byte
	serverStatic    *ecdh.PrivateKey
	serverStaticPub []byte
	sessions        LoginSessionStore
}

// NewEngine builds an Engine. seed must be the 32-byte unwrapped OPRF
// seed; serverStatic must be the unwrapped static P-256 AKE keypair.
func NewEngine(seed []byte, serverStatic *ecdh.PrivateKey, sessions LoginSessionStore) (*Engine, error) {
	if len(seed) != 32 {
		return nil, apperr.Internal(errInvalidSeedLength)
	}
	return &Engine{
		seed:            seed,
		serverStatic:    serverStatic,
		serverStaticPub: serverStatic.PublicKey().Bytes(),
		sessions:        sessions,
	}, nil
}

// ServerPublicKey is the engine's fixed, never-rotated static public key,
// returned to clients at registration and used by them to validate the
// server during every subsequent login.
func (e *Engine) ServerPublicKey() []byte {
	return e.serverStaticPub
}

func credentialID(cohort, principalID string) []byte {
	return []byte(cohort + ":" + principalID)
}
