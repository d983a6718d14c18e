// Package kek implements a passphrase-derived key encryption key that
// wraps signing keys and the OPRF seed at rest. The KEK itself never
// touches disk; only its derivation parameters are persisted.
package kek

import (
	"crypto/cipher"
	"crypto/rand"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/darkauth/darkauth/internal/apperr"
)

// Params are the persisted, public Argon2id parameters used to derive the
// KEK from an operator passphrase. Chosen so derivation takes >=250ms on
// commodity hardware.
type Params struct {
	Salt      []byte
	TimeCost  uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultParams generates fresh, randomized Argon2id parameters suitable
// for install time, chosen so derivation takes at least 250ms on typical
// hardware; operators may tune them, but these are the shipped defaults.
func DefaultParams() (Params, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return Params{}, apperr.Internal(err)
	}
	return Params{
		Salt:      salt,
		TimeCost:  3,
		MemoryKiB: 64 * 1024,
		Threads:   4,
	}, nil
}

const kekSize = chacha20poly1305.KeySize

func derive(passphrase string, p Params) []byte {
	return argon2.IDKey([]byte(passphrase), p.Salt, p.TimeCost, p.MemoryKiB, p.Threads, kekSize)
}

// Store holds the KEK in process memory only, and performs all wrap/unwrap
// operations against it. Read-only after Unlock.
type Store struct {
	aead cipher.AEAD
}

// Unlock derives the KEK from passphrase and persisted Params and
// constructs a Store. A wrong passphrase cannot be detected here (the KDF
// has no verifier); it is detected the first time Unwrap fails on known
// ciphertext, at which point the caller must refuse to start.
func Unlock(passphrase string, p Params) (*Store, error) {
	key := derive(passphrase, p)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Store{aead: aead}, nil
}

// Wrap seals plaintext under the KEK with a fresh 96-bit nonce, returning
// nonce||ciphertext||tag.
func (s *Store) Wrap(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, apperr.Internal(err)
	}
	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Unwrap opens a value produced by Wrap. Any failure — truncated input,
// tampered nonce, tampered ciphertext, tampered tag — collapses to a
// single opaque error.
func (s *Store) Unwrap(wrapped []byte) ([]byte, error) {
	if len(wrapped) < chacha20poly1305.NonceSize {
		return nil, apperr.Internal(errUnwrap)
	}
	nonce, ciphertext := wrapped[:chacha20poly1305.NonceSize], wrapped[chacha20poly1305.NonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperr.Internal(errUnwrap)
	}
	return plaintext, nil
}

var errUnwrap = unwrapError{}

type unwrapError struct{}

func (unwrapError) Error() string { return "unwrap failed" }
