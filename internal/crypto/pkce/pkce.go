// Package pkce implements RFC 7636 Proof Key for Code Exchange: verifier
// generation, S256 challenge computation, and constant-time verification.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/darkauth/darkauth/internal/apperr"
)

// MethodS256 is the only challenge method this server accepts.
const MethodS256 = "S256"

// verifierBytes yields a base64url-encoded verifier of 43 characters,
// the minimum RFC 7636 allows.
const verifierBytes = 32

// GenerateVerifier returns a cryptographically random code_verifier,
// base64url (no padding) encoded, 43 characters long.
func GenerateVerifier() (string, error) {
	buf := make([]byte, verifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", apperr.Internal(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ComputeChallenge returns the S256 code_challenge for a given verifier:
// base64url(SHA-256(verifier)), no padding.
func ComputeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Verify checks a presented code_verifier against a stored S256 challenge
// in constant time; a non-constant-time comparison here is a known class
// of timing side channel.
func Verify(verifier, challenge string) bool {
	computed := ComputeChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
