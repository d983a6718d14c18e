// Package totp implements TOTP setup, verification, lockout, and
// backup-code handling
// layered over internal/store's persistence and internal/crypto/kek's
// wrapping.
package totp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"time"

	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/darkauth/darkauth/internal/apperr"
	"github.com/darkauth/darkauth/internal/store"
)

const backupCodeCount = 10

// Wrapper is the subset of internal/crypto/kek.Store this package needs;
// named here so tests can substitute a fake without pulling in Argon2id.
type Wrapper interface {
	Wrap(plaintext []byte) ([]byte, error)
	Unwrap(wrapped []byte) ([]byte, error)
}

// Store is the subset of *store.DB this package needs.
type Store interface {
	TotpByPrincipal(ctx context.Context, principalID, cohort string) (*store.TotpRecord, error)
	UpsertTotpPending(ctx context.Context, principalID, cohort string, wrappedSecret []byte, now time.Time) error
	EnableTotp(ctx context.Context, principalID, cohort string, backupHashes [][]byte, now time.Time) error
	RecordTotpSuccess(ctx context.Context, principalID, cohort string, now time.Time) error
	RecordTotpFailure(ctx context.Context, principalID, cohort string, now time.Time, maxFailures int, lockDuration time.Duration) error
	ConsumeBackupCode(ctx context.Context, principalID, cohort string, hash []byte, now time.Time) (bool, error)
	DisableTotp(ctx context.Context, principalID, cohort string) error
}

// Engine owns TOTP setup, verification, and lockout state.
type Engine struct {
	store        Store
	keys         Wrapper
	issuer       string
	maxFailures  int
	lockDuration time.Duration
}

func NewEngine(s Store, keys Wrapper, issuer string, maxFailures int, lockDuration time.Duration) *Engine {
	return &Engine{store: s, keys: keys, issuer: issuer, maxFailures: maxFailures, lockDuration: lockDuration}
}

// SetupInit generates a fresh TOTP secret, wraps it under the KEK, and
// persists it pending verification.
func (e *Engine) SetupInit(ctx context.Context, principalID, cohort, accountLabel string, now time.Time) (*potp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountLabel,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	wrapped, err := e.keys.Wrap([]byte(key.Secret()))
	if err != nil {
		return nil, err
	}
	if err := e.store.UpsertTotpPending(ctx, principalID, cohort, wrapped, now); err != nil {
		return nil, err
	}
	return key, nil
}

// SetupVerify checks the first code against the pending secret, and on
// success enables it and returns a fresh batch of backup codes in the
// clear — the only time they are ever visible.
func (e *Engine) SetupVerify(ctx context.Context, principalID, cohort, code string, now time.Time) ([]string, error) {
	rec, err := e.store.TotpByPrincipal(ctx, principalID, cohort)
	if err != nil {
		return nil, err
	}
	if rec.Status == "enabled" {
		return nil, apperr.Conflict("totp already enabled", nil)
	}
	secret, err := e.keys.Unwrap(rec.WrappedSecret)
	if err != nil {
		return nil, err
	}
	if !validateAt(code, string(secret), now) {
		return nil, apperr.Unauthorized("invalid otp code", nil)
	}
	codes, hashes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := e.store.EnableTotp(ctx, principalID, cohort, hashes, now); err != nil {
		return nil, err
	}
	return codes, nil
}

// Verify checks a code (TOTP or backup) against an enabled record during
// login, enforcing the configured lockout policy. A NotFound record
// means TOTP isn't configured; callers decide separately whether it's
// required.
func (e *Engine) Verify(ctx context.Context, principalID, cohort, code string, now time.Time) error {
	rec, err := e.store.TotpByPrincipal(ctx, principalID, cohort)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil
		}
		return err
	}
	if rec.Status != "enabled" {
		return nil
	}
	if rec.LockedUntil != nil && now.Before(*rec.LockedUntil) {
		return apperr.OtpLocked(nil)
	}

	secret, err := e.keys.Unwrap(rec.WrappedSecret)
	if err != nil {
		return err
	}
	if validateAt(code, string(secret), now) {
		return e.store.RecordTotpSuccess(ctx, principalID, cohort, now)
	}

	consumed, err := e.store.ConsumeBackupCode(ctx, principalID, cohort, hashBackupCode(code), now)
	if err != nil {
		return err
	}
	if consumed {
		return e.store.RecordTotpSuccess(ctx, principalID, cohort, now)
	}

	if err := e.store.RecordTotpFailure(ctx, principalID, cohort, now, e.maxFailures, e.lockDuration); err != nil {
		return err
	}
	return apperr.Unauthorized("invalid otp code", nil)
}

// Disable removes TOTP state entirely.
func (e *Engine) Disable(ctx context.Context, principalID, cohort string) error {
	return e.store.DisableTotp(ctx, principalID, cohort)
}

// Status reports "absent", "pending", or "enabled" so callers (the login
// flow, the account settings page) can decide whether to prompt for
// setup or for a code without reaching into store.TotpRecord directly.
func (e *Engine) Status(ctx context.Context, principalID, cohort string) (string, error) {
	rec, err := e.store.TotpByPrincipal(ctx, principalID, cohort)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return "absent", nil
		}
		return "", err
	}
	return rec.Status, nil
}

func generateBackupCodes() (codes []string, hashes [][]byte, err error) {
	codes = make([]string, backupCodeCount)
	hashes = make([][]byte, backupCodeCount)
	for i := range codes {
		buf := make([]byte, 5)
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, apperr.Internal(err)
		}
		code := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
		codes[i] = code
		hashes[i] = hashBackupCode(code)
	}
	return codes, hashes, nil
}

// validateAt checks code against secret at now with the same parameters
// totp.Validate uses (SHA-1, 6 digits, 30-second step, one step of skew).
func validateAt(code, secret string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    potp.DigitsSix,
		Algorithm: potp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func hashBackupCode(code string) []byte {
	sum := sha256.Sum256([]byte(code))
	return sum[:]
}
