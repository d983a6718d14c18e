package totp

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkauth/darkauth/internal/apperr"
	"github.com/darkauth/darkauth/internal/store"
)

// plaintextWrapper is a no-op Wrapper so tests don't pay for Argon2id.
type plaintextWrapper struct{}

func (plaintextWrapper) Wrap(plaintext []byte) ([]byte, error)   { return append([]byte(nil), plaintext...), nil }
func (plaintextWrapper) Unwrap(wrapped []byte) ([]byte, error)   { return append([]byte(nil), wrapped...), nil }

type fakeStore struct {
	records      map[string]*store.TotpRecord
	backupHashes map[string]map[string]bool // cohort:principal -> string(hash) -> unused
	failures     int
	successes    int
}

func key(principalID, cohort string) string { return cohort + ":" + principalID }

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:      map[string]*store.TotpRecord{},
		backupHashes: map[string]map[string]bool{},
	}
}

func (f *fakeStore) TotpByPrincipal(_ context.Context, principalID, cohort string) (*store.TotpRecord, error) {
	rec, ok := f.records[key(principalID, cohort)]
	if !ok {
		return nil, apperr.NotFound("totp", nil)
	}
	return rec, nil
}

func (f *fakeStore) UpsertTotpPending(_ context.Context, principalID, cohort string, wrappedSecret []byte, now time.Time) error {
	f.records[key(principalID, cohort)] = &store.TotpRecord{
		PrincipalID: principalID, Cohort: cohort, WrappedSecret: wrappedSecret, Status: "pending", CreatedAt: now,
	}
	return nil
}

func (f *fakeStore) EnableTotp(_ context.Context, principalID, cohort string, backupHashes [][]byte, now time.Time) error {
	rec := f.records[key(principalID, cohort)]
	rec.Status = "enabled"
	hashes := map[string]bool{}
	for _, h := range backupHashes {
		hashes[string(h)] = true
	}
	f.backupHashes[key(principalID, cohort)] = hashes
	return nil
}

func (f *fakeStore) RecordTotpSuccess(_ context.Context, _, _ string, _ time.Time) error {
	f.successes++
	return nil
}

func (f *fakeStore) RecordTotpFailure(_ context.Context, principalID, cohort string, now time.Time, maxFailures int, lockDuration time.Duration) error {
	f.failures++
	rec := f.records[key(principalID, cohort)]
	rec.FailureCount++
	if rec.FailureCount >= maxFailures {
		locked := now.Add(lockDuration)
		rec.LockedUntil = &locked
	}
	return nil
}

func (f *fakeStore) ConsumeBackupCode(_ context.Context, principalID, cohort string, hash []byte, _ time.Time) (bool, error) {
	hashes := f.backupHashes[key(principalID, cohort)]
	if hashes == nil || !hashes[string(hash)] {
		return false, nil
	}
	delete(hashes, string(hash))
	return true, nil
}

func (f *fakeStore) DisableTotp(_ context.Context, principalID, cohort string) error {
	delete(f.records, key(principalID, cohort))
	return nil
}

func TestSetupInitThenVerifyEnablesAndReturnsBackupCodes(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	e := NewEngine(fs, plaintextWrapper{}, "DarkAuth", 5, 10*time.Minute)
	now := time.Unix(1700000000, 0)

	key, err := e.SetupInit(context.Background(), "sub-1", "user", "user@example.com", now)
	require.NoError(t, err)

	code, err := totp.GenerateCode(key.Secret(), now)
	require.NoError(t, err)

	codes, err := e.SetupVerify(context.Background(), "sub-1", "user", code, now)
	require.NoError(t, err)
	assert.Len(t, codes, backupCodeCount)

	status, err := e.Status(context.Background(), "sub-1", "user")
	require.NoError(t, err)
	assert.Equal(t, "enabled", status)
}

func TestSetupVerifyWrongCodeFails(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	e := NewEngine(fs, plaintextWrapper{}, "DarkAuth", 5, 10*time.Minute)
	now := time.Unix(1700000000, 0)

	_, err := e.SetupInit(context.Background(), "sub-1", "user", "user@example.com", now)
	require.NoError(t, err)

	_, err = e.SetupVerify(context.Background(), "sub-1", "user", "000000", now)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestVerifyAbsentRecordIsNoop(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	e := NewEngine(fs, plaintextWrapper{}, "DarkAuth", 5, 10*time.Minute)
	err := e.Verify(context.Background(), "sub-1", "user", "123456", time.Now())
	require.NoError(t, err)
}

func TestVerifyLockoutAfterMaxFailures(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	e := NewEngine(fs, plaintextWrapper{}, "DarkAuth", 2, 10*time.Minute)
	now := time.Unix(1700000000, 0)

	key, err := e.SetupInit(context.Background(), "sub-1", "user", "user@example.com", now)
	require.NoError(t, err)
	code, err := totp.GenerateCode(key.Secret(), now)
	require.NoError(t, err)
	_, err = e.SetupVerify(context.Background(), "sub-1", "user", code, now)
	require.NoError(t, err)

	// First two wrong-code attempts fail with plain invalid-code errors;
	// the second one crosses maxFailures and sets the lockout.
	err = e.Verify(context.Background(), "sub-1", "user", "000000", now)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	err = e.Verify(context.Background(), "sub-1", "user", "000000", now)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	// The third attempt is rejected before it even checks the code.
	err = e.Verify(context.Background(), "sub-1", "user", "000000", now)
	require.Error(t, err)
	assert.Equal(t, apperr.KindOtpLocked, apperr.KindOf(err))
}

func TestVerifyCorrectCodeRecordsSuccess(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	e := NewEngine(fs, plaintextWrapper{}, "DarkAuth", 5, 10*time.Minute)
	now := time.Unix(1700000000, 0)

	key, err := e.SetupInit(context.Background(), "sub-1", "user", "user@example.com", now)
	require.NoError(t, err)
	code, err := totp.GenerateCode(key.Secret(), now)
	require.NoError(t, err)
	_, err = e.SetupVerify(context.Background(), "sub-1", "user", code, now)
	require.NoError(t, err)

	freshCode, err := totp.GenerateCode(key.Secret(), now.Add(30*time.Second))
	require.NoError(t, err)
	require.NoError(t, e.Verify(context.Background(), "sub-1", "user", freshCode, now.Add(30*time.Second)))
	assert.Equal(t, 1, fs.successes)
}

func TestDisableRemovesRecord(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	e := NewEngine(fs, plaintextWrapper{}, "DarkAuth", 5, 10*time.Minute)
	now := time.Unix(1700000000, 0)
	_, err := e.SetupInit(context.Background(), "sub-1", "user", "user@example.com", now)
	require.NoError(t, err)

	require.NoError(t, e.Disable(context.Background(), "sub-1", "user"))
	status, err := e.Status(context.Background(), "sub-1", "user")
	require.NoError(t, err)
	assert.Equal(t, "absent", status)
}
