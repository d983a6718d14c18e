package kek

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	t.Parallel()
	params, err := DefaultParams()
	require.NoError(t, err)

	store, err := Unlock("correct horse battery staple", params)
	require.NoError(t, err)

	plaintext := []byte("a signing key's worth of bytes")
	wrapped, err := store.Wrap(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, wrapped)

	unwrapped, err := store.Unwrap(wrapped)
	require.NoError(t, err)
	assert.Equal(t, plaintext, unwrapped)
}

func TestUnwrapWrongPassphraseFails(t *testing.T) {
	t.Parallel()
	params, err := DefaultParams()
	require.NoError(t, err)

	writer, err := Unlock("the real passphrase", params)
	require.NoError(t, err)
	wrapped, err := writer.Wrap([]byte("secret material"))
	require.NoError(t, err)

	reader, err := Unlock("a wrong passphrase", params)
	require.NoError(t, err)
	_, err = reader.Unwrap(wrapped)
	require.Error(t, err)
}

func TestUnwrapTamperedCiphertextFails(t *testing.T) {
	t.Parallel()
	params, err := DefaultParams()
	require.NoError(t, err)
	store, err := Unlock("passphrase", params)
	require.NoError(t, err)

	wrapped, err := store.Wrap([]byte("secret material"))
	require.NoError(t, err)
	wrapped[len(wrapped)-1] ^= 0xFF

	_, err = store.Unwrap(wrapped)
	require.Error(t, err)
}

func TestUnwrapTruncatedInputFails(t *testing.T) {
	t.Parallel()
	params, err := DefaultParams()
	require.NoError(t, err)
	store, err := Unlock("passphrase", params)
	require.NoError(t, err)

	_, err = store.Unwrap([]byte("too short"))
	require.Error(t, err)
}

func TestDefaultParamsAreRandomized(t *testing.T) {
	t.Parallel()
	a, err := DefaultParams()
	require.NoError(t, err)
	b, err := DefaultParams()
	require.NoError(t, err)
	assert.NotEqual(t, a.Salt, b.Salt)
}
