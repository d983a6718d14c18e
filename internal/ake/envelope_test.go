package ake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()
	pubKey := []byte{1, 2, 3, 4, 5}
	sealed := []byte("sealed ciphertext bytes, could be any length at all")

	blob := packEnvelope(pubKey, sealed)
	gotPub, gotSealed, err := unpackEnvelope(blob)
	require.NoError(t, err)
	assert.Equal(t, pubKey, gotPub)
	assert.Equal(t, sealed, gotSealed)
}

func TestUnpackEnvelopeEmptyPublicKey(t *testing.T) {
	t.Parallel()
	blob := packEnvelope(nil, []byte("sealed"))
	gotPub, gotSealed, err := unpackEnvelope(blob)
	require.NoError(t, err)
	assert.Empty(t, gotPub)
	assert.Equal(t, []byte("sealed"), gotSealed)
}

func TestUnpackEnvelopeTooShortFails(t *testing.T) {
	t.Parallel()
	_, _, err := unpackEnvelope([]byte{0})
	require.Error(t, err)

	_, _, err = unpackEnvelope([]byte{0, 5, 1, 2})
	require.Error(t, err)
}
