package pkce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifier(t *testing.T) {
	t.Parallel()
	v1, err := GenerateVerifier()
	require.NoError(t, err)
	assert.Len(t, v1, 43)

	v2, err := GenerateVerifier()
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestComputeChallengeIsDeterministic(t *testing.T) {
	t.Parallel()
	verifier := "a-fixed-verifier-value-for-testing-purposes"
	assert.Equal(t, ComputeChallenge(verifier), ComputeChallenge(verifier))
}

func TestVerify(t *testing.T) {
	t.Parallel()
	verifier, err := GenerateVerifier()
	require.NoError(t, err)
	challenge := ComputeChallenge(verifier)

	assert.True(t, Verify(verifier, challenge))
	assert.False(t, Verify(verifier, "some-other-challenge"))
	assert.False(t, Verify("wrong-verifier", challenge))
}
