package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher_HashAndVerify(t *testing.T) {
	hasher := NewHasher(MinCost)

	hash, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))

	assert.True(t, hasher.Verify("correct horse battery staple", hash))
	assert.False(t, hasher.Verify("wrong password", hash))
}

func TestHasher_HashesAreSalted(t *testing.T) {
	hasher := NewHasher(MinCost)

	h1, err := hasher.Hash("same password")
	require.NoError(t, err)
	h2, err := hasher.Hash("same password")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.True(t, hasher.Verify("same password", h1))
	assert.True(t, hasher.Verify("same password", h2))
}

func TestHasher_RejectsOverlongPassword(t *testing.T) {
	hasher := NewHasher(MinCost)

	_, err := hasher.Hash(strings.Repeat("a", 73))
	assert.Error(t, err)
}

func TestHasher_VerifyMalformedHash(t *testing.T) {
	hasher := NewHasher(MinCost)

	assert.False(t, hasher.Verify("password", "not-a-bcrypt-hash"))
	assert.False(t, hasher.Verify("password", ""))
}

func TestNewHasher_CostClamping(t *testing.T) {
	assert.Equal(t, MinCost, NewHasher(4).Cost())
	assert.Equal(t, 12, NewHasher(12).Cost())
	assert.Equal(t, 31, NewHasher(99).Cost())
}
