package security_test

import (
	"strings"
	"testing"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPasswordConfig = config.PasswordConfig{
	ArgonMemoryKB:    32768,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password", testPasswordConfig)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=32768,t=1,p=1$"), hash)

	ok, err := security.VerifyPassword("very-secure-password", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = security.VerifyPassword("bogus-password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPasswordBadHash(t *testing.T) {
	for _, encoded := range []string{
		"not-a-hash",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$t=1$c2FsdA$aGFzaA",
		"$bcrypt$v=19$m=8,t=1,p=1$c2FsdA$aGFzaA",
	} {
		_, err := security.VerifyPassword("irrelevant", encoded)
		assert.ErrorIs(t, err, security.ErrInvalidHash, encoded)
	}
}

func TestValidatePassword(t *testing.T) {
	assert.ErrorIs(t, security.ValidatePassword("12345"), security.ErrWeakPassword)
	assert.NoError(t, security.ValidatePassword("123456"))
}

func TestNeedsRehash(t *testing.T) {
	hash, err := security.HashPassword("secret-pass", testPasswordConfig)
	require.NoError(t, err)
	assert.False(t, security.NeedsRehash(hash, testPasswordConfig))

	stronger := testPasswordConfig
	stronger.ArgonTime = 3
	assert.True(t, security.NeedsRehash(hash, stronger))
	assert.True(t, security.NeedsRehash("garbage", testPasswordConfig))
}

func TestRandomToken(t *testing.T) {
	a, err := security.RandomToken(32)
	require.NoError(t, err)
	b, err := security.RandomToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
	assert.NotContains(t, a, "+")

	_, err = security.RandomToken(0)
	assert.Error(t, err)
}
