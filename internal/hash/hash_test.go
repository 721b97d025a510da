package hash

import (
	"context"
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	assert.Equal(t, Token("transcript"), Digest([]byte("transcript")))
	assert.Len(t, Digest(nil), 64)
}

func TestToken(t *testing.T) {
	assert.Equal(
		t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Token("hello"),
	)
	assert.NotEqual(t, Token("a"), Token("b"))
}

func TestPassword(t *testing.T) {
	ctx := context.Background()

	encoded, err := Password(ctx, "correct horse battery")
	require.NoError(t, err, "failed to hash password")

	t.Run("Match", func(t *testing.T) {
		match, rehashed, err := CheckPassword(ctx, "correct horse battery", encoded)
		require.NoError(t, err)
		assert.True(t, match)
		assert.Empty(t, rehashed, "current params should not rehash")
	})

	t.Run("Mismatch", func(t *testing.T) {
		match, rehashed, err := CheckPassword(ctx, "wrong", encoded)
		require.NoError(t, err)
		assert.False(t, match)
		assert.Empty(t, rehashed)
	})

	t.Run("OutdatedParams", func(t *testing.T) {
		params := *argon2id.DefaultParams
		params.Iterations++
		old, err := argon2id.CreateHash("correct horse battery", &params)
		require.NoError(t, err)

		match, rehashed, err := CheckPassword(ctx, "correct horse battery", old)
		require.NoError(t, err)
		assert.True(t, match)
		require.NotEmpty(t, rehashed, "outdated hash should be replaced")

		ok, err := argon2id.ComparePasswordAndHash("correct horse battery", rehashed)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, _, err := CheckPassword(ctx, "x", "not a hash")
		require.Error(t, err)
	})
}
