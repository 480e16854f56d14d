package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	dErrors "oncocentre/pkg/domain-errors"
)

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	t.Run("hash then verify", func(t *testing.T) {
		hash, err := h.Hash("correct horse")
		require.NoError(t, err)
		assert.NotEqual(t, "correct horse", hash)
		require.NoError(t, h.Verify("correct horse", hash))
	})

	t.Run("wrong password is a mismatch", func(t *testing.T) {
		hash, err := h.Hash("correct horse")
		require.NoError(t, err)
		assert.ErrorIs(t, h.Verify("battery staple", hash), ErrMismatch)
	})

	t.Run("garbage hash is not a mismatch", func(t *testing.T) {
		err := h.Verify("anything", "not-a-bcrypt-hash")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMismatch)
	})

	t.Run("empty password rejected", func(t *testing.T) {
		_, err := h.Hash("")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("overlong password rejected", func(t *testing.T) {
		_, err := h.Hash(strings.Repeat("a", 73))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("equalize does not panic before first hash", func(t *testing.T) {
		NewHasher(bcrypt.MinCost).Equalize("x")
	})

	t.Run("out of range cost falls back to default", func(t *testing.T) {
		assert.Equal(t, bcrypt.DefaultCost, NewHasher(100).cost)
	})
}
