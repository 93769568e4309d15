package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func Test_BcryptHasher(t *testing.T) {
	t.Parallel()

	h := BcryptHasher{Cost: bcrypt.MinCost}

	t.Run("hash password", func(t *testing.T) {
		got, err := h.Hash("password")
		require.NoError(t, err)

		require.Len(t, got, 60, "bcrypt length is 60 letters as far as i know")
		require.Equal(t, "$2a$", got[:4], "bcrypt has should have prefix '$2a$'")
	})

	t.Run("compare password ok", func(t *testing.T) {
		hash, err := h.Hash("password")
		require.NoError(t, err)

		require.True(t, h.Compare(hash, "password"))
	})

	t.Run("fail compare if wrong password", func(t *testing.T) {
		hash, err := h.Hash("password")
		require.NoError(t, err)

		require.False(t, h.Compare(hash, "wrong"))
	})

	t.Run("long passwords are not truncated", func(t *testing.T) {
		long := string(make([]byte, 100))
		hash, err := h.Hash(long + "a")
		require.NoError(t, err)

		require.False(t, h.Compare(hash, long+"b"))
	})

	t.Run("malformed hash never match", func(t *testing.T) {
		require.False(t, h.Compare("not-a-hash", "password"))
		require.False(t, h.Compare("", ""))
	})
}
