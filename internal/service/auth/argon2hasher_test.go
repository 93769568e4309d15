package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Cheap parameters to keep tests fast
var testArgon2Params = Argon2Params{
	Memory:      8 * 1024,
	Time:        1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func Test_Argon2Hasher(t *testing.T) {
	t.Parallel()

	h, err := NewArgon2Hasher(testArgon2Params)
	require.NoError(t, err)

	t.Run("hash has phc format", func(t *testing.T) {
		got, err := h.Hash("password")
		require.NoError(t, err)

		require.True(t, strings.HasPrefix(got, "$argon2id$v=19$m=8192,t=1,p=1$"), "got %s", got)
		require.Len(t, strings.Split(got, "$"), 6)
	})

	t.Run("same password different salts", func(t *testing.T) {
		first, err := h.Hash("password")
		require.NoError(t, err)
		second, err := h.Hash("password")
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("compare", func(t *testing.T) {
		hash, err := h.Hash("password")
		require.NoError(t, err)

		assert.True(t, h.Compare(hash, "password"))
		assert.False(t, h.Compare(hash, "Password"))
		assert.False(t, h.Compare(hash, ""))
	})

	t.Run("compare uses params from hash", func(t *testing.T) {
		other, err := NewArgon2Hasher(Argon2Params{Memory: 16 * 1024, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 16})
		require.NoError(t, err)
		hash, err := other.Hash("password")
		require.NoError(t, err)

		assert.True(t, h.Compare(hash, "password"))
	})

	t.Run("malformed hash never match", func(t *testing.T) {
		for _, hash := range []string{
			"",
			"not-a-hash",
			"$argon2i$v=19$m=8192,t=1,p=1$c2FsdA$a2V5",
			"$argon2id$v=18$m=8192,t=1,p=1$c2FsdA$a2V5",
			"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5",
			"$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5",
			"$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$",
		} {
			assert.False(t, h.Compare(hash, "password"), "hash %q", hash)
		}
	})

	t.Run("expensive hash never match", func(t *testing.T) {
		salt := "c2FsdHNhbHRzYWx0c2FsdA"
		for _, hash := range []string{
			"$argon2id$v=19$m=4294967295,t=1,p=1$" + salt + "$" + salt,
			"$argon2id$v=19$m=1048577,t=1,p=1$" + salt + "$" + salt,
			"$argon2id$v=19$m=8192,t=4294967295,p=1$" + salt + "$" + salt,
			"$argon2id$v=19$m=8192,t=11,p=1$" + salt + "$" + salt,
			"$argon2id$v=19$m=8192,t=1,p=17$" + salt + "$" + salt,
			"$argon2id$v=19$m=8192,t=1,p=1$" + strings.Repeat("A", 88) + "$" + salt,
			"$argon2id$v=19$m=8192,t=1,p=1$" + salt + "$" + strings.Repeat("A", 88),
		} {
			_, _, _, err := parseArgon2(hash)
			require.Error(t, err, "hash %q", hash)
			assert.False(t, h.Compare(hash, "password"), "hash %q", hash)
		}
	})

	t.Run("weak params rejected", func(t *testing.T) {
		_, err := NewArgon2Hasher(Argon2Params{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
		require.Error(t, err)
	})

	t.Run("params above maximum rejected", func(t *testing.T) {
		for _, p := range []Argon2Params{
			{Memory: 2 << 20, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
			{Memory: 8 * 1024, Time: 11, Parallelism: 1, SaltLength: 16, KeyLength: 32},
			{Memory: 8 * 1024, Time: 1, Parallelism: 32, SaltLength: 16, KeyLength: 32},
			{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 128, KeyLength: 32},
		} {
			_, err := NewArgon2Hasher(p)
			require.Error(t, err, "params %+v", p)
		}
	})

	t.Run("default params accepted", func(t *testing.T) {
		_, err := NewArgon2Hasher(DefaultArgon2Params)
		require.NoError(t, err)
	})
}
