package userctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/schoolauth/internal/models"
)

func TestUserCtx(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		_, ok := FromContext(context.Background())
		require.False(t, ok)
	})

	t.Run("identities do not leak between contexts", func(t *testing.T) {
		first := models.Identity{UserID: uuid.New(), Role: models.RoleTeacher}
		second := models.Identity{UserID: uuid.New(), Role: models.RoleStudent}
		base := context.Background()

		ctx1 := New(base, first)
		ctx2 := New(base, second)

		got1, ok := FromContext(ctx1)
		require.True(t, ok)
		require.Equal(t, first, got1)

		got2, ok := FromContext(ctx2)
		require.True(t, ok)
		require.Equal(t, second, got2)

		_, ok = FromContext(base)
		require.False(t, ok, "parent context must stay untouched")
	})
}
