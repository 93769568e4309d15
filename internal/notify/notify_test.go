package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/schoolauth/internal/logger"
)

func TestRedisStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	n := NewRedisStream(client, "")
	msg := ResetMessage{
		UserID:    uuid.New(),
		Email:     "a@x.com",
		Token:     "raw-token",
		ExpiresAt: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
	}

	err := n.PasswordReset(t.Context(), msg)
	require.NoError(t, err)

	entries, err := client.XRange(t.Context(), DefaultResetStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, msg.UserID.String(), entries[0].Values["user_id"])
	assert.Equal(t, "a@x.com", entries[0].Values["email"])
	assert.Equal(t, "raw-token", entries[0].Values["token"])
	assert.Equal(t, "2025-01-01T10:00:00Z", entries[0].Values["expires_at"])
}

func TestLogNotifier(t *testing.T) {
	var buf strings.Builder
	l, err := logger.NewWriterLogger(&buf, logger.LevelInfo)
	require.NoError(t, err)
	userID := uuid.New()

	err = LogNotifier{Logger: l}.PasswordReset(t.Context(), ResetMessage{UserID: userID, Token: "raw-secret-token"})

	require.NoError(t, err)
	assert.Contains(t, buf.String(), userID.String())
	assert.NotContains(t, buf.String(), "raw-secret-token", "token must never be logged")
}
