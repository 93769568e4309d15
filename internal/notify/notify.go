package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/schoolauth/internal/logger"
)

const (
	DefaultResetStream = "schoolauth:password-reset"
	defaultMaxLen      = 10000
)

// Password reset message for an external mail or push worker
type ResetMessage struct {
	UserID    uuid.UUID
	Email     string
	Token     string // raw reset token, must never be logged
	ExpiresAt time.Time
}

// Delivers password reset tokens to users
type Notifier interface {
	PasswordReset(ctx context.Context, msg ResetMessage) error
}

// Publishes reset messages to redis stream
type RedisStream struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

func NewRedisStream(client redis.UniversalClient, stream string) *RedisStream {
	if stream == "" {
		stream = DefaultResetStream
	}
	return &RedisStream{client: client, stream: stream, maxLen: defaultMaxLen}
}

func (n *RedisStream) PasswordReset(ctx context.Context, msg ResetMessage) error {
	args := &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]any{
			"user_id":    msg.UserID.String(),
			"email":      msg.Email,
			"token":      msg.Token,
			"expires_at": msg.ExpiresAt.UTC().Format(time.RFC3339),
		},
	}

	if err := n.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish password reset for user %s: %w", msg.UserID, err)
	}
	return nil
}

// Notifier for environments without delivery. Token is dropped
type LogNotifier struct {
	Logger logger.Logger
}

func (n LogNotifier) PasswordReset(ctx context.Context, msg ResetMessage) error {
	n.Logger.Info("password reset requested, delivery is not configured",
		"user_id", msg.UserID,
		"expires_at", msg.ExpiresAt,
	)
	return nil
}
