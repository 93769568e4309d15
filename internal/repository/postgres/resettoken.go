package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/models"
)

type ResetTokenRepo struct {
	DB DBTX
}

const resetColumns = `id, user_id, token_hash, created_at, expires_at, consumed_at`

const createResetToken = `-- name: CreateResetToken
INSERT INTO reset_tokens (id, user_id, token_hash, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + resetColumns

func (r *ResetTokenRepo) Create(ctx context.Context, token models.ResetToken) (models.ResetToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createResetToken, token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt)
	created, err := pgx.CollectOneRow(rows, rowToResetToken)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

const consumeResetToken = `-- name: ConsumeResetToken
UPDATE reset_tokens
SET consumed_at = $2
WHERE token_hash = $1 AND consumed_at IS NULL AND expires_at > $2
RETURNING ` + resetColumns

// Consume token. Second consumer of the same token gets apperrors.ErrResetTokenNotFound
func (r *ResetTokenRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (models.ResetToken, error) {
	rows, _ := r.DB.Query(ctx, consumeResetToken, tokenHash, now)
	token, err := pgx.CollectOneRow(rows, rowToResetToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const deleteStaleResetTokens = `-- name: Delete expired or consumed reset tokens
DELETE FROM reset_tokens
WHERE expires_at < $1 OR consumed_at IS NOT NULL
`

func (r *ResetTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteStaleResetTokens, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToResetToken(row pgx.CollectableRow) (models.ResetToken, error) {
	var t models.ResetToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.ConsumedAt)
	return t, err
}
