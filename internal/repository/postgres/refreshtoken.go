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

type RefreshTokenRepo struct {
	DB DBTX
}

const refreshColumns = `id, user_id, token_hash, created_at, expires_at, revoked_at, replaced_by_hash`

const createRefreshToken = `-- name: CreateRefreshToken
INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at, revoked_at, replaced_by_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + refreshColumns

func (r *RefreshTokenRepo) Create(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	return createRefresh(ctx, r.DB, token)
}

func createRefresh(ctx context.Context, db DBTX, token models.RefreshToken) (models.RefreshToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	rows, _ := db.Query(ctx, createRefreshToken,
		token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt, token.RevokedAt, token.ReplacedByHash)
	created, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

const getRefreshToken = `-- name: GetRefreshToken by hash
SELECT ` + refreshColumns + `
FROM refresh_tokens
WHERE token_hash = $1
`

// Get token
// It should return result even it expired or revoked already
func (r *RefreshTokenRepo) GetByHash(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getRefreshToken, tokenHash)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const revokeForRotation = `-- name: Revoke active token to rotate it
UPDATE refresh_tokens
SET revoked_at = $2, replaced_by_hash = $3
WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
RETURNING ` + refreshColumns

// Revoke the presented token and save the successor in one transaction
// Row lock taken by UPDATE makes concurrent rotations of the same token serial:
// the second one sees revoked_at set and updates nothing
func (r *RefreshTokenRepo) Rotate(ctx context.Context, tokenHash string, next models.RefreshToken, now time.Time) (models.RefreshToken, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("db tx error: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	rows, _ := tx.Query(ctx, revokeForRotation, tokenHash, now, next.TokenHash)
	rotated, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		return r.classify(ctx, tx, tokenHash, now)
	default:
		return rotated, fmt.Errorf("db error: %w", err)
	}

	if _, err := createRefresh(ctx, tx, next); err != nil {
		return rotated, err
	}

	if err := tx.Commit(ctx); err != nil {
		return rotated, fmt.Errorf("db tx error: %w", err)
	}

	return rotated, nil
}

// Tell why the token could not be rotated
func (r *RefreshTokenRepo) classify(ctx context.Context, db DBTX, tokenHash string, now time.Time) (models.RefreshToken, error) {
	rows, _ := db.Query(ctx, getRefreshToken, tokenHash)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	case err != nil:
		return token, fmt.Errorf("db error: %w", err)
	case token.IsRevoked():
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
	case token.IsExpired(now):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenExpired)
	default:
		// Not revoked, not expired, but not updated either. Should not happen
		return token, fmt.Errorf("repo error: token %s not rotated", token.ID)
	}
}

const revokeRefreshToken = `-- name: Revoke user token
UPDATE refresh_tokens
SET revoked_at = COALESCE(revoked_at, $3)
WHERE token_hash = $2 AND user_id = $1
`

// Revoke single token of the user
// Unknown, foreign and already revoked tokens are ignored
func (r *RefreshTokenRepo) Revoke(ctx context.Context, userID uuid.UUID, tokenHash string, now time.Time) error {
	_, err := r.DB.Exec(ctx, revokeRefreshToken, userID, tokenHash, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const revokeAllRefreshTokens = `-- name: Revoke all active user tokens
UPDATE refresh_tokens
SET revoked_at = $2
WHERE user_id = $1 AND revoked_at IS NULL
`

func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeAllRefreshTokens, userID, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

const deleteExpiredRefreshTokens = `-- name: Delete expired tokens
DELETE FROM refresh_tokens
WHERE expires_at < $1
`

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredRefreshTokens, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt, &t.ReplacedByHash)
	return t, err
}
