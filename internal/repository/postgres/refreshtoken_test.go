package postgres

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/models"
	"github.com/nkiryanov/schoolauth/internal/testutil"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

func Test_RefreshTokenRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	now := mustParseTime("2025-01-01 19:00:01Z")

	// Create user and return token owned by it
	setup := func(t *testing.T, db DBTX) models.RefreshToken {
		user, err := (&UserRepo{DB: db}).CreateUser(t.Context(), newTestUser(uuid.NewString()+"@school.test"))
		require.NoError(t, err)

		return models.RefreshToken{
			ID:        uuid.New(),
			UserID:    user.ID,
			TokenHash: "hash-" + uuid.NewString(),
			CreatedAt: now.Add(-time.Hour),
			ExpiresAt: now.Add(24 * time.Hour),
		}
	}

	successor := func(token models.RefreshToken) models.RefreshToken {
		return models.RefreshToken{
			UserID:    token.UserID,
			TokenHash: "next-" + uuid.NewString(),
			CreatedAt: now,
			ExpiresAt: now.Add(48 * time.Hour),
		}
	}

	t.Run("create token ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := setup(t, tx)

			got, err := repo.Create(t.Context(), token)

			require.NoError(t, err)
			require.Equal(t, token.ID, got.ID)
			require.Equal(t, token.UserID, got.UserID)
			require.Equal(t, token.TokenHash, got.TokenHash)
			require.WithinDuration(t, token.CreatedAt, got.CreatedAt, time.Microsecond)
			require.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, time.Microsecond)
			require.Nil(t, got.RevokedAt)
			require.Nil(t, got.ReplacedByHash)
		})
	})

	t.Run("get token ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := setup(t, tx)
			_, err := repo.Create(t.Context(), token)
			require.NoError(t, err)

			got, err := repo.GetByHash(t.Context(), token.TokenHash)

			require.NoError(t, err)
			require.Equal(t, token.ID, got.ID)
			require.Equal(t, token.UserID, got.UserID)
		})
	})

	t.Run("get not existed token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}

			_, err := repo.GetByHash(t.Context(), "unknown")

			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("rotate token ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := setup(t, tx)
			_, err := repo.Create(t.Context(), token)
			require.NoError(t, err)
			next := successor(token)

			rotated, err := repo.Rotate(t.Context(), token.TokenHash, next, now)

			require.NoError(t, err)
			require.NotNil(t, rotated.RevokedAt)
			require.WithinDuration(t, now, *rotated.RevokedAt, 0)
			require.Equal(t, next.TokenHash, *rotated.ReplacedByHash)

			saved, err := repo.GetByHash(t.Context(), next.TokenHash)
			require.NoError(t, err, "successor must be saved")
			assert.Nil(t, saved.RevokedAt)
			assert.Equal(t, token.UserID, saved.UserID)
		})
	})

	t.Run("rotate revoked token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := setup(t, tx)
			_, err := repo.Create(t.Context(), token)
			require.NoError(t, err)
			_, err = repo.Rotate(t.Context(), token.TokenHash, successor(token), now)
			require.NoError(t, err)

			got, err := repo.Rotate(t.Context(), token.TokenHash, successor(token), now.Add(time.Second))

			require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
			assert.Equal(t, token.UserID, got.UserID, "revoked token must be returned to know the owner")
		})
	})

	t.Run("rotate expired token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := setup(t, tx)
			_, err := repo.Create(t.Context(), token)
			require.NoError(t, err)

			_, err = repo.Rotate(t.Context(), token.TokenHash, successor(token), token.ExpiresAt)

			require.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired, "token is expired exactly at expires_at")
		})
	})

	t.Run("rotate unknown token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}

			_, err := repo.Rotate(t.Context(), "unknown", models.RefreshToken{TokenHash: "x"}, now)

			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("revoke is idempotent and scoped to user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := setup(t, tx)
			_, err := repo.Create(t.Context(), token)
			require.NoError(t, err)

			err = repo.Revoke(t.Context(), uuid.New(), token.TokenHash, now)
			require.NoError(t, err)
			got, err := repo.GetByHash(t.Context(), token.TokenHash)
			require.NoError(t, err)
			require.Nil(t, got.RevokedAt, "foreign user can't revoke the token")

			require.NoError(t, repo.Revoke(t.Context(), token.UserID, token.TokenHash, now))
			require.NoError(t, repo.Revoke(t.Context(), token.UserID, token.TokenHash, now.Add(time.Hour)))
			require.NoError(t, repo.Revoke(t.Context(), token.UserID, "unknown", now))

			got, err = repo.GetByHash(t.Context(), token.TokenHash)
			require.NoError(t, err)
			require.NotNil(t, got.RevokedAt)
			assert.WithinDuration(t, now, *got.RevokedAt, 0, "second revoke must not overwrite revoked_at")
		})
	})

	t.Run("revoke all for user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := setup(t, tx)
			_, err := repo.Create(t.Context(), token)
			require.NoError(t, err)
			second := successor(token)
			_, err = repo.Create(t.Context(), second)
			require.NoError(t, err)
			other := setup(t, tx)
			_, err = repo.Create(t.Context(), other)
			require.NoError(t, err)

			n, err := repo.RevokeAllForUser(t.Context(), token.UserID, now)

			require.NoError(t, err)
			assert.Equal(t, int64(2), n)
			got, err := repo.GetByHash(t.Context(), other.TokenHash)
			require.NoError(t, err)
			assert.Nil(t, got.RevokedAt, "tokens of other users must stay active")
		})
	})

	t.Run("delete expired", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := setup(t, tx)
			_, err := repo.Create(t.Context(), token)
			require.NoError(t, err)

			n, err := repo.DeleteExpired(t.Context(), token.ExpiresAt.Add(time.Second))

			require.NoError(t, err)
			assert.GreaterOrEqual(t, n, int64(1))
			_, err = repo.GetByHash(t.Context(), token.TokenHash)
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	// Runs on the pool: every rotation needs its own connection and transaction
	t.Run("concurrent rotation has one winner", func(t *testing.T) {
		repo := RefreshTokenRepo{DB: pg.Pool}
		token := setup(t, pg.Pool)
		_, err := repo.Create(t.Context(), token)
		require.NoError(t, err)

		const attempts = 8
		errs := make([]error, attempts)
		var wg sync.WaitGroup
		for i := range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = repo.Rotate(t.Context(), token.TokenHash, successor(token), now)
			}()
		}
		wg.Wait()

		var won int
		for _, err := range errs {
			switch {
			case err == nil:
				won++
			default:
				assert.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
			}
		}
		assert.Equal(t, 1, won, "exactly one rotation must succeed")
	})
}
