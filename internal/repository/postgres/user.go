package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/models"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, created_at, email, password_hash, role, tenant_id, approved, active`

const createUser = `-- name: CreateUser
INSERT INTO users (id, email, password_hash, role, tenant_id, approved, active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createUser,
		user.ID, user.Email, user.HashedPassword, string(user.Role), user.TenantID, user.Approved, user.Active)
	created, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, apperrors.ErrUserAlreadyExists
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const ensureUser = `-- name: EnsureUser
INSERT INTO users (id, email, password_hash, role, tenant_id, approved, active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT ((lower(email))) DO NOTHING
RETURNING ` + userColumns

// Create user or return existing one with the same email
// The existing user is not updated
func (r *UserRepo) EnsureUser(ctx context.Context, user models.User) (models.User, bool, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, ensureUser,
		user.ID, user.Email, user.HashedPassword, string(user.Role), user.TenantID, user.Approved, user.Active)
	created, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return created, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		existing, err := r.GetUserByEmail(ctx, user.Email)
		return existing, false, err
	default:
		return created, false, fmt.Errorf("db error: %w", err)
	}
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + ` FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT ` + userColumns + ` FROM users
WHERE lower(email) = lower($1)
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmail, email)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

const updatePassword = `-- name: UpdatePassword
UPDATE users SET password_hash = $2
WHERE id = $1
`

func (r *UserRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error {
	return r.execOne(ctx, updatePassword, userID, hashedPassword)
}

const setApproved = `-- name: SetApproved
UPDATE users SET approved = $2
WHERE id = $1
`

func (r *UserRepo) SetApproved(ctx context.Context, userID uuid.UUID, approved bool) error {
	return r.execOne(ctx, setApproved, userID, approved)
}

const setActive = `-- name: SetActive
UPDATE users SET active = $2
WHERE id = $1
`

func (r *UserRepo) SetActive(ctx context.Context, userID uuid.UUID, active bool) error {
	return r.execOne(ctx, setActive, userID, active)
}

// Exec statement that must touch exactly one user
func (r *UserRepo) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.DB.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	var role string
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Email, &u.HashedPassword, &role, &u.TenantID, &u.Approved, &u.Active)
	u.Role = models.Role(role)
	return u, err
}
