package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/models"
	"github.com/nkiryanov/schoolauth/internal/repository"
	"github.com/nkiryanov/schoolauth/internal/service/auth"
)

// Account provisioning and admin moderation.
// Registration flows live outside of this service
type UserService struct {
	hasher  auth.PasswordHasher
	policy  auth.PasswordPolicy
	storage repository.Storage
	logger  logger.Logger
	now     func() time.Time
}

type NewUser struct {
	Email    string
	Password string
	Role     models.Role
	TenantID *string
	Approved bool
}

func NewService(hasher auth.PasswordHasher, policy auth.PasswordPolicy, storage repository.Storage, l logger.Logger) *UserService {
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	return &UserService{
		hasher:  hasher,
		policy:  policy,
		storage: storage,
		logger:  l,
		now:     time.Now,
	}
}

func (s *UserService) CreateUser(ctx context.Context, nu NewUser) (models.User, error) {
	u, err := s.prepare(nu)
	if err != nil {
		return u, err
	}

	user, err := s.storage.User().CreateUser(ctx, u)
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// Find user by email or create it
// Existing user is returned as is, password is not changed
func (s *UserService) EnsureUser(ctx context.Context, nu NewUser) (user models.User, created bool, err error) {
	u, err := s.prepare(nu)
	if err != nil {
		return u, false, err
	}

	user, created, err = s.storage.User().EnsureUser(ctx, u)
	if err != nil {
		return user, false, fmt.Errorf("can't ensure user. Err: %w", err)
	}

	return user, created, nil
}

// Approve or withdraw approval of the user account on behalf of actor
func (s *UserService) SetApproved(ctx context.Context, actor models.Identity, userID uuid.UUID, approved bool) (models.User, error) {
	user, err := s.managed(ctx, actor, userID)
	if err != nil {
		return user, err
	}

	if err := s.storage.User().SetApproved(ctx, user.ID, approved); err != nil {
		return user, fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, err)
	}
	user.Approved = approved

	s.logger.Info("user approval changed", "user_id", user.ID, "approved", approved, "actor_id", actor.UserID)
	return user, nil
}

// Activate or deactivate the user account on behalf of actor.
// Deactivation revokes every refresh token of the user in the same transaction
func (s *UserService) SetActive(ctx context.Context, actor models.Identity, userID uuid.UUID, active bool) (models.User, error) {
	user, err := s.managed(ctx, actor, userID)
	if err != nil {
		return user, err
	}

	var revoked int64
	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		if err := tx.User().SetActive(ctx, user.ID, active); err != nil {
			return err
		}
		if active {
			return nil
		}
		n, err := tx.Refresh().RevokeAllForUser(ctx, user.ID, s.now())
		revoked = n
		return err
	})
	if err != nil {
		return user, fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, err)
	}
	user.Active = active

	s.logger.Info("user activity changed", "user_id", user.ID, "active", active, "revoked_tokens", revoked, "actor_id", actor.UserID)
	return user, nil
}

// Load the user and make sure actor may manage it
func (s *UserService) managed(ctx context.Context, actor models.Identity, userID uuid.UUID) (models.User, error) {
	user, err := s.storage.User().GetUserByID(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		return user, err
	default:
		return user, fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, err)
	}

	if !actor.CanManage(user) {
		return models.User{}, apperrors.ErrForbidden
	}

	return user, nil
}

func (s *UserService) prepare(nu NewUser) (models.User, error) {
	var user models.User

	email := auth.NormalizeEmail(nu.Email)
	if email == "" {
		return user, errors.New("email must not be empty")
	}
	if !nu.Role.Valid() {
		return user, fmt.Errorf("unknown role %q", nu.Role)
	}

	// Everybody except super admin belongs to a school branch
	switch {
	case nu.Role == models.RoleSuperAdmin && nu.TenantID != nil:
		return user, errors.New("super admin must not have tenant")
	case nu.Role != models.RoleSuperAdmin && (nu.TenantID == nil || *nu.TenantID == ""):
		return user, fmt.Errorf("role %s requires tenant", nu.Role)
	}

	if err := s.policy.Check(nu.Password); err != nil {
		return user, err
	}

	hash, err := s.hasher.Hash(nu.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	return models.User{
		Email:          email,
		HashedPassword: hash,
		Role:           nu.Role,
		TenantID:       nu.TenantID,
		Approved:       nu.Approved || !nu.Role.RequiresApproval(),
		Active:         true,
	}, nil
}
