package tokenmanager

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/models"
	"github.com/nkiryanov/schoolauth/internal/repository"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 7 * 24 * time.Hour

	opaqueTokenBytes = 32
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID   uuid.UUID   `json:"uid"`
	Role     models.Role `json:"role"`
	TenantID *string     `json:"tenant,omitempty"`
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign access token
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm: HS256, HS384 or HS512
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

type TokenManager struct {
	// Secret key to sign access token
	key []byte

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time

	// Refresh token repo
	refreshRepo repository.RefreshTokenRepo
}

func New(cfg Config, refreshRepo repository.RefreshTokenRepo) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing method %q", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenManager{
		key:         []byte(cfg.SecretKey),
		alg:         alg,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		now:         cfg.Now,
		refreshRepo: refreshRepo,
	}, nil
}

func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// Issue signed access token for the user
func (m *TokenManager) IssueAccess(user models.User) (models.IssuedToken, error) {
	now := m.now().Truncate(time.Second)
	expiresAt := now.Add(m.accessTTL)

	token := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   user.ID.String(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID:   user.ID,
			Role:     user.Role,
			TenantID: user.TenantID,
		},
	)
	access, err := token.SignedString(m.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: access, ExpiresAt: expiresAt}, nil
}

// Parse and validate access token
// Any failure is reported as apperrors.ErrInvalidToken
func (m *TokenManager) ParseAccess(ctx context.Context, access string) (models.Identity, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return m.key, nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}

	if claims.UserID == uuid.Nil || !claims.Role.Valid() {
		return models.Identity{}, fmt.Errorf("%w: malformed claims", apperrors.ErrInvalidToken)
	}

	identity := models.Identity{
		UserID:    claims.UserID,
		Role:      claims.Role,
		TenantID:  claims.TenantID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}

	return identity, nil
}

// Generate random refresh token value and its hash
// Only the hash has to be stored
func (m *TokenManager) NewRefresh() (raw string, hash string, err error) {
	return NewOpaqueToken()
}

// Random url safe token with its hash. Used for refresh and password reset tokens
func NewOpaqueToken() (raw string, hash string, err error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("error while generate token. Err: %w", err)
	}

	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, HashToken(raw), nil
}

// Hex encoded SHA-256 of opaque token value
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Generate access token and refresh token, save refresh token hash
func (m *TokenManager) GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error) {
	var pair models.TokenPair

	access, err := m.IssueAccess(user)
	if err != nil {
		return pair, err
	}

	refresh, next, err := m.nextRefresh(user.ID)
	if err != nil {
		return pair, err
	}

	_, err = m.refreshRepo.Create(ctx, next)
	if err != nil {
		return pair, fmt.Errorf("%w: error while saving refresh token. Err: %w", apperrors.ErrServiceUnavailable, err)
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (m *TokenManager) nextRefresh(userID uuid.UUID) (models.IssuedToken, models.RefreshToken, error) {
	raw, hash, err := m.NewRefresh()
	if err != nil {
		return models.IssuedToken{}, models.RefreshToken{}, err
	}

	now := m.now().Truncate(time.Second)
	expiresAt := now.Add(m.refreshTTL)

	record := models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	return models.IssuedToken{Value: raw, ExpiresAt: expiresAt}, record, nil
}

// Exchange refresh token for a new one
// Returns the presented (now revoked) record and the new refresh token.
// Presenting a revoked token revokes every token of its owner and
// returns apperrors.ErrTokenReuseDetected together with the presented record
func (m *TokenManager) RotateRefresh(ctx context.Context, raw string) (models.RefreshToken, models.IssuedToken, error) {
	if raw == "" {
		return models.RefreshToken{}, models.IssuedToken{}, apperrors.ErrInvalidToken
	}

	presented, err := m.refreshRepo.GetByHash(ctx, HashToken(raw))
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return presented, models.IssuedToken{}, apperrors.ErrInvalidToken
	default:
		return presented, models.IssuedToken{}, fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, err)
	}

	refresh, next, err := m.nextRefresh(presented.UserID)
	if err != nil {
		return presented, refresh, err
	}

	rotated, err := m.refreshRepo.Rotate(ctx, presented.TokenHash, next, m.now())
	switch {
	case err == nil:
		return rotated, refresh, nil
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return presented, models.IssuedToken{}, apperrors.ErrInvalidToken
	case errors.Is(err, apperrors.ErrRefreshTokenExpired):
		return presented, models.IssuedToken{}, apperrors.ErrTokenExpired
	case errors.Is(err, apperrors.ErrRefreshTokenRevoked):
		if _, err := m.RevokeAll(ctx, presented.UserID); err != nil {
			return presented, models.IssuedToken{}, err
		}
		return presented, models.IssuedToken{}, apperrors.ErrTokenReuseDetected
	default:
		return presented, models.IssuedToken{}, fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, err)
	}
}

// Revoke the refresh token if it belongs to the user
// Unknown or already revoked tokens are ignored
func (m *TokenManager) RevokeRefresh(ctx context.Context, userID uuid.UUID, raw string) error {
	if raw == "" {
		return nil
	}

	err := m.refreshRepo.Revoke(ctx, userID, HashToken(raw), m.now())
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, err)
	}
	return nil
}

// Revoke every active refresh token of the user
func (m *TokenManager) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := m.refreshRepo.RevokeAllForUser(ctx, userID, m.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, err)
	}
	return n, nil
}
