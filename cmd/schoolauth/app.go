package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/schoolauth/internal/db"
	"github.com/nkiryanov/schoolauth/internal/handlers"
	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/metrics"
	"github.com/nkiryanov/schoolauth/internal/models"
	"github.com/nkiryanov/schoolauth/internal/notify"
	"github.com/nkiryanov/schoolauth/internal/repository/postgres"
	"github.com/nkiryanov/schoolauth/internal/service/auth"
	"github.com/nkiryanov/schoolauth/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/schoolauth/internal/service/ratelimit"
	"github.com/nkiryanov/schoolauth/internal/service/sweeper"
	"github.com/nkiryanov/schoolauth/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	sweeper *sweeper.Sweeper
	pool    *pgxpool.Pool
	redis   *redis.Client // nil if not configured
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app := &ServerApp{ListenAddr: c.ListenAddr, logger: logger, pool: pool}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	if c.RedisURL != "" {
		app.redis, err = connectRedis(ctx, c.RedisURL)
		if err != nil {
			return nil, err
		}
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)
	m := metrics.New()

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  c.SecretKey,
		AccessTTL:  c.AccessTTL,
		RefreshTTL: c.RefreshTTL,
	}, storage.Refresh())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	hasher, err := newHasher(c.PasswordHasher)
	if err != nil {
		return nil, err
	}
	policy := auth.PasswordPolicy{MinLength: c.PasswordMinLength}

	var limiter ratelimit.Limiter = ratelimit.Noop{}
	var notifier notify.Notifier = notify.LogNotifier{Logger: logger}
	if app.redis != nil {
		limiter = ratelimit.NewRedisLimiter(app.redis, ratelimit.Config{
			MaxAttempts: int64(c.LoginMaxAttempts),
			Window:      c.LoginWindow,
		})
		notifier = notify.NewRedisStream(app.redis, notify.DefaultResetStream)
	} else {
		logger.Warn("redis is not configured: login throttling is disabled, reset tokens are not delivered")
	}

	authService, err := auth.NewService(auth.Config{
		Hasher:   hasher,
		Policy:   policy,
		ResetTTL: c.ResetTTL,
		Limiter:  limiter,
		Notifier: notifier,
		Metrics:  m,
		Logger:   logger,
	}, tokenManager, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	userService := user.NewService(hasher, policy, storage, logger)
	if c.BootstrapAdminEmail != "" {
		if err := bootstrapAdmin(ctx, userService, c, logger); err != nil {
			return nil, err
		}
	}

	app.sweeper = sweeper.New(sweeper.Config{Interval: c.SweepInterval}, storage, m, logger)

	app.Handler = handlers.NewRouter(
		authService,
		userService,
		handlers.CookieConfig{Secure: c.CookieSecure},
		pool,
		m,
		logger,
	)

	return app, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url. Err: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis is not reachable. Err: %w", err)
	}

	return client, nil
}

func newHasher(name string) (auth.PasswordHasher, error) {
	switch name {
	case HasherBcrypt:
		return auth.BcryptHasher{}, nil
	case HasherArgon2id, "":
		return auth.NewArgon2Hasher(auth.DefaultArgon2Params)
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}

// Create super admin if there is no user with the email
// Existing user is left untouched, password included
func bootstrapAdmin(ctx context.Context, userService *user.UserService, c *Config, l logger.Logger) error {
	admin, created, err := userService.EnsureUser(ctx, user.NewUser{
		Email:    c.BootstrapAdminEmail,
		Password: c.BootstrapAdminPassword,
		Role:     models.RoleSuperAdmin,
		Approved: true,
	})
	if err != nil {
		return fmt.Errorf("error while creating bootstrap admin. Err: %w", err)
	}

	if created {
		l.Info("bootstrap admin created", "user_id", admin.ID)
	} else if admin.Role != models.RoleSuperAdmin {
		l.Warn("bootstrap admin email belongs to a user with another role", "user_id", admin.ID, "role", admin.Role)
	}

	return nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	sweeperDone := s.sweeper.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-sweeperDone

	return err
}

func (s *ServerApp) close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	s.pool.Close()
}
