package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/schoolauth/internal/logger"
)

const (
	HasherArgon2id = "argon2id"
	HasherBcrypt   = "bcrypt"
)

const (
	defaultListenAddr        = "localhost:8000"
	defaultLoggingLevel      = logger.LevelInfo
	defaultEnvironment       = logger.EnvProd
	defaultAccessTTL         = 15 * time.Minute
	defaultRefreshTTL        = 7 * 24 * time.Hour
	defaultResetTTL          = time.Hour
	defaultPasswordMinLength = 8
	defaultPasswordHasher    = HasherArgon2id
	defaultCookieSecure      = true
	defaultLoginMaxAttempts  = 5
	defaultLoginWindow       = 15 * time.Minute
	defaultSweepInterval     = 10 * time.Minute
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis to keep login attempts and publish reset tokens
	// Login throttling is disabled and reset tokens are not delivered if empty
	RedisURL string

	// Secret key
	// Access tokens are signed with HMAC, so this key is used for that purpose
	SecretKey string

	// Environment: dev or prod
	Environment string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration

	PasswordMinLength int
	PasswordHasher    string

	// Send refresh cookie over https only
	CookieSecure bool

	// Failed logins allowed per window for an email
	LoginMaxAttempts int
	LoginWindow      time.Duration

	// Expired tokens cleanup interval
	SweepInterval time.Duration

	// Super admin created at startup if not exists
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:          defaultLoggingLevel,
		ListenAddr:        defaultListenAddr,
		Environment:       defaultEnvironment,
		AccessTTL:         defaultAccessTTL,
		RefreshTTL:        defaultRefreshTTL,
		ResetTTL:          defaultResetTTL,
		PasswordMinLength: defaultPasswordMinLength,
		PasswordHasher:    defaultPasswordHasher,
		CookieSecure:      defaultCookieSecure,
		LoginMaxAttempts:  defaultLoginMaxAttempts,
		LoginWindow:       defaultLoginWindow,
		SweepInterval:     defaultSweepInterval,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			*o = b
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":              setString(&c.ListenAddr),
		"DATABASE_URI":             setString(&c.DatabaseDSN),
		"REDIS_URL":                setString(&c.RedisURL),
		"SECRET_KEY":               setString(&c.SecretKey),
		"LOG_LEVEL":                setString(&c.LogLevel),
		"ENVIRONMENT":              setString(&c.Environment),
		"ACCESS_TTL":               setDuration(&c.AccessTTL),
		"REFRESH_TTL":              setDuration(&c.RefreshTTL),
		"RESET_TTL":                setDuration(&c.ResetTTL),
		"PASSWORD_MIN_LENGTH":      setInt(&c.PasswordMinLength),
		"PASSWORD_HASHER":          setString(&c.PasswordHasher),
		"COOKIE_SECURE":            setBool(&c.CookieSecure),
		"LOGIN_MAX_ATTEMPTS":       setInt(&c.LoginMaxAttempts),
		"LOGIN_WINDOW":             setDuration(&c.LoginWindow),
		"SWEEP_INTERVAL":           setDuration(&c.SweepInterval),
		"BOOTSTRAP_ADMIN_EMAIL":    setString(&c.BootstrapAdminEmail),
		"BOOTSTRAP_ADMIN_PASSWORD": setString(&c.BootstrapAdminPassword),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("schoolauth", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis url (redis://...), optional")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.DurationVar(&c.ResetTTL, "reset-ttl", c.ResetTTL, "Password reset token lifetime")
	fs.IntVar(&c.PasswordMinLength, "password-min-length", c.PasswordMinLength, "Minimal password length")
	fs.StringVar(&c.PasswordHasher, "password-hasher", c.PasswordHasher, "Password hasher (argon2id, bcrypt)")
	fs.BoolVar(&c.CookieSecure, "cookie-secure", c.CookieSecure, "Send refresh cookie over https only")
	fs.IntVar(&c.LoginMaxAttempts, "login-max-attempts", c.LoginMaxAttempts, "Failed logins allowed per window")
	fs.DurationVar(&c.LoginWindow, "login-window", c.LoginWindow, "Failed logins window")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "Expired tokens cleanup interval")
	fs.StringVar(&c.BootstrapAdminEmail, "bootstrap-admin-email", c.BootstrapAdminEmail, "Super admin email created at startup")
	fs.StringVar(&c.BootstrapAdminPassword, "bootstrap-admin-password", c.BootstrapAdminPassword, "Super admin password")

	return fs.Parse(args)
}

// Check options that have no usable default
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.PasswordHasher != HasherArgon2id && c.PasswordHasher != HasherBcrypt {
		errs = append(errs, fmt.Errorf("unknown password hasher %q", c.PasswordHasher))
	}
	if c.BootstrapAdminEmail != "" && c.BootstrapAdminPassword == "" {
		errs = append(errs, errors.New("bootstrap admin password is required with bootstrap admin email"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ResetTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}

	return errors.Join(errs...)
}
