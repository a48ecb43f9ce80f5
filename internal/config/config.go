package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"vehicle-auction/internal/notifier"
	"vehicle-auction/internal/push"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// devJWTSecret is only accepted when APP_ENV is development
const devJWTSecret = "dev-insecure-secret"

// Config holds every setting read from the environment
type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	DatabaseDSN   string
	DBAutoMigrate bool

	JWTSecret       string
	JWTAccessTTL    time.Duration
	JWTRefreshTTL   time.Duration
	BidStrict       bool
	BidQuota        int
	LockAfterBid    bool
	PushMode        notifier.Mode
	PushEndpoint    string
	PushTimeout     time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	QueueConcurrent int
}

// UseMemoryStore reports whether no database is configured
func (c *Config) UseMemoryStore() bool {
	return c.DatabaseDSN == ""
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// Load reads an optional .env file, then the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults and validating values
func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}

	cfg := &Config{
		Port:            r.str("PORT", "8080"),
		AppEnv:          r.str("APP_ENV", EnvDevelopment),
		LogLevel:        r.str("LOG_LEVEL", "info"),
		DatabaseDSN:     r.str("DATABASE_DSN", ""),
		DBAutoMigrate:   r.boolean("DB_AUTO_MIGRATE", true),
		JWTSecret:       r.str("JWT_SECRET_KEY", ""),
		JWTAccessTTL:    r.duration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL:   r.duration("JWT_REFRESH_TTL", 7*24*time.Hour),
		BidStrict:       r.boolean("BID_STRICT_ORDERING", true),
		BidQuota:        r.integer("BID_QUOTA", 2),
		LockAfterBid:    r.boolean("AUCTION_LOCK_AFTER_FIRST_BID", false),
		PushMode:        notifier.Mode(strings.ToLower(r.str("PUSH_DELIVERY_MODE", string(notifier.ModeAsync)))),
		PushEndpoint:    r.str("PUSH_ENDPOINT", push.DefaultEndpoint),
		PushTimeout:     r.duration("PUSH_TIMEOUT", push.DefaultTimeout),
		RedisAddr:       r.str("REDIS_ADDR", ""),
		RedisPassword:   r.str("REDIS_PASSWORD", ""),
		RedisDB:         r.integer("REDIS_DB", 0),
		QueueConcurrent: r.integer("QUEUE_CONCURRENCY", 10),
	}
	if len(r.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(r.errs...))
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AppEnv != EnvDevelopment && c.AppEnv != EnvProduction && c.AppEnv != "test" {
		return fmt.Errorf("APP_ENV must be development, test or production, got %q", c.AppEnv)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	if c.JWTSecret == "" {
		if c.AppEnv != EnvDevelopment {
			return errors.New("environment variable JWT_SECRET_KEY must be set")
		}
		c.JWTSecret = devJWTSecret
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return errors.New("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}
	if c.BidQuota <= 0 {
		return fmt.Errorf("BID_QUOTA must be positive, got %d", c.BidQuota)
	}
	if !c.PushMode.Valid() {
		return fmt.Errorf("PUSH_DELIVERY_MODE must be one of async, inline, queue, disabled, got %q", c.PushMode)
	}
	if c.PushMode == notifier.ModeQueue && c.RedisAddr == "" {
		return errors.New("environment variable REDIS_ADDR must be set when PUSH_DELIVERY_MODE is queue")
	}
	if c.PushTimeout <= 0 {
		return errors.New("PUSH_TIMEOUT must be positive")
	}
	if c.QueueConcurrent <= 0 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be positive, got %d", c.QueueConcurrent)
	}
	return nil
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) boolean(key string, def bool) bool {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (r *reader) integer(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}
