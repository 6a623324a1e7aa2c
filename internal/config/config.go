package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	SLA        SLAConfig
	Tickets    TicketsConfig
	Escalation EscalationConfig
	Cache      CacheConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// SLAConfig holds the risk tier thresholds.
type SLAConfig struct {
	DueNowMinutes  int
	DueSoonMinutes int
}

// TicketsConfig bounds ticket input and write behavior.
type TicketsConfig struct {
	TitleMaxLength   int
	DetailsMaxLength int
	RequireLocator   bool
	MaxWriteRetries  int
}

// EscalationConfig controls the automatic priority bump sweep.
type EscalationConfig struct {
	Enabled        bool
	Schedule       string
	BatchSize      int
	LockTTLSeconds int
}

// CacheConfig controls the Redis read cache.
type CacheConfig struct {
	Enabled          bool
	TicketTTLSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	dueNow := getEnvAsInt("SLA_DUE_NOW_MINUTES", 5)
	dueSoon := getEnvAsInt("SLA_DUE_SOON_MINUTES", 30)
	if dueNow <= 0 || dueSoon < dueNow {
		return nil, fmt.Errorf("invalid SLA thresholds: due_now=%d due_soon=%d", dueNow, dueSoon)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "desk-ticket-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		SLA: SLAConfig{
			DueNowMinutes:  dueNow,
			DueSoonMinutes: dueSoon,
		},
		Tickets: TicketsConfig{
			TitleMaxLength:   getEnvAsInt("TICKETS_TITLE_MAX_LENGTH", 200),
			DetailsMaxLength: getEnvAsInt("TICKETS_DETAILS_MAX_LENGTH", 2000),
			RequireLocator:   getEnvAsBool("TICKETS_REQUIRE_LOCATOR", false),
			MaxWriteRetries:  getEnvAsInt("TICKETS_MAX_WRITE_RETRIES", 3),
		},
		Escalation: EscalationConfig{
			Enabled:        getEnvAsBool("ESCALATION_ENABLED", true),
			Schedule:       getEnv("ESCALATION_SCHEDULE", "@every 30s"),
			BatchSize:      getEnvAsInt("ESCALATION_BATCH_SIZE", 200),
			LockTTLSeconds: getEnvAsInt("ESCALATION_LOCK_TTL_SECONDS", 25),
		},
		Cache: CacheConfig{
			Enabled:          getEnvAsBool("CACHE_ENABLED", true),
			TicketTTLSeconds: getEnvAsInt("CACHE_TICKET_TTL_SECONDS", 5),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// DueNow returns the DUE_NOW threshold.
func (s SLAConfig) DueNow() time.Duration {
	return time.Duration(s.DueNowMinutes) * time.Minute
}

// DueSoon returns the DUE_SOON threshold.
func (s SLAConfig) DueSoon() time.Duration {
	return time.Duration(s.DueSoonMinutes) * time.Minute
}

// LockTTL returns how long a sweep holds the distributed lock.
func (e EscalationConfig) LockTTL() time.Duration {
	if e.LockTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(e.LockTTLSeconds) * time.Second
}

// TicketTTL returns the cache lifetime of a ticket read.
func (c CacheConfig) TicketTTL() time.Duration {
	if !c.Enabled || c.TicketTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TicketTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
