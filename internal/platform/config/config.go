package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration. Built once in main from the
// environment so the rest of the application stays environment-agnostic.
type Config struct {
	Addr      string
	LogFormat string
	LogLevel  string

	// DatabaseURL selects the durable audit store. Empty means the in-memory
	// store (development and tests).
	DatabaseURL string

	JWTSigningKey string
	SessionTTL    time.Duration

	// AdminUsername/AdminPassword seed the in-memory user store. An empty
	// password disables the seed account.
	AdminUsername string
	AdminPassword string

	Redis    RedisConfig
	Security SecurityConfig
}

// RedisConfig configures the optional Redis-backed security tracker.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SecurityConfig holds the security monitor thresholds.
type SecurityConfig struct {
	// MaxFailedLogins failed authentications within FailedLoginWindow from one
	// IP trigger a brute-force event and block the IP.
	MaxFailedLogins   int
	FailedLoginWindow time.Duration

	// MaxRequestsPerMinute is the per-IP rolling 60s ceiling. Exceeding it is
	// logged as suspicious activity but not blocked.
	MaxRequestsPerMinute int

	// SlowRequestThreshold marks requests slower than this as suspicious.
	SlowRequestThreshold time.Duration

	// BlockDuration is how long a brute-forcing IP stays blocked.
	// Zero means permanent (process lifetime for the in-memory tracker).
	BlockDuration time.Duration

	// LargeQueryThreshold is the record count above which data access is
	// logged as a compliance event.
	LargeQueryThreshold int

	// OffHoursStart/OffHoursEnd bound the normal working window in local
	// time; actions outside it are flagged as suspicious.
	OffHoursStart int // hour, inclusive lower bound of the normal window
	OffHoursEnd   int // hour, inclusive upper bound of the normal window
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:          envString("PANELMERGE_ADDR", ":8080"),
		LogFormat:     envString("PANELMERGE_LOG_FORMAT", "text"),
		LogLevel:      envString("PANELMERGE_LOG_LEVEL", "info"),
		DatabaseURL:   os.Getenv("PANELMERGE_DATABASE_URL"),
		JWTSigningKey: envString("PANELMERGE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		SessionTTL:    envDuration("PANELMERGE_SESSION_TTL", 8*time.Hour),
		AdminUsername: envString("PANELMERGE_ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("PANELMERGE_ADMIN_PASSWORD"),
		Redis: RedisConfig{
			URL:          os.Getenv("PANELMERGE_REDIS_URL"),
			PoolSize:     envInt("PANELMERGE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("PANELMERGE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("PANELMERGE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("PANELMERGE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("PANELMERGE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Security: DefaultSecurityConfig(),
	}
}

// DefaultSecurityConfig returns the monitor thresholds, overridable from the
// environment.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxFailedLogins:      envInt("PANELMERGE_MAX_FAILED_LOGINS", 5),
		FailedLoginWindow:    envDuration("PANELMERGE_FAILED_LOGIN_WINDOW", 300*time.Second),
		MaxRequestsPerMinute: envInt("PANELMERGE_MAX_REQUESTS_PER_MINUTE", 100),
		SlowRequestThreshold: envDuration("PANELMERGE_SLOW_REQUEST_THRESHOLD", 10*time.Second),
		BlockDuration:        envDuration("PANELMERGE_BLOCK_DURATION", time.Hour),
		LargeQueryThreshold:  envInt("PANELMERGE_LARGE_QUERY_THRESHOLD", 1000),
		OffHoursStart:        envInt("PANELMERGE_OFF_HOURS_START", 6),
		OffHoursEnd:          envInt("PANELMERGE_OFF_HOURS_END", 22),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
