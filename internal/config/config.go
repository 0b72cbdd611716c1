package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Directory drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Directory     DirectoryConfig
	Credentials   CredentialsConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DirectoryConfig selects the public key directory backend
type DirectoryConfig struct {
	Driver   string
	CacheTTL time.Duration
}

// CredentialsConfig holds token and key rotation settings.
// The signing secret itself is never configurable.
type CredentialsConfig struct {
	AccessTokenTTL       time.Duration
	RotationInterval     time.Duration
	MaxPreviousKeys      int
	CleanupInterval      time.Duration
	ChallengeWindow      time.Duration
	RequireRegisteredKey bool
}

// ObservabilityConfig holds logging, metrics and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	MetricsEnabled bool
	ServiceName    string
	ServiceVersion string
}

// Load loads configuration from an optional .env file and environment variables
func Load() (*Config, error) {
	// Variables already set in the environment take precedence
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:    parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:     parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: parseDuration("SERVER_SHUTDOWN_TIMEOUT", "30s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "horizon"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "horizon"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Directory: DirectoryConfig{
			Driver:   getEnv("DIRECTORY_DRIVER", DriverMemory),
			CacheTTL: parseDuration("DIRECTORY_CACHE_TTL", "5m"),
		},
		Credentials: CredentialsConfig{
			AccessTokenTTL:       time.Duration(parseInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
			RotationInterval:     time.Duration(parseInt("KEY_ROTATION_INTERVAL_HOURS", 24)) * time.Hour,
			MaxPreviousKeys:      parseInt("MAX_PREVIOUS_KEYS", 3),
			CleanupInterval:      parseDuration("REVOCATION_CLEANUP_INTERVAL", "5m"),
			ChallengeWindow:      parseDuration("CHALLENGE_WINDOW", "300s"),
			RequireRegisteredKey: parseBool("REQUIRE_REGISTERED_KEY", true),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			MetricsEnabled: parseBool("METRICS_ENABLED", true),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "horizon"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	switch c.Directory.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.Password == "" {
			errs = append(errs, errors.New("DB_PASSWORD is required for the postgres directory"))
		}
	default:
		errs = append(errs, fmt.Errorf("DIRECTORY_DRIVER %q is not supported", c.Directory.Driver))
	}

	cred := c.Credentials
	if cred.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive"))
	}
	if cred.RotationInterval <= 0 {
		errs = append(errs, errors.New("KEY_ROTATION_INTERVAL_HOURS must be positive"))
	}
	if cred.MaxPreviousKeys < 0 {
		errs = append(errs, errors.New("MAX_PREVIOUS_KEYS must not be negative"))
	}
	if cred.CleanupInterval <= 0 {
		errs = append(errs, errors.New("REVOCATION_CLEANUP_INTERVAL must be positive"))
	}
	if cred.ChallengeWindow <= 0 {
		errs = append(errs, errors.New("CHALLENGE_WINDOW must be positive"))
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("RATELIMIT_RPS and RATELIMIT_BURST must be positive"))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
