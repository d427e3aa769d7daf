package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/canvass-io/canvass/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Redis-backed distributed token store
	Redis RedisConfig

	// Survey database
	Database DatabaseConfig

	// Identity provider sign-in
	OIDC OIDCConfig

	// Data protection
	Protection ProtectionConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// RedisConfig holds the distributed cache connection settings
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int

	// TokenTTL bounds how long a persisted token blob may outlive its
	// last write; zero disables store-side expiry.
	TokenTTL time.Duration
}

// DatabaseConfig holds the survey store connection settings
type DatabaseConfig struct {
	PostgresURL string
}

// OIDCConfig holds identity-provider settings
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// APIResource identifies the downstream survey API for which access
	// tokens are acquired and cached.
	APIResource string

	PostLogoutRedirectURL string
}

// ProtectionConfig holds the encryption-at-rest settings
type ProtectionConfig struct {
	// Secret is the master key material; purpose-specific keys are
	// derived from it.
	Secret []byte

	SessionTTL time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	secret, err := loadProtectionSecret()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("CANVASS_HOST", "0.0.0.0"),
			Port:            getEnv("CANVASS_PORT", "8080"),
			ReadTimeout:     getEnvDuration("CANVASS_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("CANVASS_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("CANVASS_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("CANVASS_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("CANVASS_HEALTH_PORT", "9090"),
		},
		Redis: RedisConfig{
			URL:        getEnv("CANVASS_REDIS_URL", "redis://localhost:6379"),
			Password:   getEnv("CANVASS_REDIS_PASSWORD", ""),
			DB:         getEnvInt("CANVASS_REDIS_DB", 0),
			MaxRetries: getEnvInt("CANVASS_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("CANVASS_REDIS_POOL_SIZE", 10),
			TokenTTL:   getEnvDuration("CANVASS_TOKEN_TTL", 24*time.Hour),
		},
		Database: DatabaseConfig{
			PostgresURL: getEnv("CANVASS_POSTGRES_URL", ""),
		},
		OIDC: OIDCConfig{
			IssuerURL:             getEnv("CANVASS_OIDC_ISSUER", ""),
			ClientID:              getEnv("CANVASS_OIDC_CLIENT_ID", ""),
			ClientSecret:          getEnv("CANVASS_OIDC_CLIENT_SECRET", ""),
			RedirectURL:           getEnv("CANVASS_OIDC_REDIRECT_URL", ""),
			Scopes:                getEnvList("CANVASS_OIDC_SCOPES", []string{"openid", "profile", "email", "offline_access"}),
			APIResource:           getEnv("CANVASS_API_RESOURCE", ""),
			PostLogoutRedirectURL: getEnv("CANVASS_POST_LOGOUT_REDIRECT_URL", "/"),
		},
		Protection: ProtectionConfig{
			Secret:     secret,
			SessionTTL: getEnvDuration("CANVASS_SESSION_TTL", time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("CANVASS_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("CANVASS_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadProtectionSecret() ([]byte, error) {
	raw := os.Getenv("CANVASS_PROTECTION_SECRET")
	if raw == "" {
		return nil, nil
	}
	secret, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("CANVASS_PROTECTION_SECRET must be base64: %w", err)
	}
	return secret, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if len(c.Protection.Secret) < 32 {
		return fmt.Errorf("protection secret of at least 32 bytes is required")
	}

	if c.OIDC.IssuerURL == "" {
		return fmt.Errorf("OIDC issuer URL is required")
	}
	if c.OIDC.ClientID == "" {
		return fmt.Errorf("OIDC client id is required")
	}
	if c.OIDC.ClientSecret == "" {
		return fmt.Errorf("OIDC client secret is required")
	}
	if c.OIDC.RedirectURL == "" {
		return fmt.Errorf("OIDC redirect URL is required")
	}
	hasOpenID := false
	for _, scope := range c.OIDC.Scopes {
		if scope == "openid" {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("'openid' scope is required")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
