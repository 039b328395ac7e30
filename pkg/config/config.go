package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Auth configuration
	Auth AuthConfig `yaml:"auth"`

	// Storage configuration
	Storage storage.Config `yaml:"-"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	// Rate limiting on the public decision endpoint
	RateLimitEnabled bool `yaml:"rate_limit_enabled"`
	RateLimitPerMin  int  `yaml:"rate_limit_per_min"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	// OIDC bearer-token verification
	OIDCEnabled   bool   `yaml:"oidc_enabled"`
	OIDCIssuerURL string `yaml:"oidc_issuer_url"`
	OIDCClientID  string `yaml:"oidc_client_id"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging. LogLevelName is the YAML-facing form; LogLevel is parsed
	// from it after loading.
	LogLevel     observability.LogLevel `yaml:"-"`
	LogLevelName string                 `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// LoadConfig loads configuration from environment variables, optionally
// overlaid with a YAML file named in GATEHOUSE_CONFIG_FILE. Environment
// variables win over file values.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        defaultServerConfig(),
		Auth:          defaultAuthConfig(),
		Storage:       storage.DefaultConfig(),
		Observability: defaultObservabilityConfig(),
	}

	if path := os.Getenv("GATEHOUSE_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		cfg.Observability.LogLevel = parseLogLevel(cfg.Observability.LogLevelName, cfg.Observability.LogLevel)
	}

	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:             "0.0.0.0",
		Port:             "8080",
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     15 * time.Second,
		IdleTimeout:      60 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		HealthPort:       "9090",
		RateLimitEnabled: true,
		RateLimitPerMin:  300,
	}
}

func defaultAuthConfig() AuthConfig {
	return AuthConfig{}
}

func defaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.InfoLevel,
		MetricsEnabled:     true,
		OTelEndpoint:       "localhost:4317",
		OTelServiceName:    "gatehouse",
		OTelServiceVersion: "1.0.0",
		OTelInsecure:       true,
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadEnv() {
	// Server
	c.Server.Host = getEnv("GATEHOUSE_HOST", c.Server.Host)
	c.Server.Port = getEnv("GATEHOUSE_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("GATEHOUSE_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.HealthPort = getEnv("GATEHOUSE_HEALTH_PORT", c.Server.HealthPort)
	c.Server.RateLimitEnabled = getEnvBool("GATEHOUSE_RATE_LIMIT_ENABLED", c.Server.RateLimitEnabled)
	c.Server.RateLimitPerMin = getEnvInt("GATEHOUSE_RATE_LIMIT_PER_MIN", c.Server.RateLimitPerMin)

	// Auth
	c.Auth.OIDCEnabled = getEnvBool("GATEHOUSE_OIDC_ENABLED", c.Auth.OIDCEnabled)
	c.Auth.OIDCIssuerURL = getEnv("GATEHOUSE_OIDC_ISSUER_URL", c.Auth.OIDCIssuerURL)
	c.Auth.OIDCClientID = getEnv("GATEHOUSE_OIDC_CLIENT_ID", c.Auth.OIDCClientID)

	// PostgreSQL
	c.Storage.PostgresURL = getEnv("GATEHOUSE_POSTGRES_URL", c.Storage.PostgresURL)
	if replicaURLs := os.Getenv("GATEHOUSE_POSTGRES_REPLICA_URLS"); replicaURLs != "" {
		c.Storage.PostgresReplicaURLs = splitList(replicaURLs)
	}
	c.Storage.MaxConns = getEnvInt("GATEHOUSE_POSTGRES_MAX_CONNS", c.Storage.MaxConns)
	c.Storage.MinConns = getEnvInt("GATEHOUSE_POSTGRES_MIN_CONNS", c.Storage.MinConns)
	c.Storage.ConnTimeout = getEnvDuration("GATEHOUSE_POSTGRES_TIMEOUT", c.Storage.ConnTimeout)

	// Redis
	c.Storage.RedisURL = getEnv("GATEHOUSE_REDIS_URL", c.Storage.RedisURL)
	c.Storage.RedisPassword = getEnv("GATEHOUSE_REDIS_PASSWORD", c.Storage.RedisPassword)
	if redisDB := getEnvInt("GATEHOUSE_REDIS_DB", -1); redisDB >= 0 {
		c.Storage.RedisDB = redisDB
	}
	c.Storage.RedisMaxRetries = getEnvInt("GATEHOUSE_REDIS_MAX_RETRIES", c.Storage.RedisMaxRetries)
	c.Storage.RedisPoolSize = getEnvInt("GATEHOUSE_REDIS_POOL_SIZE", c.Storage.RedisPoolSize)

	// Role-name cache
	c.Storage.CacheEnabled = getEnvBool("GATEHOUSE_CACHE_ENABLED", c.Storage.CacheEnabled)
	c.Storage.CacheTTL = getEnvDuration("GATEHOUSE_CACHE_TTL", c.Storage.CacheTTL)
	c.Storage.L1CacheSize = getEnvInt("GATEHOUSE_L1_CACHE_SIZE", c.Storage.L1CacheSize)
	c.Storage.L1CacheTTL = getEnvDuration("GATEHOUSE_L1_CACHE_TTL", c.Storage.L1CacheTTL)

	// Observability
	c.Observability.LogLevel = parseLogLevel(os.Getenv("GATEHOUSE_LOG_LEVEL"), c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("GATEHOUSE_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("GATEHOUSE_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("GATEHOUSE_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("GATEHOUSE_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("GATEHOUSE_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("GATEHOUSE_OTEL_INSECURE", c.Observability.OTelInsecure)
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

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.CacheEnabled && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required when the role cache is enabled")
	}

	if c.Auth.OIDCEnabled {
		if c.Auth.OIDCIssuerURL == "" {
			return fmt.Errorf("OIDC issuer URL is required when OIDC is enabled")
		}
		if c.Auth.OIDCClientID == "" {
			return fmt.Errorf("OIDC client ID is required when OIDC is enabled")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string, falling back to the given
// level when unset or unrecognized
func parseLogLevel(level string, fallback observability.LogLevel) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	}
	return fallback
}

func splitList(raw string) []string {
	var result []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
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
