package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GATEHOUSE_POSTGRES_URL", "postgres://localhost/gatehouse_test")
	t.Setenv("GATEHOUSE_REDIS_URL", "redis://localhost:6379")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.True(t, cfg.Server.RateLimitEnabled)
	assert.Equal(t, 300, cfg.Server.RateLimitPerMin)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Auth.OIDCEnabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("GATEHOUSE_POSTGRES_URL", "postgres://db.internal/gatehouse")
	t.Setenv("GATEHOUSE_POSTGRES_REPLICA_URLS", "postgres://r1/gh, postgres://r2/gh")
	t.Setenv("GATEHOUSE_REDIS_URL", "redis://cache.internal:6379")
	t.Setenv("GATEHOUSE_PORT", "8888")
	t.Setenv("GATEHOUSE_READ_TIMEOUT", "5s")
	t.Setenv("GATEHOUSE_LOG_LEVEL", "debug")
	t.Setenv("GATEHOUSE_RATE_LIMIT_ENABLED", "false")
	t.Setenv("GATEHOUSE_CACHE_TTL", "90s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8888", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"postgres://r1/gh", "postgres://r2/gh"}, cfg.Storage.PostgresReplicaURLs)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Server.RateLimitEnabled)
	assert.Equal(t, 90*time.Second, cfg.Storage.CacheTTL)
}

func TestLoadConfigYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatehouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "8181"
  rate_limit_per_min: 60
observability:
  log_level: warn
auth:
  oidc_enabled: true
  oidc_issuer_url: https://ims.example.com
  oidc_client_id: gatehouse
`), 0o600))

	t.Setenv("GATEHOUSE_CONFIG_FILE", path)
	t.Setenv("GATEHOUSE_POSTGRES_URL", "postgres://localhost/gatehouse_test")
	t.Setenv("GATEHOUSE_REDIS_URL", "redis://localhost:6379")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Equal(t, 60, cfg.Server.RateLimitPerMin)
	assert.Equal(t, observability.WarnLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Auth.OIDCEnabled)
	assert.Equal(t, "https://ims.example.com", cfg.Auth.OIDCIssuerURL)
}

func TestLoadConfigEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatehouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"8181\"\n"), 0o600))

	t.Setenv("GATEHOUSE_CONFIG_FILE", path)
	t.Setenv("GATEHOUSE_PORT", "8282")
	t.Setenv("GATEHOUSE_POSTGRES_URL", "postgres://localhost/gatehouse_test")
	t.Setenv("GATEHOUSE_REDIS_URL", "redis://localhost:6379")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8282", cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{
			Server:        defaultServerConfig(),
			Auth:          defaultAuthConfig(),
			Observability: defaultObservabilityConfig(),
		}
		cfg.Storage.PostgresURL = "postgres://localhost/gatehouse"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing postgres URL",
			mutate:  func(c *Config) { c.Storage.PostgresURL = "" },
			wantErr: "postgres URL",
		},
		{
			name: "ports collide",
			mutate: func(c *Config) {
				c.Server.Port = "9090"
				c.Server.HealthPort = "9090"
			},
			wantErr: "must be different",
		},
		{
			name: "cache without redis",
			mutate: func(c *Config) {
				c.Storage.CacheEnabled = true
				c.Storage.RedisURL = ""
			},
			wantErr: "redis URL is required",
		},
		{
			name: "OIDC without issuer",
			mutate: func(c *Config) {
				c.Auth.OIDCEnabled = true
				c.Auth.OIDCClientID = "gatehouse"
			},
			wantErr: "OIDC issuer URL",
		},
		{
			name: "OTel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = ""
			},
			wantErr: "OpenTelemetry endpoint",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, parseLogLevel("debug", observability.InfoLevel))
	assert.Equal(t, observability.WarnLevel, parseLogLevel("WARNING", observability.InfoLevel))
	assert.Equal(t, observability.ErrorLevel, parseLogLevel("error", observability.InfoLevel))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("", observability.InfoLevel))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("verbose", observability.InfoLevel))
}
