package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Auth.JWTSecret = "secret"
	return cfg
}

func TestConfig_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.NotEmpty(t, cfg.Database.Path)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 6*time.Hour, cfg.Media.TokenTTL)
	assert.False(t, cfg.IsProduction())

	assert.Error(t, cfg.Validate(), "defaults carry no jwt secret")
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = -1 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"empty sqlite path", func(c *Config) { c.Database.Path = "" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"zero db timeout", func(c *Config) { c.Database.Timeout = 0 }},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"negative rate limit", func(c *Config) { c.WebSocket.PublishRateLimit = -1 }},
		{"zero media ttl", func(c *Config) { c.Media.TokenTTL = 0 }},
		{"missing section", func(c *Config) { c.WebSocket = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := validConfig()
	cfg.Database.Driver = "postgres"
	cfg.Database.DSN = "postgres://localhost/liveclass"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("LIVECLASS_AUTH_JWT_SECRET", "from-env")
	t.Setenv("LIVECLASS_HTTP_PORT", "9090")
	t.Setenv("LIVECLASS_WEBSOCKET_PING_INTERVAL", "15s")
	t.Setenv("LIVECLASS_MEDIA_API_KEY", "key")
	t.Setenv("LIVECLASS_ENV", "production")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 15*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, "key", cfg.Media.APIKey)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 60*time.Second, cfg.WebSocket.ReadTimeout, "untouched keys keep defaults")
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LIVECLASS_AUTH_JWT_SECRET=dotenv-secret\nLIVECLASS_DATABASE_PATH="+filepath.Join(dir, "x.db")+"\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("LIVECLASS_AUTH_JWT_SECRET")
		os.Unsetenv("LIVECLASS_DATABASE_PATH")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, filepath.Join(dir, "x.db"), cfg.Database.Path)
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	t.Setenv("LIVECLASS_AUTH_JWT_SECRET", "s")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoad_ConfigFilePrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "liveclass.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
http:
  port: 7000
  host: 127.0.0.1
websocket:
  buffer_size: 256
auth:
  jwt_secret: from-file
`), 0o600))
	t.Setenv(ConfigFileEnv, file)
	t.Setenv("LIVECLASS_HTTP_PORT", "7100")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.HTTP.Port, "env beats file")
	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host, "file beats defaults")
	assert.Equal(t, 256, cfg.WebSocket.BufferSize)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	t.Setenv("LIVECLASS_AUTH_JWT_SECRET", "s")
	t.Setenv("LIVECLASS_DATABASE_DRIVER", "mysql")

	_, err := Load("")
	assert.Error(t, err)
}
