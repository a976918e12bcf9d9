package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the loader at a file that does not exist and a clean
// working directory, so a developer's bookclub.yml cannot leak in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(EnvFile, filepath.Join(dir, "missing.yml"))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, DriverSQLite, cfg.Images.Driver)
	assert.Equal(t, int64(5<<20), cfg.Images.MaxBytes)
	assert.Equal(t, 40_000_000, cfg.Images.MaxPixels)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "https://openlibrary.org", cfg.OpenLibrary.BaseURL)
	assert.False(t, cfg.Auth.GitHub.Enabled())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bookclub.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  allowed_origins: ["https://books.example.com"]
storage:
  driver: redis
  redis_addr: cache:6379
openlibrary:
  timeout: 3s
`), 0o644))
	t.Setenv(EnvFile, path)
	t.Setenv("BOOKCLUB_SERVER_PORT", "9191")
	t.Setenv("BOOKCLUB_AUTH_GITHUB_CLIENT_ID", "id")
	t.Setenv("BOOKCLUB_AUTH_GITHUB_CLIENT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port, "env wins over file")
	assert.Equal(t, []string{"https://books.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, DriverRedis, cfg.Storage.Driver)
	assert.Equal(t, "cache:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, 3*time.Second, cfg.OpenLibrary.Timeout)
	assert.True(t, cfg.Auth.GitHub.Enabled())
}

func TestLoad_BadFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "broken.yml")
	require.NoError(t, os.WriteFile(path, []byte("server: [port"), 0o644))
	t.Setenv(EnvFile, path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)
	base, err := Load()
	require.NoError(t, err)
	base.Auth.JWTSecret = "0123456789abcdef0123"
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown storage driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }},
		{"unknown image driver", func(c *Config) { c.Images.Driver = "ftp" }},
		{"zero image size", func(c *Config) { c.Images.MaxBytes = 0 }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
