// Package config loads server and CLI settings.
//
// SOURCES, lowest to highest precedence:
//  1. the defaults set in Load
//  2. an optional YAML file: $BOOKCLUB_CONFIG, else ./bookclub.yml
//  3. environment variables: BOOKCLUB_ plus the key with dots as underscores,
//     e.g. storage.sqlite_path → BOOKCLUB_STORAGE_SQLITE_PATH
//
// Every key needs a default (even an empty one) for the environment
// override to reach Unmarshal; viper only binds env vars for keys it knows.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix   = "BOOKCLUB"
	EnvFile     = "BOOKCLUB_CONFIG"
	DefaultFile = "bookclub.yml"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

// minSecretLength matches what auth.NewTokenService accepts.
const minSecretLength = 16

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Images      ImagesConfig      `mapstructure:"images"`
	Auth        AuthConfig        `mapstructure:"auth"`
	OpenLibrary OpenLibraryConfig `mapstructure:"openlibrary"`
	TextGen     TextGenConfig     `mapstructure:"textgen"`
	Seed        SeedConfig        `mapstructure:"seed"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SecureCookies  bool     `mapstructure:"secure_cookies"`
	// ShutdownTimeout bounds how long in-flight requests get on SIGTERM.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
}

type ImagesConfig struct {
	Driver      string   `mapstructure:"driver"`
	MaxBytes    int64    `mapstructure:"max_bytes"`
	MaxDim      int      `mapstructure:"max_dim"`
	MaxPixels   int      `mapstructure:"max_pixels"`
	JPEGQuality int      `mapstructure:"jpeg_quality"`
	S3          S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	GitHub    GitHubConfig  `mapstructure:"github"`
}

type GitHubConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	CallbackURL  string `mapstructure:"callback_url"`
}

// Enabled is true when both client credentials are set.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type OpenLibraryConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

type TextGenConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SeedConfig struct {
	// File is an optional YAML catalog merged into the books collection at startup.
	File string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.sqlite_path", "data/bookclub.db")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("images.driver", DriverSQLite)
	v.SetDefault("images.max_bytes", 5<<20)
	v.SetDefault("images.max_dim", 1024)
	v.SetDefault("images.max_pixels", 40_000_000)
	v.SetDefault("images.jpeg_quality", 85)
	v.SetDefault("images.s3.endpoint", "")
	v.SetDefault("images.s3.region", "")
	v.SetDefault("images.s3.bucket", "bookclub-images")
	v.SetDefault("images.s3.access_key", "")
	v.SetDefault("images.s3.secret_key", "")
	v.SetDefault("images.s3.use_ssl", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.github.client_id", "")
	v.SetDefault("auth.github.client_secret", "")
	v.SetDefault("auth.github.callback_url", "http://localhost:8080/auth/github/callback")

	v.SetDefault("openlibrary.base_url", "https://openlibrary.org")
	v.SetDefault("openlibrary.timeout", 10*time.Second)
	v.SetDefault("openlibrary.requests_per_second", 2.0)
	v.SetDefault("openlibrary.cache_ttl", 15*time.Minute)

	v.SetDefault("textgen.base_url", "https://api.openai.com/v1")
	v.SetDefault("textgen.api_key", "")
	v.SetDefault("textgen.model", "gpt-4o-mini")
	v.SetDefault("textgen.timeout", 15*time.Second)

	v.SetDefault("seed.file", "")
}

// Load reads the configuration. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := os.Getenv(EnvFile)
	if path == "" {
		path = DefaultFile
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// Validate checks what the server needs before it opens any connection.
// The CLI only needs storage settings and skips this.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if len(c.Auth.JWTSecret) < minSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d characters (set %s_AUTH_JWT_SECRET)", minSecretLength, EnvPrefix)
	}

	switch c.Storage.Driver {
	case DriverSQLite, DriverMemory:
	case DriverRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for the redis driver")
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Images.Driver {
	case DriverSQLite, DriverMemory, DriverS3:
	default:
		return fmt.Errorf("unknown images.driver %q", c.Images.Driver)
	}
	if c.Images.MaxBytes <= 0 {
		return errors.New("images.max_bytes must be positive")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}
