package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the bulk study service.
type Config struct {
	Server   ServerConfig
	API      APIConfig
	Poller   PollerConfig
	JobStore JobStoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Notify   NotifyConfig
	Identity IdentityConfig
}

type ServerConfig struct {
	Port     int
	Env      string
	LogLevel slog.Level
	// TokenHash is a bcrypt hash of the bearer token the web client must send.
	// Empty leaves the service API open.
	TokenHash string
	// RateLimitRPM caps requests per minute per client IP on the protected API.
	RateLimitRPM   int
	MaxUploadBytes int64
}

// APIConfig points at the R2C REST API.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type PollerConfig struct {
	Interval       time.Duration
	RequestTimeout time.Duration
	// Concurrency caps status requests per cycle; 0 checks every pending job at once.
	Concurrency int
}

type JobStoreConfig struct {
	Backend string
	Key     string
	Dir     string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type NATSConfig struct {
	URL     string
	Subject string
}

type NotifyConfig struct {
	Link             string
	ConfirmationPath string
	FeedSize         int
}

type IdentityConfig struct {
	Mode         string
	AccessToken  string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	IdentityNone              = "none"
	IdentityStatic            = "static"
	IdentityClientCredentials = "client_credentials"
)

var validBackends = map[string]bool{
	BackendMemory:   true,
	BackendFile:     true,
	BackendRedis:    true,
	BackendPostgres: true,
}

var validIdentityModes = map[string]bool{
	IdentityNone:              true,
	IdentityStatic:            true,
	IdentityClientCredentials: true,
}

// Load reads a .env file when present, then configuration from environment
// variables, and returns a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:      envInt("R2C_PORT", 8080),
			Env:       envString("R2C_ENV", "development"),
			LogLevel:  envLevel("R2C_LOG_LEVEL", slog.LevelInfo),
			TokenHash: os.Getenv("R2C_SERVICE_TOKEN_HASH"),

			RateLimitRPM:   envInt("R2C_RATE_LIMIT_RPM", 60),
			MaxUploadBytes: int64(envInt("R2C_MAX_UPLOAD_MB", 100)) << 20,
		},
		API: APIConfig{
			BaseURL: strings.TrimRight(os.Getenv("R2C_API_BASE_URL"), "/"),
			Timeout: envDuration("R2C_API_TIMEOUT", 60*time.Second),
		},
		Poller: PollerConfig{
			Interval:       envDuration("R2C_POLL_INTERVAL", 10*time.Second),
			RequestTimeout: envDuration("R2C_POLL_TIMEOUT", 30*time.Second),
			Concurrency:    envInt("R2C_POLL_CONCURRENCY", 0),
		},
		JobStore: JobStoreConfig{
			Backend: envString("R2C_JOBSTORE_BACKEND", BackendFile),
			Key:     envString("R2C_JOBSTORE_KEY", "bulkAnalysisJobs"),
			Dir:     envString("R2C_JOBSTORE_DIR", "./data"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 5),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 1),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		NATS: NATSConfig{
			URL:     os.Getenv("NATS_URL"),
			Subject: envString("NATS_SUBJECT", "r2c.bulk.completed"),
		},
		Notify: NotifyConfig{
			Link:             envString("R2C_NOTIFY_LINK", "/create-study/bulk"),
			ConfirmationPath: envString("R2C_CONFIRMATION_PATH", "/studies/submitted"),
			FeedSize:         envInt("R2C_NOTIFY_FEED_SIZE", 20),
		},
		Identity: IdentityConfig{
			Mode:         envString("R2C_IDENTITY_MODE", IdentityNone),
			AccessToken:  os.Getenv("R2C_ACCESS_TOKEN"),
			TokenURL:     os.Getenv("R2C_OAUTH_TOKEN_URL"),
			ClientID:     os.Getenv("R2C_OAUTH_CLIENT_ID"),
			ClientSecret: os.Getenv("R2C_OAUTH_CLIENT_SECRET"),
			Scopes:       envList("R2C_OAUTH_SCOPES"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("R2C_API_BASE_URL is required")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("R2C_API_BASE_URL must start with http:// or https://, got %q", c.API.BaseURL)
	}

	if c.Server.RateLimitRPM < 1 {
		return fmt.Errorf("R2C_RATE_LIMIT_RPM must be at least 1, got %d", c.Server.RateLimitRPM)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("R2C_MAX_UPLOAD_MB must be positive")
	}

	if c.Poller.Interval <= 0 {
		return fmt.Errorf("R2C_POLL_INTERVAL must be positive, got %s", c.Poller.Interval)
	}
	if c.Poller.Concurrency < 0 {
		return fmt.Errorf("R2C_POLL_CONCURRENCY must not be negative, got %d", c.Poller.Concurrency)
	}

	if !validBackends[c.JobStore.Backend] {
		return fmt.Errorf("R2C_JOBSTORE_BACKEND must be one of memory, file, redis, postgres; got %q", c.JobStore.Backend)
	}
	if c.JobStore.Key == "" {
		return fmt.Errorf("R2C_JOBSTORE_KEY must not be empty")
	}
	if c.JobStore.Backend == BackendRedis && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when R2C_JOBSTORE_BACKEND is redis")
	}
	if c.JobStore.Backend == BackendPostgres && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when R2C_JOBSTORE_BACKEND is postgres")
	}

	if !validIdentityModes[c.Identity.Mode] {
		return fmt.Errorf("R2C_IDENTITY_MODE must be one of none, static, client_credentials; got %q", c.Identity.Mode)
	}
	if c.Identity.Mode == IdentityStatic && c.Identity.AccessToken == "" {
		return fmt.Errorf("R2C_ACCESS_TOKEN is required when R2C_IDENTITY_MODE is static")
	}
	if c.Identity.Mode == IdentityClientCredentials {
		if c.Identity.TokenURL == "" || c.Identity.ClientID == "" || c.Identity.ClientSecret == "" {
			return fmt.Errorf("R2C_OAUTH_TOKEN_URL, R2C_OAUTH_CLIENT_ID and R2C_OAUTH_CLIENT_SECRET are required when R2C_IDENTITY_MODE is client_credentials")
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return l
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
