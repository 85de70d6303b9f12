// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// BlobConfig selects the material storage backend: a local directory by
// default, S3-compatible object storage when a bucket is configured.
type BlobConfig struct {
	Dir string // local directory for stored materials (default "data/materials")

	S3Bucket       string
	S3Region       string
	S3Endpoint     string // custom endpoint for S3-compatible stores
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// S3Enabled reports whether object storage is configured.
func (b BlobConfig) S3Enabled() bool { return b.S3Bucket != "" }

// Config holds the runtime configuration for the API server.
type Config struct {
	DSN        string // PostgreSQL DSN (required)
	ListenAddr string // HTTP listen address (default ":8080")
	Env        string // "development" (default) or "production"
	LogLevel   string // debug, info, warn, error (default "info")

	SessionSecret string        // HS256 signing secret for session cookies (required)
	SessionTTL    time.Duration // session lifetime (default 8h)

	// Bootstrap administrator credentials; required only while the
	// identity store is empty, and validated at seed time.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	MigrationsDir string // path to SQL migrations (default "migrations")

	IndexerURL string // document-indexing service base URL; empty disables indexing

	RateLimitRPS   int // sustained requests per second per client (default 50)
	RateLimitBurst int // burst capacity (default 100)

	Blob BlobConfig
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks that the configuration can start the server at all.
// Bootstrap credentials are checked later, only when a bootstrap is
// actually required.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("RAMPLINE_PG_DSN is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("RAMPLINE_SESSION_SECRET is required")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DSN:                    os.Getenv("RAMPLINE_PG_DSN"),
		ListenAddr:             envDefault("RAMPLINE_LISTEN_ADDR", ":8080"),
		Env:                    envDefault("RAMPLINE_ENV", "development"),
		LogLevel:               envDefault("RAMPLINE_LOG_LEVEL", "info"),
		SessionSecret:          os.Getenv("RAMPLINE_SESSION_SECRET"),
		SessionTTL:             8 * time.Hour,
		BootstrapAdminEmail:    os.Getenv("RAMPLINE_BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword: os.Getenv("RAMPLINE_BOOTSTRAP_ADMIN_PASSWORD"),
		MigrationsDir:          envDefault("RAMPLINE_MIGRATIONS_DIR", "migrations"),
		IndexerURL:             os.Getenv("RAMPLINE_INDEXER_URL"),
		RateLimitRPS:           50,
		RateLimitBurst:         100,
		Blob: BlobConfig{
			Dir:            envDefault("RAMPLINE_BLOB_DIR", "data/materials"),
			S3Bucket:       os.Getenv("RAMPLINE_S3_BUCKET"),
			S3Region:       envDefault("RAMPLINE_S3_REGION", "us-east-1"),
			S3Endpoint:     os.Getenv("RAMPLINE_S3_ENDPOINT"),
			S3AccessKey:    os.Getenv("RAMPLINE_S3_ACCESS_KEY"),
			S3SecretKey:    os.Getenv("RAMPLINE_S3_SECRET_KEY"),
			S3UsePathStyle: envBool("RAMPLINE_S3_PATH_STYLE", false),
		},
	}

	if raw := os.Getenv("RAMPLINE_SESSION_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("invalid RAMPLINE_SESSION_TTL %q", raw)
		}
		cfg.SessionTTL = ttl
	}
	if raw := os.Getenv("RAMPLINE_RATE_LIMIT_RPS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RAMPLINE_RATE_LIMIT_RPS %q", raw)
		}
		cfg.RateLimitRPS = n
	}
	if raw := os.Getenv("RAMPLINE_RATE_LIMIT_BURST"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RAMPLINE_RATE_LIMIT_BURST %q", raw)
		}
		cfg.RateLimitBurst = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
