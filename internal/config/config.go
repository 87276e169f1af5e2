package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	BaseURL     string
	DatabaseURL string
	RedisURL    string

	// GitHubToken is the server token used by the rank job and for users who
	// refresh without supplying their own.
	GitHubToken             string
	GitHubOAuthClientID     string
	GitHubOAuthClientSecret string

	JWTSecret         string
	AdminUsername     string
	AdminPasswordHash string // bcrypt

	PostHogAPIKey string

	RankInterval   time.Duration
	RankBatchSize  int
	RankBatchDelay time.Duration
}

// Load reads .env (if present) and the process environment. Secrets have no
// defaults; call Validate before serving.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("redis_url", "redis://localhost:6379")
	v.SetDefault("rank_interval", "6h")
	v.SetDefault("rank_batch_size", 5)
	v.SetDefault("rank_batch_delay", "1500ms")
	return v
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                    v.GetString("port"),
		BaseURL:                 v.GetString("base_url"),
		DatabaseURL:             v.GetString("database_url"),
		RedisURL:                v.GetString("redis_url"),
		GitHubToken:             v.GetString("github_token"),
		GitHubOAuthClientID:     v.GetString("github_oauth_client_id"),
		GitHubOAuthClientSecret: v.GetString("github_oauth_client_secret"),
		JWTSecret:               v.GetString("jwt_secret"),
		AdminUsername:           v.GetString("admin_username"),
		AdminPasswordHash:       v.GetString("admin_password_hash"),
		PostHogAPIKey:           v.GetString("posthog_api_key"),
		RankBatchSize:           v.GetInt("rank_batch_size"),
	}

	var err error
	if cfg.RankInterval, err = time.ParseDuration(v.GetString("rank_interval")); err != nil {
		return nil, fmt.Errorf("config: RANK_INTERVAL: %w", err)
	}
	if cfg.RankBatchDelay, err = time.ParseDuration(v.GetString("rank_batch_delay")); err != nil {
		return nil, fmt.Errorf("config: RANK_BATCH_DELAY: %w", err)
	}
	if cfg.RankBatchSize <= 0 {
		return nil, fmt.Errorf("config: RANK_BATCH_SIZE must be positive, got %d", cfg.RankBatchSize)
	}
	return cfg, nil
}

// Validate checks the settings the HTTP server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	if c.AdminUsername != "" && c.AdminPasswordHash == "" {
		errs = append(errs, errors.New("ADMIN_PASSWORD_HASH is required when ADMIN_USERNAME is set"))
	}
	return errors.Join(errs...)
}

// AdminEnabled reports whether admin login is configured.
func (c *Config) AdminEnabled() bool {
	return c.AdminUsername != "" && c.AdminPasswordHash != ""
}

// OAuthEnabled reports whether GitHub login is configured.
func (c *Config) OAuthEnabled() bool {
	return c.GitHubOAuthClientID != "" && c.GitHubOAuthClientSecret != ""
}
