// Package config provides configuration for the rakh-session CLI.
package config

import (
	"fmt"
	"time"
)

const (
	FormatAESGCM = "aes-gcm"
	FormatFe26   = "fe26"
)

// Config is the top-level rakh-session configuration.
type Config struct {
	// CookiePassword seals and unseals session cookies. Required by the seal,
	// unseal and authenticate commands.
	CookiePassword string `yaml:"cookie_password" mapstructure:"cookie_password" validate:"omitempty,min=32"`

	// WebhookSecret verifies webhook signatures.
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	Seal    SealConfig    `yaml:"seal" mapstructure:"seal"`
	Webhook WebhookConfig `yaml:"webhook" mapstructure:"webhook"`
	API     APIConfig     `yaml:"api" mapstructure:"api"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
}

// CacheConfig selects an optional shared key set cache. At most one backend
// may be set; with neither, key sets are cached in process.
type CacheConfig struct {
	RedisAddr   string `yaml:"redis_addr" mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPrefix string `yaml:"redis_prefix" mapstructure:"redis_prefix"`
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
}

// SealConfig selects the sealing format.
type SealConfig struct {
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=aes-gcm fe26"`
	// TTL bounds Fe26.2 seals, e.g. "2m". Ignored by aes-gcm.
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty,duration"`
}

// WebhookConfig configures signature verification.
type WebhookConfig struct {
	Tolerance string `yaml:"tolerance" mapstructure:"tolerance" validate:"omitempty,duration"`
}

// APIConfig points at the identity platform.
type APIConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
	Timeout  string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// SetDefaults fills optional fields.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.Seal.Format == "" {
		c.Seal.Format = FormatAESGCM
	}
	if c.Seal.TTL == "" {
		c.Seal.TTL = "2m"
	}
	if c.Webhook.Tolerance == "" {
		c.Webhook.Tolerance = "180s"
	}
	if c.API.Timeout == "" {
		c.API.Timeout = "10s"
	}
	if c.Cache.RedisPrefix == "" {
		c.Cache.RedisPrefix = "rakh"
	}
}

func (c *Config) SealTTL() time.Duration          { return mustDuration(c.Seal.TTL) }
func (c *Config) WebhookTolerance() time.Duration { return mustDuration(c.Webhook.Tolerance) }
func (c *Config) APITimeout() time.Duration       { return mustDuration(c.API.Timeout) }

// RequireCookiePassword reports a missing password with the env var to set.
func (c *Config) RequireCookiePassword() error {
	if c.CookiePassword == "" {
		return fmt.Errorf("cookie password is required (set %s_COOKIE_PASSWORD)", EnvPrefix)
	}
	return nil
}

// RequireWebhookSecret reports a missing webhook secret.
func (c *Config) RequireWebhookSecret() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("webhook secret is required (set %s_WEBHOOK_SECRET)", EnvPrefix)
	}
	return nil
}

// RequireAPI reports missing API settings.
func (c *Config) RequireAPI() error {
	if c.API.BaseURL == "" || c.API.ClientID == "" {
		return fmt.Errorf("api.base_url and api.client_id are required (set %s_API_BASE_URL and %s_API_CLIENT_ID)", EnvPrefix, EnvPrefix)
	}
	return nil
}

// mustDuration parses values already checked by Validate.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
