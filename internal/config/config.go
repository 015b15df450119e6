package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration, loaded once at startup and
// passed explicitly to every component that needs it.
type Config struct {
	Listen      string `yaml:"listen"`        // HTTP listen address.
	DatabaseDSN string `yaml:"database-dsn"`  // PostgreSQL or SQLite DSN.
	PublicURL   string `yaml:"public-url"`    // Public base URL for redirect targets.
	RedisAddr   string `yaml:"redis-addr"`    // Optional redis address for rate limiting.
	LogFile     string `yaml:"log-file"`      // Optional log file path, rotated.

	JWTSecret    string        `yaml:"jwt-secret"`     // HS256 session signing secret.
	SessionTTL   time.Duration `yaml:"session-ttl"`    // Session token lifetime.
	Creem        CreemConfig   `yaml:"creem"`          // Payment provider settings.
	SweepEvery   time.Duration `yaml:"sweep-interval"` // Referral confirmation sweep interval.
	ProxyTimeout time.Duration `yaml:"proxy-timeout"`  // Total upstream proxy timeout.
}

// CreemConfig holds payment-provider credentials and product binding.
type CreemConfig struct {
	APIKey        string `yaml:"api-key"`        // Provider API key; test keys switch the base URL.
	ProductID     string `yaml:"product-id"`     // Expected product id on completed checkouts.
	WebhookSecret string `yaml:"webhook-secret"` // Shared secret for webhook HMAC signatures.
}

// Load reads and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	raw, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	cfg := defaults()
	if errUnmarshal := yaml.Unmarshal(raw, cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	applyDefaults(cfg)

	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return nil, fmt.Errorf("config: database-dsn is required")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("config: jwt-secret is required")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Listen:     ":8080",
		PublicURL:  "http://localhost:3000",
		SessionTTL: 7 * 24 * time.Hour,
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = ":8080"
	}
	cfg.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:3000"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 10 * time.Minute
	}
	if cfg.ProxyTimeout <= 0 {
		cfg.ProxyTimeout = 60 * time.Second
	}
}
