// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Abuse   AbuseConfig   `yaml:"abuse"`
	Plans   []PlanConfig  `yaml:"plans"`
	Captcha CaptchaConfig `yaml:"captcha"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
}

// StorageConfig configures the durable stores.
type StorageConfig struct {
	// DataDir holds the JSON store files (users.json, quotas.json, ...).
	DataDir string `yaml:"data_dir"`

	// QuotaDriver selects the quota ledger backend: "json" (default,
	// single process) or "sqlite" (transactional, shared-file safe).
	QuotaDriver string `yaml:"quota_driver"`

	// QuotaDSN is the sqlite database path when quota_driver is "sqlite".
	QuotaDSN string `yaml:"quota_dsn"`

	// QuotaFailMode decides what happens when the quota store itself
	// fails: "open" admits the hit (default), "closed" rejects with 503.
	QuotaFailMode string `yaml:"quota_fail_mode"`
}

// LimiterConfig parameterizes one token-bucket limiter.
type LimiterConfig struct {
	RatePerMinute float64 `yaml:"rate_per_minute"`
	Burst         float64 `yaml:"burst"`
}

// AbuseConfig configures the abuse-control subsystem.
type AbuseConfig struct {
	Global  LimiterConfig `yaml:"global"`
	Contact LimiterConfig `yaml:"contact"`
	Chat    LimiterConfig `yaml:"chat"`
	Login   LimiterConfig `yaml:"login"`
	Signup  LimiterConfig `yaml:"signup"`

	CooldownSeconds       int `yaml:"cooldown_seconds"`
	ContactMinIntervalSec int `yaml:"contact_min_interval_sec"`
	ChatMinIntervalSec    int `yaml:"chat_min_interval_sec"`
	SweepIntervalSec      int `yaml:"sweep_interval_sec"`

	IPAllowlist []string `yaml:"ip_allowlist"`
	IPDenylist  []string `yaml:"ip_denylist"`
}

// PlanConfig overrides one plan tier's quota ceilings.
type PlanConfig struct {
	ID            string `yaml:"id"`
	ContactDaily  int    `yaml:"contact_daily"`
	ChatPerMinute int    `yaml:"chat_per_minute"`
}

// CaptchaConfig configures hCaptcha verification.
type CaptchaConfig struct {
	SiteKey         string `yaml:"site_key"`
	Secret          string `yaml:"secret"`
	RequireOnSignup bool   `yaml:"require_on_signup"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the built-in configuration. The limiter parameters are the
// production defaults of the original deployment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeoutSec:  15,
			WriteTimeoutSec: 30,
		},
		Storage: StorageConfig{
			DataDir:       "./data",
			QuotaDriver:   "json",
			QuotaDSN:      "./data/quotas.db",
			QuotaFailMode: "open",
		},
		Abuse: AbuseConfig{
			Global:             LimiterConfig{RatePerMinute: 120, Burst: 60},
			Contact:            LimiterConfig{RatePerMinute: 12, Burst: 6},
			Chat:               LimiterConfig{RatePerMinute: 30, Burst: 10},
			Login:              LimiterConfig{RatePerMinute: 5, Burst: 3},
			Signup:             LimiterConfig{RatePerMinute: 8, Burst: 4},
			CooldownSeconds:       30,
			ContactMinIntervalSec: 5,
			ChatMinIntervalSec:    1,
			SweepIntervalSec:      600,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads the YAML file at path (when it exists), applies LEADLINE_*
// environment overrides on top of the defaults, and validates the result.
// A .env file in the working directory is honored if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasEnvConfig reports whether env-only configuration is in use.
func HasEnvConfig() bool {
	return os.Getenv("LEADLINE_DATA_DIR") != ""
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Host, "LEADLINE_SERVER_HOST")
	setInt(&cfg.Server.Port, "LEADLINE_SERVER_PORT")

	setString(&cfg.Storage.DataDir, "LEADLINE_DATA_DIR")
	setString(&cfg.Storage.QuotaDriver, "LEADLINE_QUOTA_DRIVER")
	setString(&cfg.Storage.QuotaDSN, "LEADLINE_QUOTA_DSN")
	setString(&cfg.Storage.QuotaFailMode, "LEADLINE_QUOTA_FAIL_MODE")

	setFloat(&cfg.Abuse.Global.RatePerMinute, "LEADLINE_IP_GLOBAL_RATE_PER_MIN")
	setFloat(&cfg.Abuse.Global.Burst, "LEADLINE_IP_GLOBAL_BURST")
	setFloat(&cfg.Abuse.Contact.RatePerMinute, "LEADLINE_CONTACT_RATE_PER_MIN")
	setFloat(&cfg.Abuse.Contact.Burst, "LEADLINE_CONTACT_BURST")
	setFloat(&cfg.Abuse.Chat.RatePerMinute, "LEADLINE_CHAT_RATE_PER_MIN")
	setFloat(&cfg.Abuse.Chat.Burst, "LEADLINE_CHAT_BURST")
	setInt(&cfg.Abuse.CooldownSeconds, "LEADLINE_ABUSE_COOLDOWN_SEC")
	setList(&cfg.Abuse.IPAllowlist, "LEADLINE_IP_ALLOWLIST")
	setList(&cfg.Abuse.IPDenylist, "LEADLINE_IP_DENYLIST")

	setString(&cfg.Captcha.SiteKey, "LEADLINE_HCAPTCHA_SITEKEY")
	setString(&cfg.Captcha.Secret, "LEADLINE_HCAPTCHA_SECRET")

	setString(&cfg.Logging.Level, "LEADLINE_LOG_LEVEL")
	setString(&cfg.Logging.Format, "LEADLINE_LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var items []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				items = append(items, p)
			}
		}
		*dst = items
	}
}

// Validate checks the configuration for mistakes that would otherwise
// surface as confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range 1-65535", c.Server.Port)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	switch c.Storage.QuotaDriver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("storage.quota_driver %q: must be \"json\" or \"sqlite\"", c.Storage.QuotaDriver)
	}
	switch c.Storage.QuotaFailMode {
	case "open", "closed":
	default:
		return fmt.Errorf("storage.quota_fail_mode %q: must be \"open\" or \"closed\"", c.Storage.QuotaFailMode)
	}

	for name, lc := range map[string]LimiterConfig{
		"global": c.Abuse.Global, "contact": c.Abuse.Contact, "chat": c.Abuse.Chat,
		"login": c.Abuse.Login, "signup": c.Abuse.Signup,
	} {
		if lc.RatePerMinute < 0 {
			return fmt.Errorf("abuse.%s.rate_per_minute must not be negative", name)
		}
		if lc.Burst < 1 {
			return fmt.Errorf("abuse.%s.burst must be at least 1", name)
		}
	}
	if c.Abuse.CooldownSeconds < 0 {
		return fmt.Errorf("abuse.cooldown_seconds must not be negative")
	}

	seen := map[string]bool{}
	for _, p := range c.Plans {
		if p.ID == "" {
			return fmt.Errorf("plans: id must not be empty")
		}
		if seen[p.ID] {
			return fmt.Errorf("plans: duplicate id %q", p.ID)
		}
		seen[p.ID] = true
		if p.ContactDaily < 0 || p.ChatPerMinute < 0 {
			return fmt.Errorf("plan %q: limits must not be negative", p.ID)
		}
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format %q: must be \"json\" or \"console\"", c.Logging.Format)
	}
	return nil
}
