package utils

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts the usual "12s" / "24h" notation in yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// ProviderMode selects the backend coupon integration. Exactly one mode is
// active for the lifetime of the process; switching requires a restart.
type ProviderMode string

const (
	LocationMode ProviderMode = "location"
	MerchantMode ProviderMode = "merchant"
)

type ProviderConfig struct {
	Mode       ProviderMode `yaml:"mode"`
	APIBaseURL string       `yaml:"api_base_url"`
	APIKey     string       `yaml:"api_key"`
	MerchantID string       `yaml:"merchant_id"`
	AppID      string       `yaml:"app_id"`
	PageSize   int          `yaml:"page_size"`
	Timeout    Duration     `yaml:"timeout"`
}

type SweepConfig struct {
	Schedule string `yaml:"schedule"` // cron expression; empty disables scheduled sweeps
	Policy   string `yaml:"policy"`   // "remove" (default) or "retain"
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	EventAddr string `yaml:"event_addr"`
}

type AuthConfig struct {
	JWTSecret   string   `yaml:"jwt_secret"`
	JWTIssuer   string   `yaml:"jwt_issuer"`
	JWTDuration Duration `yaml:"jwt_ttl"`
}

type StorageConfig struct {
	Path string `yaml:"path"` // empty means in-memory only
}

type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
}

// LoadConfig reads the yaml config at path and applies env overrides and
// defaults. A missing file is fine as long as the env carries the provider
// settings.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("COUPONHUB_PROVIDER_MODE"); v != "" {
		cfg.Provider.Mode = ProviderMode(v)
	}
	if v := os.Getenv("COUPONHUB_API_BASE_URL"); v != "" {
		cfg.Provider.APIBaseURL = v
	}
	if v := os.Getenv("COUPONHUB_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("COUPONHUB_MERCHANT_ID"); v != "" {
		cfg.Provider.MerchantID = v
	}
	if v := os.Getenv("COUPONHUB_APP_ID"); v != "" {
		cfg.Provider.AppID = v
	}
	if v := os.Getenv("COUPONHUB_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("COUPONHUB_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.PageSize == 0 {
		cfg.Provider.PageSize = 25
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = Duration(12 * time.Second)
	}
	if cfg.Sweep.Policy == "" {
		cfg.Sweep.Policy = "remove"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.EventAddr == "" {
		cfg.Server.EventAddr = ":7070"
	}
	if cfg.Auth.JWTSecret == "" {
		// dev default (change for demo / production)
		cfg.Auth.JWTSecret = "dev-secret-change-me"
	}
	if cfg.Auth.JWTIssuer == "" {
		cfg.Auth.JWTIssuer = "couponhub"
	}
	if cfg.Auth.JWTDuration == 0 {
		cfg.Auth.JWTDuration = Duration(24 * time.Hour)
	}
}

// Validate rejects configs that mix the two provider identity models.
func (c *Config) Validate() error {
	switch c.Provider.Mode {
	case LocationMode:
		if c.Provider.MerchantID != "" {
			return fmt.Errorf("config: merchant_id set in location mode; the two identity models must not be mixed")
		}
	case MerchantMode:
		if c.Provider.MerchantID == "" {
			return fmt.Errorf("config: merchant mode requires merchant_id")
		}
	default:
		return fmt.Errorf("config: unknown provider mode %q", c.Provider.Mode)
	}
	if c.Provider.APIBaseURL == "" {
		return fmt.Errorf("config: provider api_base_url is required")
	}
	if c.Sweep.Policy != "remove" && c.Sweep.Policy != "retain" {
		return fmt.Errorf("config: sweep policy must be \"remove\" or \"retain\", got %q", c.Sweep.Policy)
	}
	return nil
}
