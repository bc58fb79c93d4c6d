package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds catalog client configuration.
type Config struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	PageSize          int           `mapstructure:"page_size"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"` // 0 disables limiting
	Burst             int           `mapstructure:"burst"`
	UserAgent         string        `mapstructure:"user_agent"`
	Verbose           bool          `mapstructure:"verbose"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
}

// DefaultConfig returns defaults pointing at the public demo store.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://rgt-book-store.onrender.com/api",
		Timeout:           10 * time.Second,
		PageSize:          10,
		RequestsPerSecond: 0,
		Burst:             1,
		UserAgent:         "go-book-catalog/1.0",
		Verbose:           false,
		MetricsAddr:       "",
	}
}

// Load reads configuration from defaults, an optional YAML file named by
// CATALOG_CONFIG, and CATALOG_* environment variables, in increasing priority.
func Load() (*Config, error) {
	def := DefaultConfig()
	v := viper.New()

	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("page_size", def.PageSize)
	v.SetDefault("requests_per_second", def.RequestsPerSecond)
	v.SetDefault("burst", def.Burst)
	v.SetDefault("user_agent", def.UserAgent)
	v.SetDefault("verbose", def.Verbose)
	v.SetDefault("metrics_addr", def.MetricsAddr)

	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CATALOG_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return fmt.Errorf("burst must be positive when requests per second is set")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
