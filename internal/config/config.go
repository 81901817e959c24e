// Package config loads the bridge configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lockbridge/backend/internal/device"
)

// HubConfig is the hub connection section.
type HubConfig struct {
	// Address is the hub base URL. Empty triggers network discovery.
	Address string `yaml:"address"`

	// APIKey signs every request. Required.
	APIKey string `yaml:"api_key"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRetries     int `yaml:"max_retries"`
}

// WebhookConfig is the webhook receiver section.
type WebhookConfig struct {
	// Port the receiver listens on.
	Port int `yaml:"port"`

	// AdvertisedURL is the URL the hub should deliver events to. Derived
	// from the local address and port when empty.
	AdvertisedURL string `yaml:"advertised_url"`
}

// Config is the full bridge configuration.
type Config struct {
	Hub     HubConfig     `yaml:"hub"`
	Webhook WebhookConfig `yaml:"webhook"`

	// APIAddr is the status API listen address.
	APIAddr string `yaml:"api_addr"`

	// DataDir holds the SQLite state cache.
	DataDir string `yaml:"data_dir"`

	ResyncIntervalMinutes int `yaml:"resync_interval_minutes"`

	// Devices is the per-lock policy list, keyed by hub device id.
	Devices []device.Config `yaml:"devices"`
}

// Defaults applied to absent fields.
const (
	defaultTimeoutSeconds = 10
	defaultMaxRetries     = 3
	defaultWebhookPort    = 8099
	defaultAPIAddr        = ":8098"
	defaultDataDir        = "/data"
	defaultResyncMinutes  = 10
)

// Load reads and validates the configuration file. Environment variables
// HUB_URL and HUB_API_KEY override the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if v := os.Getenv("HUB_URL"); v != "" {
		cfg.Hub.Address = v
	}
	if v := os.Getenv("HUB_API_KEY"); v != "" {
		cfg.Hub.APIKey = v
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Hub.TimeoutSeconds <= 0 {
		c.Hub.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Hub.MaxRetries <= 0 {
		c.Hub.MaxRetries = defaultMaxRetries
	}
	if c.Webhook.Port <= 0 {
		c.Webhook.Port = defaultWebhookPort
	}
	if c.APIAddr == "" {
		c.APIAddr = defaultAPIAddr
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.ResyncIntervalMinutes <= 0 {
		c.ResyncIntervalMinutes = defaultResyncMinutes
	}
}

func (c *Config) validate() error {
	if c.Hub.APIKey == "" {
		return fmt.Errorf("hub.api_key is required")
	}

	seen := make(map[int]bool)
	for _, d := range c.Devices {
		if d.ID <= 0 {
			return fmt.Errorf("device entry without a valid id")
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate device entry for id %d", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// Timeout returns the per-request hub timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Hub.TimeoutSeconds) * time.Second
}

// ResyncInterval returns the periodic resync interval.
func (c *Config) ResyncInterval() time.Duration {
	return time.Duration(c.ResyncIntervalMinutes) * time.Minute
}
