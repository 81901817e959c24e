// Package hub provides the signed HTTP client for the smart-lock hub's
// local REST API, plus discovery of the hub on the local network.
package hub

import (
	"os"
	"time"
)

// Config holds the settings for hub API access.
type Config struct {
	// BaseURL is the hub API base URL, e.g. http://192.168.1.50.
	BaseURL string

	// APIKey is the shared secret used to sign every request.
	APIKey string

	// Timeout for a single API request attempt.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after a failed request.
	MaxRetries int
}

// DefaultConfig returns the default configuration, reading from environment
// variables where set.
func DefaultConfig() Config {
	return Config{
		BaseURL:    getEnv("HUB_URL", ""),
		APIKey:     getEnv("HUB_API_KEY", ""),
		Timeout:    10 * time.Second,
		MaxRetries: 3,
	}
}

// getEnv returns an environment variable value or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
