// Package server provides configuration helpers that define runtime defaults
// and validation for the chat relay service.
package server

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the server configuration settings. It is built once in main
// and injected; there is no package-level config state.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
}

func defaultConfig() Config {
	return Config{
		Port: ":5000",
		AllowedOrigins: []string{
			"http://localhost:3000",
		},
		MaxMessageSize: 4096,
	}
}

// Sanitize replaces zero or invalid settings with their defaults and returns
// the resulting config.
func (c Config) Sanitize() Config {
	defaults := defaultConfig()

	if c.Port == "" {
		c.Port = defaults.Port
	}
	if !strings.HasPrefix(c.Port, ":") {
		c.Port = ":" + c.Port
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}

	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = append([]string(nil), defaults.AllowedOrigins...)
	}

	return c
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from environment variables, falling back
// to defaults for anything unset.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	sanitized := cfg.Sanitize()
	return &sanitized
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}
