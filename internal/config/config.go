// Package config loads the client configuration from ~/.whiz/config.yaml,
// layering environment overrides on top of file values and file values on
// top of built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all whiz configuration.
type Config struct {
	// Server is the backend base URL.
	Server ServerConfig `yaml:"server"`

	// OAuth configures the local Google login callback.
	OAuth OAuthConfig `yaml:"oauth"`

	// UI settings for the chat terminal.
	UI UIConfig `yaml:"ui"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the backend connection.
type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// OAuthConfig configures the Google login redirect listener. The address
// must match the redirect URI registered with the backend.
type OAuthConfig struct {
	CallbackAddr string `yaml:"callback_addr"`
}

// UIConfig configures the chat terminal.
type UIConfig struct {
	Theme string `yaml:"theme"` // dark, light
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8000",
			Timeout: "120s",
		},
		OAuth: OAuthConfig{
			CallbackAddr: "127.0.0.1:5173",
		},
		UI: UIConfig{
			Theme: "dark",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "", // defaults to ~/.whiz/logs/whiz.log
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".whiz", "config.yaml"), nil
}

// Load loads configuration from a YAML file. A missing file is not an
// error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// RequestTimeout parses the server timeout, falling back to the default
// when the value is empty or malformed.
func (c *Config) RequestTimeout() time.Duration {
	if c.Server.Timeout == "" {
		return 120 * time.Second
	}
	d, err := time.ParseDuration(c.Server.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("WHIZ_SERVER_URL"); url != "" {
		c.Server.BaseURL = url
	}
	if timeout := os.Getenv("WHIZ_TIMEOUT"); timeout != "" {
		c.Server.Timeout = timeout
	}
	if addr := os.Getenv("WHIZ_CALLBACK_ADDR"); addr != "" {
		c.OAuth.CallbackAddr = addr
	}
	if level := os.Getenv("WHIZ_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
