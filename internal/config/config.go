// Package config provides YAML-based configuration for the tracker
// server and terminal client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Session timing configuration
	Session SessionConfig `yaml:"session"`

	// Client configuration
	Client ClientConfig `yaml:"client"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            int    `yaml:"port"`
	BindAddress     string `yaml:"bindAddress"`
	ReadTimeoutSec  int    `yaml:"readTimeoutSeconds"`
	WriteTimeoutSec int    `yaml:"writeTimeoutSeconds"`
	IdleTimeoutSec  int    `yaml:"idleTimeoutSeconds"`
}

// StorageConfig contains backend persistence settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
}

// SessionConfig contains the timing rules of a tracked session
type SessionConfig struct {
	// PopupCountdownMinutes is how long a check-in prompt waits for an
	// answer before the session auto-submits.
	PopupCountdownMinutes int `yaml:"popupCountdownMinutes"`
	// PopupIntervalMinutes is the active-time gap between prompts.
	PopupIntervalMinutes int `yaml:"popupIntervalMinutes"`
	// LockTTLMinutes is how long a session lock survives without a
	// release before another terminal may take it over.
	LockTTLMinutes int `yaml:"lockTtlMinutes"`
	// FeedIntervalSeconds is the tick rate of the server time feed.
	FeedIntervalSeconds int `yaml:"feedIntervalSeconds"`
}

// ClientConfig contains terminal client settings
type ClientConfig struct {
	ServerURL string `yaml:"serverUrl"`
	// StateDirectory holds the durable local session snapshot.
	StateDirectory   string `yaml:"stateDirectory"`
	SubmitTimeoutSec int    `yaml:"submitTimeoutSeconds"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:            8089,
			BindAddress:     "0.0.0.0",
			ReadTimeoutSec:  30,
			WriteTimeoutSec: 30,
			IdleTimeoutSec:  120,
		},
		Storage: StorageConfig{
			DataDirectory: "./data",
		},
		Session: SessionConfig{
			PopupCountdownMinutes: 30,
			PopupIntervalMinutes:  30,
			LockTTLMinutes:        120,
			FeedIntervalSeconds:   1,
		},
		Client: ClientConfig{
			ServerURL:        "http://localhost:8089",
			StateDirectory:   "./data/client",
			SubmitTimeoutSec: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file, creating a default
// config file on first run
func LoadConfig(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Production tracker configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	if serverURL := os.Getenv("TRACKER_SERVER_URL"); serverURL != "" {
		c.Client.ServerURL = serverURL
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Client.StateDirectory) {
		c.Client.StateDirectory = filepath.Join(configDir, c.Client.StateDirectory)
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// PopupCountdown returns the prompt countdown as a duration
func (c *AppConfig) PopupCountdown() time.Duration {
	return time.Duration(c.Session.PopupCountdownMinutes) * time.Minute
}

// PopupInterval returns the gap between prompts as a duration
func (c *AppConfig) PopupInterval() time.Duration {
	return time.Duration(c.Session.PopupIntervalMinutes) * time.Minute
}

// LockTTL returns the session lock lifetime as a duration
func (c *AppConfig) LockTTL() time.Duration {
	return time.Duration(c.Session.LockTTLMinutes) * time.Minute
}

// FeedInterval returns the server time feed tick rate as a duration
func (c *AppConfig) FeedInterval() time.Duration {
	return time.Duration(c.Session.FeedIntervalSeconds) * time.Second
}

// SubmitTimeout returns the client submission timeout as a duration
func (c *AppConfig) SubmitTimeout() time.Duration {
	return time.Duration(c.Client.SubmitTimeoutSec) * time.Second
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Client.StateDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
