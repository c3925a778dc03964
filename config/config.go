// Package config provides configuration loading and management for Roster.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Roster configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	NATS     NATSConfig     `yaml:"nats"`
	Postgres PostgresConfig `yaml:"postgres"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Github   GithubConfig   `yaml:"github"`
}

// ServerConfig configures the REST API server
type ServerConfig struct {
	// Port is the REST API listen port (default: 7888)
	Port int `yaml:"port"`
	// Namespace scopes all resources created through this server
	Namespace string `yaml:"namespace"`
	// Bucket is the KV bucket holding resources
	Bucket string `yaml:"bucket"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (default: nats://localhost:4222)
	URL string `yaml:"url"`
}

// PostgresConfig configures the activity log store
type PostgresConfig struct {
	// DSN is the Postgres connection string (empty = activity log disabled)
	DSN string `yaml:"dsn"`
}

// RuntimeConfig configures calls to the agent runtime on each host
type RuntimeConfig struct {
	// Port is the agent runtime port (default: 7889)
	Port int `yaml:"port"`
	// Timeout is the maximum time to wait for a runtime response
	Timeout time.Duration `yaml:"timeout"`
}

// GithubConfig configures the GitHub integration
type GithubConfig struct {
	// WebhookSecret verifies webhook deliveries
	WebhookSecret string `yaml:"webhook_secret"`
	// Token authenticates git pushes and API calls
	Token string `yaml:"token"`
	// Workflow is started for each opened issue
	Workflow string `yaml:"workflow"`
	// Workdir holds the working clones
	Workdir string `yaml:"workdir"`
	// APIBase overrides the GitHub API endpoint
	APIBase string `yaml:"api_base"`
	// CloneBase overrides the clone URL prefix
	CloneBase string `yaml:"clone_base"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      7888,
			Namespace: "default",
			Bucket:    "ROSTER_STORE",
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Runtime: RuntimeConfig{
			Port:    7889,
			Timeout: 2 * time.Minute,
		},
		Github: GithubConfig{
			Workflow: "ImplementFeature",
			Workdir:  "/var/lib/roster/workspaces",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port")
	}
	if c.Server.Namespace == "" {
		return fmt.Errorf("server.namespace is required")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.Runtime.Port <= 0 || c.Runtime.Port > 65535 {
		return fmt.Errorf("runtime.port must be a valid port")
	}
	if c.Runtime.Timeout <= 0 {
		return fmt.Errorf("runtime.timeout must be positive")
	}
	if c.Github.Workflow == "" {
		return fmt.Errorf("github.workflow is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.Namespace != "" {
		c.Server.Namespace = other.Server.Namespace
	}
	if other.Server.Bucket != "" {
		c.Server.Bucket = other.Server.Bucket
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// Postgres
	if other.Postgres.DSN != "" {
		c.Postgres.DSN = other.Postgres.DSN
	}

	// Runtime
	if other.Runtime.Port != 0 {
		c.Runtime.Port = other.Runtime.Port
	}
	if other.Runtime.Timeout != 0 {
		c.Runtime.Timeout = other.Runtime.Timeout
	}

	// Github
	if other.Github.WebhookSecret != "" {
		c.Github.WebhookSecret = other.Github.WebhookSecret
	}
	if other.Github.Token != "" {
		c.Github.Token = other.Github.Token
	}
	if other.Github.Workflow != "" {
		c.Github.Workflow = other.Github.Workflow
	}
	if other.Github.Workdir != "" {
		c.Github.Workdir = other.Github.Workdir
	}
	if other.Github.APIBase != "" {
		c.Github.APIBase = other.Github.APIBase
	}
	if other.Github.CloneBase != "" {
		c.Github.CloneBase = other.Github.CloneBase
	}
}
