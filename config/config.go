// Package config loads the gateway's runtime configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ledgergate/ledger"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// OperatorConfig locates the operator key material. The passphrase is
// resolved from the named environment variable, never stored in the file.
type OperatorConfig struct {
	AccountID     string `yaml:"account_id"`
	KeystorePath  string `yaml:"keystore"`
	PassphraseEnv string `yaml:"passphrase_env"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// TelemetryConfig tunes the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Headers  string `yaml:"headers"`
	Metrics  bool   `yaml:"metrics"`
	Traces   bool   `yaml:"traces"`
}

// LogConfig tunes the structured log sink.
type LogConfig struct {
	FilePath   string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Config captures the runtime configuration for ledgergated.
type Config struct {
	ListenAddress  string          `yaml:"listen"`
	Environment    string          `yaml:"environment"`
	Database       DatabaseConfig  `yaml:"database"`
	Operator       OperatorConfig  `yaml:"operator"`
	Nodes          []ledger.Node   `yaml:"nodes"`
	AttemptTimeout Duration        `yaml:"attempt_timeout"`
	PollInterval   Duration        `yaml:"poll_interval"`
	WorkerCount    int             `yaml:"workers"`
	Telemetry      TelemetryConfig `yaml:"telemetry"`
	Log            LogConfig       `yaml:"log"`
}

// Load reads and validates a configuration file. Environment references in
// the DSN (${VAR}) are expanded before use.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Database.DSN = os.ExpandEnv(cfg.Database.DSN)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for the fields the daemon cannot run
// without and applies defaults for the rest.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database dsn required")
	}
	if strings.TrimSpace(c.Operator.AccountID) == "" {
		return fmt.Errorf("config: operator account id required")
	}
	if _, err := ledger.ParseEntityID(c.Operator.AccountID); err != nil {
		return fmt.Errorf("config: operator account id: %w", err)
	}
	if strings.TrimSpace(c.Operator.KeystorePath) == "" {
		return fmt.Errorf("config: operator keystore path required")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("config: at least one node required")
	}
	for i, node := range c.Nodes {
		if strings.TrimSpace(node.BaseURL) == "" {
			return fmt.Errorf("config: node %d has no url", i)
		}
	}
	if c.ListenAddress == "" {
		c.ListenAddress = ":8087"
	}
	if c.AttemptTimeout.Duration == 0 {
		c.AttemptTimeout.Duration = 10 * time.Second
	}
	if c.PollInterval.Duration == 0 {
		c.PollInterval.Duration = 5 * time.Second
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	return nil
}

// OperatorPassphrase resolves the keystore passphrase from the environment.
func (c *Config) OperatorPassphrase() (string, error) {
	env := strings.TrimSpace(c.Operator.PassphraseEnv)
	if env == "" {
		return "", fmt.Errorf("config: operator passphrase_env required")
	}
	passphrase, ok := os.LookupEnv(env)
	if !ok {
		return "", fmt.Errorf("config: environment variable %s not set", env)
	}
	return passphrase, nil
}
