// Package system loads the runtime configuration file: where variable values
// come from, which networks are blocked, and how logs are redacted. It is
// supplied by the operator, separately from the application manifest.
package system

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Provider types accepted in variables.providers.
const (
	ProviderEnv    = "env"
	ProviderStatic = "static"
	ProviderFile   = "file"
	ProviderVault  = "vault"
	ProviderEtcd   = "etcd"
	ProviderRedis  = "redis"
)

// Config represents the runtime configuration file.
type Config struct {
	Variables          VariablesConfig          `yaml:"variables"`
	OutboundNetworking OutboundNetworkingConfig `yaml:"outbound_networking"`
	Redaction          RedactionConfig          `yaml:"redaction"`
	Telemetry          TelemetryConfig          `yaml:"telemetry"`
	Wasm               WasmConfig               `yaml:"wasm"`
}

// VariablesConfig lists variable providers in lookup order.
type VariablesConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig configures one variable provider. Which fields apply
// depends on Type.
type ProviderConfig struct {
	Values      map[string]string `yaml:"values"`       // static
	Files       map[string]string `yaml:"files"`        // file: variable -> path
	Type        string            `yaml:"type"`         // env, static, file, vault, etcd, redis
	Prefix      string            `yaml:"prefix"`       // env, etcd, redis
	Root        string            `yaml:"root"`         // file
	Address     string            `yaml:"address"`      // vault, redis
	Token       string            `yaml:"token"`        // vault
	TokenEnv    string            `yaml:"token_env"`    // vault
	Mount       string            `yaml:"mount"`        // vault
	PathPrefix  string            `yaml:"path_prefix"`  // vault
	Username    string            `yaml:"username"`     // etcd, redis
	PasswordEnv string            `yaml:"password_env"` // etcd, redis
	Timeout     string            `yaml:"timeout"`      // vault, etcd, redis
	Endpoints   []string          `yaml:"endpoints"`    // etcd
	DB          int               `yaml:"db"`           // redis
}

// TimeoutDuration parses Timeout, falling back to def when unset.
func (p ProviderConfig) TimeoutDuration(def time.Duration) (time.Duration, error) {
	if p.Timeout == "" {
		return def, nil
	}
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, fmt.Errorf("provider %s: invalid timeout %q: %w", p.Type, p.Timeout, err)
	}
	return d, nil
}

// Validate checks that the fields required by the provider type are set.
func (p ProviderConfig) Validate() error {
	switch p.Type {
	case ProviderEnv, ProviderStatic:
	case ProviderFile:
		if len(p.Files) == 0 {
			return fmt.Errorf("provider file: files cannot be empty")
		}
	case ProviderVault:
		if p.Address == "" {
			return fmt.Errorf("provider vault: address is required")
		}
		if p.Token == "" && p.TokenEnv == "" {
			return fmt.Errorf("provider vault: token or token_env is required")
		}
	case ProviderEtcd:
		if len(p.Endpoints) == 0 {
			return fmt.Errorf("provider etcd: endpoints are required")
		}
	case ProviderRedis:
		if p.Address == "" {
			return fmt.Errorf("provider redis: address is required")
		}
	case "":
		return fmt.Errorf("provider type is required")
	default:
		return fmt.Errorf("unknown provider type %q", p.Type)
	}
	_, err := p.TimeoutDuration(0)
	return err
}

// OutboundNetworkingConfig is the operator's block-list.
type OutboundNetworkingConfig struct {
	BlockedNetworks      []string `yaml:"blocked_networks"`
	BlockPrivateNetworks bool     `yaml:"block_private_networks"`
}

// RedactionConfig configures how sensitive data is sanitized in logs.
type RedactionConfig struct {
	HashMode        HashModeConfig `yaml:"hash_mode"`
	Patterns        []string       `yaml:"patterns"`
	DisableGitleaks bool           `yaml:"disable_gitleaks"`
}

// HashModeConfig controls hash-based redaction.
type HashModeConfig struct {
	Salt    string `yaml:"salt"`
	Enabled bool   `yaml:"enabled"`
}

// TelemetryConfig controls how denials are reported.
type TelemetryConfig struct {
	// DenialLogRate is the sustained number of denial log lines per second.
	DenialLogRate  float64 `yaml:"denial_log_rate"`
	DenialLogBurst int     `yaml:"denial_log_burst"`
	Metrics        bool    `yaml:"metrics"`
}

// WasmConfig controls the guest runtime.
type WasmConfig struct {
	// MemoryLimitMB caps guest memory: 0 selects the default, -1 disables the cap.
	MemoryLimitMB int `yaml:"memory_limit_mb"`
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	for i, p := range c.Variables.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("variables.providers[%d]: %w", i, err)
		}
	}
	if c.Telemetry.DenialLogRate < 0 || c.Telemetry.DenialLogBurst < 0 {
		return fmt.Errorf("telemetry: denial log rate and burst cannot be negative")
	}
	if c.Wasm.MemoryLimitMB < -1 {
		return fmt.Errorf("wasm: memory_limit_mb must be >= -1")
	}
	return nil
}

// ConfigLoader loads runtime configuration from disk.
type ConfigLoader struct{}

// NewConfigLoader creates a new runtime config loader.
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// DefaultConfig returns the configuration used when no file exists:
// variables come from the environment only and nothing is blocked.
func DefaultConfig() *Config {
	return &Config{
		Variables: VariablesConfig{
			Providers: []ProviderConfig{{Type: ProviderEnv}},
		},
		OutboundNetworking: OutboundNetworkingConfig{
			BlockedNetworks: []string{},
		},
		Redaction: RedactionConfig{
			Patterns: []string{},
		},
		Telemetry: TelemetryConfig{
			DenialLogRate:  10,
			DenialLogBurst: 20,
		},
	}
}

// Load loads the runtime configuration from path. A missing file yields
// DefaultConfig(); fields absent from the file keep their defaults.
func (l *ConfigLoader) Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	//nolint:gosec // G304: path is the operator-provided config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime config: %w", err)
	}

	config := DefaultConfig()
	config.Variables.Providers = nil
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse runtime config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid runtime config %s: %w", path, err)
	}

	return config, nil
}
