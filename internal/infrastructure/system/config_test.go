package system

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigLoader_Load_FileNotExists(t *testing.T) {
	cfg, err := NewConfigLoader().Load("/nonexistent/runtime.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.Len(t, cfg.Variables.Providers, 1)
	assert.Equal(t, ProviderEnv, cfg.Variables.Providers[0].Type)
}

func TestConfigLoader_Load_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
variables:
  providers:
    - type: env
      prefix: MYAPP_VAR
    - type: static
      values:
        api_host: api.internal
    - type: file
      root: /run/secrets
      files:
        token: token.txt
    - type: vault
      address: https://vault.internal:8200
      token_env: VAULT_TOKEN
      mount: secret
      path_prefix: egress
      timeout: 5s
    - type: etcd
      endpoints: ["http://etcd-0:2379", "http://etcd-1:2379"]
      prefix: /egress/
    - type: redis
      address: redis:6379
      prefix: "egress:"
      db: 2

outbound_networking:
  blocked_networks: ["203.0.113.0/24", "198.51.100.7"]
  block_private_networks: true

redaction:
  patterns:
    - "password\\s*=\\s*\\S+"
  hash_mode:
    enabled: true
    salt: "test-salt"

telemetry:
  metrics: true
  denial_log_rate: 2.5
`)

	cfg, err := NewConfigLoader().Load(path)
	require.NoError(t, err)

	providers := cfg.Variables.Providers
	require.Len(t, providers, 6)
	assert.Equal(t, "MYAPP_VAR", providers[0].Prefix)
	assert.Equal(t, map[string]string{"api_host": "api.internal"}, providers[1].Values)
	assert.Equal(t, "/run/secrets", providers[2].Root)
	assert.Equal(t, "VAULT_TOKEN", providers[3].TokenEnv)
	assert.Equal(t, []string{"http://etcd-0:2379", "http://etcd-1:2379"}, providers[4].Endpoints)
	assert.Equal(t, 2, providers[5].DB)

	timeout, err := providers[3].TimeoutDuration(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, timeout)

	timeout, err = providers[4].TimeoutDuration(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, timeout)

	assert.Equal(t, []string{"203.0.113.0/24", "198.51.100.7"}, cfg.OutboundNetworking.BlockedNetworks)
	assert.True(t, cfg.OutboundNetworking.BlockPrivateNetworks)
	assert.True(t, cfg.Redaction.HashMode.Enabled)
	assert.Equal(t, "test-salt", cfg.Redaction.HashMode.Salt)
	assert.Len(t, cfg.Redaction.Patterns, 1)

	assert.True(t, cfg.Telemetry.Metrics)
	assert.InDelta(t, 2.5, cfg.Telemetry.DenialLogRate, 0.0001)
	assert.Equal(t, 20, cfg.Telemetry.DenialLogBurst, "unset fields keep defaults")
}

func TestConfigLoader_Load_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown provider", "variables:\n  providers:\n    - type: consul\n", "unknown provider type"},
		{"missing type", "variables:\n  providers:\n    - prefix: X\n", "provider type is required"},
		{"vault without token", "variables:\n  providers:\n    - type: vault\n      address: http://v\n", "token"},
		{"etcd without endpoints", "variables:\n  providers:\n    - type: etcd\n", "endpoints"},
		{"redis without address", "variables:\n  providers:\n    - type: redis\n", "address"},
		{"file without files", "variables:\n  providers:\n    - type: file\n", "files"},
		{"bad timeout", "variables:\n  providers:\n    - type: redis\n      address: r:6379\n      timeout: soon\n", "invalid timeout"},
		{"bad memory limit", "wasm:\n  memory_limit_mb: -5\n", "memory_limit_mb"},
		{"negative rate", "telemetry:\n  denial_log_rate: -1\n", "negative"},
		{"malformed yaml", "variables: [", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfigLoader().Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigLoader_Load_NoProvidersSection(t *testing.T) {
	cfg, err := NewConfigLoader().Load(writeConfig(t, "outbound_networking:\n  block_private_networks: true\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Variables.Providers, "an explicit file replaces the default provider list")
	assert.True(t, cfg.OutboundNetworking.BlockPrivateNetworks)
}
