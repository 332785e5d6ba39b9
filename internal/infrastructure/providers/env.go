// Package providers implements variable providers backed by the process
// environment, static maps, files, HashiCorp Vault, etcd and Redis.
package providers

import (
	"context"
	"os"
	"strings"

	"github.com/reglet-dev/egress/internal/domain/values"
	"github.com/reglet-dev/egress/internal/domain/variables"
)

// DefaultEnvPrefix is prepended to environment variable names.
const DefaultEnvPrefix = "EGRESS_VARIABLE"

// EnvProvider reads variables from the environment. The key "db.host" is
// read from EGRESS_VARIABLE_DB_HOST.
type EnvProvider struct {
	lookup func(string) (string, bool)
	prefix string
}

// NewEnvProvider creates an environment provider. An empty prefix uses
// DefaultEnvPrefix.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvProvider{prefix: strings.TrimSuffix(prefix, "_"), lookup: os.LookupEnv}
}

// EnvName returns the environment variable consulted for key.
func (p *EnvProvider) EnvName(key values.VariableKey) string {
	name := strings.NewReplacer(".", "_", "-", "_").Replace(key.String())
	return p.prefix + "_" + strings.ToUpper(name)
}

// Get implements ports.VariableProvider.
func (p *EnvProvider) Get(_ context.Context, key values.VariableKey) (string, bool, error) {
	value, ok := p.lookup(p.EnvName(key))
	return value, ok, nil
}

// Kind implements ports.VariableProvider.
func (p *EnvProvider) Kind() variables.ProviderKind {
	return variables.ProviderKindStatic
}
