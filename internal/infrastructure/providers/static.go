package providers

import (
	"context"
	"fmt"

	"github.com/reglet-dev/egress/internal/domain/values"
	"github.com/reglet-dev/egress/internal/domain/variables"
)

// StaticProvider serves values fixed in configuration.
type StaticProvider struct {
	values map[values.VariableKey]string
}

// NewStaticProvider validates the names in vals and returns a provider.
func NewStaticProvider(vals map[string]string) (*StaticProvider, error) {
	p := &StaticProvider{values: make(map[values.VariableKey]string, len(vals))}
	for name, v := range vals {
		key, err := values.NewVariableKey(name)
		if err != nil {
			return nil, fmt.Errorf("static provider: %w", err)
		}
		p.values[key] = v
	}
	return p, nil
}

// Get implements ports.VariableProvider.
func (p *StaticProvider) Get(_ context.Context, key values.VariableKey) (string, bool, error) {
	v, ok := p.values[key]
	return v, ok, nil
}

// Kind implements ports.VariableProvider.
func (p *StaticProvider) Kind() variables.ProviderKind {
	return variables.ProviderKindStatic
}
