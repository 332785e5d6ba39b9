// Package entities contains the manifest entities an application is built from.
package entities

import (
	"fmt"
	"sort"

	"github.com/reglet-dev/egress/internal/domain/values"
	"github.com/reglet-dev/egress/internal/domain/variables"
)

// Application is a loaded manifest: declared variables plus the components
// that run inside the sandbox.
type Application struct {
	Variables       map[string]variables.Variable `yaml:"variables,omitempty" json:"variables,omitempty"`
	Components      map[string]Component          `yaml:"components,omitempty" json:"components,omitempty"`
	ManifestVersion string                        `yaml:"manifest_version" json:"manifest_version"`
}

// Component is one sandboxed unit of code and its outbound policy.
type Component struct {
	// Variables maps component-local names to templates over application
	// variables, e.g. auth: "Bearer {{ token }}".
	Variables            map[string]string `yaml:"variables,omitempty" json:"variables,omitempty"`
	AllowedOutboundHosts []string          `yaml:"allowed_outbound_hosts,omitempty" json:"allowed_outbound_hosts,omitempty"`
}

// ComponentIDs returns component identifiers in sorted order.
func (a *Application) ComponentIDs() []string {
	ids := make([]string, 0, len(a.Components))
	for id := range a.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Component returns the component with the given id.
func (a *Application) Component(id string) (Component, bool) {
	c, ok := a.Components[id]
	return c, ok
}

// Validate checks entity-level invariants: variable names are valid keys,
// declarations are consistent, and component ids are non-empty.
func (a *Application) Validate() error {
	for name, v := range a.Variables {
		if _, err := values.NewVariableKey(name); err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
	}
	for id, c := range a.Components {
		if id == "" {
			return fmt.Errorf("component id cannot be empty")
		}
		for name := range c.Variables {
			if _, err := values.NewVariableKey(name); err != nil {
				return fmt.Errorf("component %q variable %q: %w", id, name, err)
			}
		}
	}
	return nil
}
