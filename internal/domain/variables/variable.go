// Package variables defines domain types for application variables:
// declarations, provider kinds and expression templates.
package variables

import (
	"fmt"
	"strings"
)

// Variable is a named configuration slot declared by an application.
// Secret only affects whether the resolved value may be displayed; it never
// changes how the value is resolved.
type Variable struct {
	Default     *string `yaml:"default,omitempty" json:"default,omitempty"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool    `yaml:"required,omitempty" json:"required,omitempty"`
	Secret      bool    `yaml:"secret,omitempty" json:"secret,omitempty"`
}

// WithDefault returns a declaration with the given default value.
func WithDefault(value string) Variable {
	return Variable{Default: &value}
}

// RequiredVariable returns a declaration without a default.
func RequiredVariable() Variable {
	return Variable{Required: true}
}

// HasDefault reports whether the declaration carries a default value.
func (v Variable) HasDefault() bool {
	return v.Default != nil
}

// Validate checks the declaration is internally consistent.
func (v Variable) Validate() error {
	if v.Required && v.Default != nil {
		return fmt.Errorf("variable cannot be required and have a default")
	}
	return nil
}

// ProviderKind describes the dynamism of a variable provider.
type ProviderKind int

const (
	// ProviderKindDynamic providers may answer differently at runtime and are
	// only queried on actual use.
	ProviderKindDynamic ProviderKind = iota
	// ProviderKindStatic providers are fixed for the process lifetime and may
	// be queried during pre-flight validation.
	ProviderKindStatic
)

// String returns the configuration name of the kind.
func (k ProviderKind) String() string {
	switch k {
	case ProviderKindStatic:
		return "static"
	case ProviderKindDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (k ProviderKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *ProviderKind) UnmarshalText(data []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(data))) {
	case "static":
		*k = ProviderKindStatic
	case "dynamic", "":
		*k = ProviderKindDynamic
	default:
		return fmt.Errorf("unknown provider kind %q (expected static or dynamic)", string(data))
	}
	return nil
}
