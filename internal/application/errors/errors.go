// Package apperrors defines application-level error types.
package apperrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/reglet-dev/egress/internal/domain/values"
)

// ResolveErrorKind classifies why a variable could not be resolved.
type ResolveErrorKind int

const (
	// Undeclared means the key is not in the declaration table.
	Undeclared ResolveErrorKind = iota
	// Undefined means no provider had a value and there is no default.
	Undefined
	// ProviderFailed means a provider returned an error.
	ProviderFailed
	// InvalidTemplate means an expression could not be parsed.
	InvalidTemplate
)

func (k ResolveErrorKind) String() string {
	switch k {
	case Undeclared:
		return "undeclared"
	case Undefined:
		return "undefined"
	case ProviderFailed:
		return "provider failed"
	case InvalidTemplate:
		return "invalid template"
	default:
		return "unknown"
	}
}

// ResolveError indicates a variable or template could not be resolved.
type ResolveError struct {
	Cause error
	Key   string // Key or template text that failed
	Kind  ResolveErrorKind
}

func (e *ResolveError) Error() string {
	switch e.Kind {
	case Undeclared:
		return fmt.Sprintf("no variable for %q", e.Key)
	case Undefined:
		return fmt.Sprintf("no value for variable %q", e.Key)
	case ProviderFailed:
		return fmt.Sprintf("provider failed for variable %q: %v", e.Key, e.Cause)
	case InvalidTemplate:
		return fmt.Sprintf("invalid template %q: %v", e.Key, e.Cause)
	default:
		return fmt.Sprintf("cannot resolve %q", e.Key)
	}
}

func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// NewResolveError creates a new resolve error.
func NewResolveError(kind ResolveErrorKind, key string, cause error) *ResolveError {
	return &ResolveError{
		Kind:  kind,
		Key:   key,
		Cause: cause,
	}
}

// IsResolveError reports whether err is a ResolveError of the given kind.
func IsResolveError(err error, kind ResolveErrorKind) bool {
	var re *ResolveError
	return errors.As(err, &re) && re.Kind == kind
}

// IsUndeclared reports whether err is an Undeclared resolve error.
func IsUndeclared(err error) bool { return IsResolveError(err, Undeclared) }

// IsUndefined reports whether err is an Undefined resolve error.
func IsUndefined(err error) bool { return IsResolveError(err, Undefined) }

// IsProviderFailed reports whether err is a ProviderFailed resolve error.
func IsProviderFailed(err error) bool { return IsResolveError(err, ProviderFailed) }

// MissingVariablesError aggregates every declared variable that has no
// default and no value from any static provider.
type MissingVariablesError struct {
	Keys []values.VariableKey
}

func (e *MissingVariablesError) Error() string {
	names := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		names[i] = k.String()
	}
	return fmt.Sprintf("missing values for %d variable(s): %s", len(names), strings.Join(names, ", "))
}

// NewMissingVariablesError creates a new missing variables error.
func NewMissingVariablesError(keys []values.VariableKey) *MissingVariablesError {
	return &MissingVariablesError{Keys: keys}
}

// ConfigurationError indicates system config or setup issue.
type ConfigurationError struct {
	Cause   error
	Aspect  string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error (%s): %s: %v", e.Aspect, e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Aspect, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(aspect, message string, cause error) *ConfigurationError {
	return &ConfigurationError{
		Aspect:  aspect,
		Message: message,
		Cause:   cause,
	}
}
