package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	apperrors "github.com/reglet-dev/egress/internal/application/errors"
)

// VariablesValidator runs the pre-flight variable check when an application
// is configured, before any instance is prepared.
type VariablesValidator struct{}

// NewVariablesValidator creates a validator.
func NewVariablesValidator() *VariablesValidator {
	return &VariablesValidator{}
}

// ConfigureApp validates that every declared variable can be resolved.
func (v *VariablesValidator) ConfigureApp(ctx context.Context, resolver *ProviderResolver) error {
	err := resolver.ValidateVariableExistence(ctx)
	if err == nil {
		return nil
	}

	var missing *apperrors.MissingVariablesError
	if errors.As(err, &missing) {
		names := make([]string, len(missing.Keys))
		for i, k := range missing.Keys {
			names[i] = k.String()
		}
		slog.ErrorContext(ctx, "variables have no value",
			"count", len(names),
			"variables", strings.Join(names, ","))
		return err
	}

	slog.ErrorContext(ctx, "variable validation failed", "error", err)
	return err
}
