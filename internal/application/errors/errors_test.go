package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/reglet-dev/egress/internal/domain/values"
	"github.com/stretchr/testify/assert"
)

func TestResolveError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("wrapped: %w", NewResolveError(ProviderFailed, "api_host", cause))

	assert.True(t, IsProviderFailed(err))
	assert.False(t, IsUndefined(err))
	assert.False(t, IsUndeclared(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `provider failed for variable "api_host"`)

	assert.Equal(t, `no value for variable "token"`, NewResolveError(Undefined, "token", nil).Error())
	assert.Equal(t, `no variable for "nope"`, NewResolveError(Undeclared, "nope", nil).Error())
	assert.False(t, IsUndefined(errors.New("plain")))
}

func TestMissingVariablesError(t *testing.T) {
	err := NewMissingVariablesError([]values.VariableKey{
		values.MustNewVariableKey("a"),
		values.MustNewVariableKey("b.c"),
	})
	assert.Equal(t, "missing values for 2 variable(s): a, b.c", err.Error())

	var target *MissingVariablesError
	assert.ErrorAs(t, fmt.Errorf("validate: %w", err), &target)
	assert.Len(t, target.Keys, 2)
}

func TestConfigurationError(t *testing.T) {
	cause := errors.New("bad cidr")
	err := NewConfigurationError("outbound_networking", "invalid blocked network", cause)
	assert.Equal(t, "configuration error (outbound_networking): invalid blocked network: bad cidr", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "configuration error (variables): empty", NewConfigurationError("variables", "empty", nil).Error())
}
