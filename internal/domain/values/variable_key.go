package values

import (
	"encoding/json"
	"fmt"
	"strings"
)

// VariableKey represents a validated variable identifier.
// A key is one or more dot-separated segments; each segment is made of
// ASCII letters, digits, '_' and '-'. Keys are compared by their
// normalized (trimmed, lower-cased) form.
type VariableKey struct {
	value string
}

// NewVariableKey creates a VariableKey with validation
func NewVariableKey(name string) (VariableKey, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return VariableKey{}, fmt.Errorf("variable name cannot be empty")
	}

	for i, segment := range strings.Split(name, ".") {
		if segment == "" {
			return VariableKey{}, fmt.Errorf("variable name %q: segment %d is empty", name, i)
		}
		for _, ch := range segment {
			if !isKeyChar(ch) {
				return VariableKey{}, fmt.Errorf("variable name %q: invalid character %q", name, ch)
			}
		}
	}

	return VariableKey{value: name}, nil
}

// MustNewVariableKey creates a VariableKey or panics
func MustNewVariableKey(name string) VariableKey {
	k, err := NewVariableKey(name)
	if err != nil {
		panic(err)
	}
	return k
}

func isKeyChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '_' || ch == '-'
}

// String returns the normalized representation
func (k VariableKey) String() string {
	return k.value
}

// Segments returns the dot-separated path segments of the key.
func (k VariableKey) Segments() []string {
	if k.value == "" {
		return nil
	}
	return strings.Split(k.value, ".")
}

// IsEmpty returns true if this is the zero value
func (k VariableKey) IsEmpty() bool {
	return k.value == ""
}

// Equals checks if two keys are equal
func (k VariableKey) Equals(other VariableKey) bool {
	return k.value == other.value
}

// MarshalText implements encoding.TextMarshaler
func (k VariableKey) MarshalText() ([]byte, error) {
	return []byte(k.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *VariableKey) UnmarshalText(data []byte) error {
	key, err := NewVariableKey(string(data))
	if err != nil {
		return err
	}
	*k = key
	return nil
}

// MarshalJSON implements json.Marshaler
func (k VariableKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (k *VariableKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid variable key JSON: %w", err)
	}
	return k.UnmarshalText([]byte(s))
}
