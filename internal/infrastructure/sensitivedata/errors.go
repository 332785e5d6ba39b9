package sensitivedata

import (
	"errors"
	"strings"

	"github.com/reglet-dev/egress/internal/application/ports"
)

// Placeholder replaces a tracked value in redacted text.
const Placeholder = "[REDACTED]"

// Scrub replaces every tracked value in s.
func Scrub(s string, provider ports.SensitiveValueProvider) string {
	if provider == nil {
		return s
	}
	for _, secret := range provider.AllValues() {
		if secret != "" && strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, Placeholder)
		}
	}
	return s
}

// SafeError wraps an error, redacting any sensitive values in the message.
// The original error stays reachable through errors.As and errors.Is.
func SafeError(err error, provider ports.SensitiveValueProvider) error {
	if err == nil {
		return nil
	}

	msg := Scrub(err.Error(), provider)
	if msg == err.Error() {
		return err // No redaction needed, return original error to preserve type
	}
	return &redactedError{msg: msg, cause: err}
}

type redactedError struct {
	cause error
	msg   string
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.cause }

// IsRedacted reports whether err was rewritten by SafeError.
func IsRedacted(err error) bool {
	var re *redactedError
	return errors.As(err, &re)
}
