// Package outbound defines the domain model for outbound network policy:
// allow-list rules parsed from application configuration, the IP block-list
// supplied by runtime configuration, and the socket operations they guard.
package outbound

import "fmt"

// AnyScheme matches every protocol scheme.
const AnyScheme = "*"

// wellKnownPorts maps schemes to the port used when an entry omits one.
var wellKnownPorts = map[string]int{
	"http":     80,
	"https":    443,
	"ws":       80,
	"wss":      443,
	"redis":    6379,
	"rediss":   6379,
	"mysql":    3306,
	"postgres": 5432,
	"mqtt":     1883,
	"mqtts":    8883,
}

// DefaultPort returns the well-known port for scheme, if it has one.
func DefaultPort(scheme string) (int, bool) {
	port, ok := wellKnownPorts[scheme]
	return port, ok
}

// validateScheme checks scheme = "*" | ALPHA *(ALPHA / DIGIT / "+" / "-" / ".").
func validateScheme(scheme string) error {
	if scheme == "" {
		return fmt.Errorf("scheme cannot be empty")
	}
	if scheme == AnyScheme {
		return nil
	}
	for i, ch := range scheme {
		isAlpha := ch >= 'a' && ch <= 'z'
		if i == 0 && !isAlpha {
			return fmt.Errorf("scheme %q must start with a letter", scheme)
		}
		if !isAlpha && !(ch >= '0' && ch <= '9') && ch != '+' && ch != '-' && ch != '.' {
			return fmt.Errorf("scheme %q contains invalid character %q", scheme, ch)
		}
	}
	return nil
}
