// Package ports defines interfaces for infrastructure dependencies.
// These are the "ports" in hexagonal architecture - abstractions that
// the application layer depends on but doesn't implement.
package ports

import (
	"context"

	"github.com/reglet-dev/egress/internal/domain/values"
	"github.com/reglet-dev/egress/internal/domain/variables"
)

// VariableProvider supplies values for declared variables.
// Implementations must be safe for concurrent use.
type VariableProvider interface {
	// Get looks up key. found=false with a nil error means the provider
	// has no opinion and the next provider should be consulted.
	Get(ctx context.Context, key values.VariableKey) (value string, found bool, err error)

	// Kind reports whether the provider may be queried during pre-flight
	// validation (Static) or only on actual use (Dynamic).
	Kind() variables.ProviderKind
}

// Denial reasons reported to a DisallowedHostHandler.
const (
	ReasonNotAllowed              = "not_allowed"
	ReasonAllowedHostsUnavailable = "allowed_hosts_unavailable"
	ReasonBlockedNetwork          = "blocked_network"
	ReasonInvalidDestination      = "invalid_destination"
)

// DisallowedRequest describes an outbound attempt that was denied.
type DisallowedRequest struct {
	Err       error // set when the allow-list could not be computed
	Component string
	Instance  string
	Address   string
	Scheme    string
	Host      string
	Reason    string
	Port      int
}

// DisallowedHostHandler is notified of every denied outbound attempt.
// It must not block for long; it runs on the caller's goroutine.
type DisallowedHostHandler interface {
	HandleDisallowedHost(ctx context.Context, req DisallowedRequest)
}

// DisallowedHostHandlerFunc adapts a function to DisallowedHostHandler.
type DisallowedHostHandlerFunc func(ctx context.Context, req DisallowedRequest)

// HandleDisallowedHost calls f(ctx, req).
func (f DisallowedHostHandlerFunc) HandleDisallowedHost(ctx context.Context, req DisallowedRequest) {
	f(ctx, req)
}
