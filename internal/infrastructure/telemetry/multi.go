package telemetry

import (
	"context"

	"github.com/reglet-dev/egress/internal/application/ports"
)

// MultiHandler fans a denial out to several handlers in order.
type MultiHandler []ports.DisallowedHostHandler

// NewMultiHandler drops nil entries. It returns nil when nothing is left so
// callers can skip reporting entirely.
func NewMultiHandler(handlers ...ports.DisallowedHostHandler) ports.DisallowedHostHandler {
	var m MultiHandler
	for _, h := range handlers {
		if h != nil {
			m = append(m, h)
		}
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}

// HandleDisallowedHost implements ports.DisallowedHostHandler.
func (m MultiHandler) HandleDisallowedHost(ctx context.Context, req ports.DisallowedRequest) {
	for _, h := range m {
		h.HandleDisallowedHost(ctx, req)
	}
}
