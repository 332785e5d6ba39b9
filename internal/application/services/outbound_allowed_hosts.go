package services

import (
	"context"
	"log/slog"

	"github.com/reglet-dev/egress/internal/application/ports"
	"github.com/reglet-dev/egress/internal/domain/outbound"
)

// OutboundAllowedHosts is an instance's handle on its allow-list. It is a
// small value; copies share the same underlying computation.
type OutboundAllowedHosts struct {
	shared    *SharedAllowedHosts
	handler   ports.DisallowedHostHandler
	component string
	instance  string
}

// NewOutboundAllowedHosts creates a handle. handler may be nil.
func NewOutboundAllowedHosts(shared *SharedAllowedHosts, handler ports.DisallowedHostHandler) OutboundAllowedHosts {
	return OutboundAllowedHosts{shared: shared, handler: handler}
}

// WithIdentity returns a copy that labels denial reports with the given
// component and instance.
func (h OutboundAllowedHosts) WithIdentity(component, instance string) OutboundAllowedHosts {
	h.component = component
	h.instance = instance
	return h
}

// Resolve waits for the allow-list.
func (h OutboundAllowedHosts) Resolve(ctx context.Context) (*outbound.AllowedHostsConfig, error) {
	return h.shared.Get(ctx)
}

// CheckURL reports whether address may be reached. Addresses without a
// scheme are interpreted with scheme. If the allow-list could not be
// computed the error is returned and nothing is retried.
func (h OutboundAllowedHosts) CheckURL(ctx context.Context, address, scheme string) (bool, error) {
	config, err := h.shared.Get(ctx)
	if err != nil {
		if ctx.Err() == nil {
			h.ReportDisallowed(ctx, ports.DisallowedRequest{
				Address: address,
				Scheme:  scheme,
				Reason:  ports.ReasonAllowedHostsUnavailable,
				Err:     err,
			})
		}
		return false, err
	}

	dest, err := outbound.ParseOutboundURL(address, scheme)
	if err != nil {
		h.ReportDisallowed(ctx, ports.DisallowedRequest{
			Address: address,
			Scheme:  scheme,
			Reason:  ports.ReasonInvalidDestination,
			Err:     err,
		})
		return false, err
	}

	if dest.IsAllowedBy(config) {
		return true, nil
	}

	h.ReportDisallowed(ctx, ports.DisallowedRequest{
		Address: address,
		Scheme:  dest.Scheme,
		Host:    dest.Host,
		Port:    dest.Port,
		Reason:  ports.ReasonNotAllowed,
	})
	return false, nil
}

// ReportDisallowed forwards a denial to the handler. A panicking handler is
// logged and otherwise ignored.
func (h OutboundAllowedHosts) ReportDisallowed(ctx context.Context, req ports.DisallowedRequest) {
	if h.handler == nil {
		return
	}
	if req.Component == "" {
		req.Component = h.component
	}
	if req.Instance == "" {
		req.Instance = h.instance
	}

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "disallowed host handler panicked",
				"component", req.Component,
				"instance", req.Instance,
				"panic", r)
		}
	}()
	h.handler.HandleDisallowedHost(ctx, req)
}
