package services

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"

	"github.com/google/uuid"

	apperrors "github.com/reglet-dev/egress/internal/application/errors"
	"github.com/reglet-dev/egress/internal/application/ports"
	"github.com/reglet-dev/egress/internal/domain/entities"
	"github.com/reglet-dev/egress/internal/domain/outbound"
	"github.com/reglet-dev/egress/internal/domain/variables"
)

// Values for the error.type log attribute.
const (
	errorTypeVariableResolution = "variable_resolution_failed"
	errorTypeInvalidAllowedHost = "invalid_allowed_hosts"
	errorTypeDestinationBlocked = "destination_ip_prohibited"
)

// OutboundNetworkingConfig is the runtime (operator) side of the policy.
type OutboundNetworkingConfig struct {
	BlockedNetworks      []string
	BlockPrivateNetworks bool
}

// OutboundNetworking builds per-instance outbound policy for an application.
type OutboundNetworking struct {
	handler ports.DisallowedHostHandler
}

// NewOutboundNetworking creates the service. handler may be nil.
func NewOutboundNetworking(handler ports.DisallowedHostHandler) *OutboundNetworking {
	return &OutboundNetworking{handler: handler}
}

// AppState is the validated outbound configuration of one application.
type AppState struct {
	resolver   *ProviderResolver
	handler    ports.DisallowedHostHandler
	components map[string][]string
	blocked    outbound.BlockedNetworks
}

// ConfigureApp checks every component's allowed_outbound_hosts and builds
// the block-list. Entries without placeholders are parsed now; entries with
// placeholders must reference declared variables and are parsed per instance.
func (n *OutboundNetworking) ConfigureApp(
	ctx context.Context,
	app *entities.Application,
	resolver *ProviderResolver,
	cfg OutboundNetworkingConfig,
) (*AppState, error) {
	blocked, err := outbound.NewBlockedNetworks(cfg.BlockedNetworks, cfg.BlockPrivateNetworks)
	if err != nil {
		return nil, apperrors.NewConfigurationError("outbound_networking", "invalid blocked_networks", err)
	}

	components := make(map[string][]string, len(app.Components))
	for _, id := range app.ComponentIDs() {
		hosts := app.Components[id].AllowedOutboundHosts
		for _, entry := range hosts {
			if err := validateAllowedHostEntry(resolver, entry); err != nil {
				return nil, apperrors.NewConfigurationError("allowed_outbound_hosts",
					fmt.Sprintf("component %q", id), err)
			}
			if entry == outbound.AllowAllEntry {
				slog.WarnContext(ctx, "component allows all outbound hosts", "component", id)
			}
		}
		components[id] = append([]string(nil), hosts...)
	}

	return &AppState{
		resolver:   resolver,
		handler:    n.handler,
		components: components,
		blocked:    blocked,
	}, nil
}

func validateAllowedHostEntry(resolver *ProviderResolver, entry string) error {
	tmpl, err := variables.ParseTemplate(entry)
	if err != nil {
		return outbound.NewParseError(entry, "invalid template", err)
	}
	if !tmpl.IsLiteral() {
		return resolver.CheckTemplate(entry)
	}
	_, err = outbound.ParseAllowedHosts([]string{entry}, nil)
	return err
}

// ComponentIDs returns configured components in sorted order.
func (s *AppState) ComponentIDs() []string {
	ids := make([]string, 0, len(s.components))
	for id := range s.components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BlockedNetworks returns the runtime block-list.
func (s *AppState) BlockedNetworks() outbound.BlockedNetworks {
	return s.blocked
}

// Prepare creates an instance of componentID. The allow-list computation
// starts immediately in the background and is shared by every check the
// instance makes.
func (s *AppState) Prepare(ctx context.Context, componentID string) (*Instance, error) {
	hosts, ok := s.components[componentID]
	if !ok {
		return nil, fmt.Errorf("unknown component %q", componentID)
	}

	shared := NewSharedAllowedHosts(func(ctx context.Context) (*outbound.AllowedHostsConfig, error) {
		snapshot, err := s.resolver.PrepareFor(ctx, hosts)
		if err != nil {
			slog.ErrorContext(ctx, "error resolving variables in allowed_outbound_hosts",
				"error.type", errorTypeVariableResolution,
				"component", componentID,
				"error", err)
			return nil, err
		}
		config, err := outbound.ParseAllowedHosts(hosts, snapshot)
		if err != nil {
			slog.ErrorContext(ctx, "invalid allowed_outbound_hosts",
				"error.type", errorTypeInvalidAllowedHost,
				"component", componentID,
				"error", err)
			return nil, err
		}
		return config, nil
	})
	shared.Start(ctx)

	id := uuid.NewString()
	return &Instance{
		ID:        id,
		Component: componentID,
		hosts:     NewOutboundAllowedHosts(shared, s.handler).WithIdentity(componentID, id),
		blocked:   s.blocked,
	}, nil
}

// Instance is the outbound policy of one running component instance.
type Instance struct {
	ID        string
	Component string
	hosts     OutboundAllowedHosts
	blocked   outbound.BlockedNetworks
}

// AllowedHosts returns the instance's allow-list handle.
func (i *Instance) AllowedHosts() OutboundAllowedHosts {
	return i.hosts
}

// CheckURL checks a URL or host:port against the allow-list.
func (i *Instance) CheckURL(ctx context.Context, address, scheme string) (bool, error) {
	return i.hosts.CheckURL(ctx, address, scheme)
}

// CheckSocketAddr decides whether the guest may use a resolved socket
// address ("ip:port"). Binds are always denied. Errors deny.
func (i *Instance) CheckSocketAddr(ctx context.Context, addr string, use outbound.SocketAddrUse) bool {
	if use.IsBind() {
		slog.DebugContext(ctx, "socket bind denied",
			"component", i.Component,
			"instance", i.ID,
			"addr", addr,
			"use", use.String())
		return false
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		slog.DebugContext(ctx, "invalid socket address", "addr", addr, "error", err)
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		slog.DebugContext(ctx, "socket address is not an IP", "addr", addr)
		return false
	}

	allowed, err := i.hosts.CheckURL(ctx, addr, use.Scheme())
	if err != nil {
		slog.ErrorContext(ctx, "outbound allow-list check failed",
			"component", i.Component,
			"instance", i.ID,
			"addr", addr,
			"error", err)
		return false
	}
	if !allowed {
		return false
	}

	if i.blocked.IsBlocked(ip) {
		slog.ErrorContext(ctx, "destination IP prohibited by runtime config",
			"error.type", errorTypeDestinationBlocked,
			"component", i.Component,
			"instance", i.ID,
			"addr", addr)
		port, _ := strconv.Atoi(portStr)
		i.hosts.ReportDisallowed(ctx, ports.DisallowedRequest{
			Address: addr,
			Scheme:  use.Scheme(),
			Host:    ip.String(),
			Port:    port,
			Reason:  ports.ReasonBlockedNetwork,
		})
		return false
	}
	return true
}
