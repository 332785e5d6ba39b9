// Package telemetry provides handlers for denied outbound requests.
package telemetry

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/reglet-dev/egress/internal/application/ports"
	"github.com/reglet-dev/egress/internal/infrastructure/sensitivedata"
)

// LogHandler logs denials. Output is rate limited so a guest retrying a
// forbidden destination in a loop cannot flood the log; dropped entries are
// counted and reported with the next entry that gets through.
type LogHandler struct {
	logger     *slog.Logger
	limiter    *rate.Limiter
	sensitive  ports.SensitiveValueProvider
	suppressed atomic.Int64
}

// NewLogHandler creates a handler allowing perSecond entries with the given
// burst. perSecond of zero disables limiting.
func NewLogHandler(logger *slog.Logger, perSecond float64, burst int) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &LogHandler{
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// WithSensitiveValues scrubs tracked secret values from logged errors.
func (h *LogHandler) WithSensitiveValues(provider ports.SensitiveValueProvider) *LogHandler {
	h.sensitive = provider
	return h
}

// Suppressed returns the number of entries dropped since the last logged one.
func (h *LogHandler) Suppressed() int64 {
	return h.suppressed.Load()
}

// HandleDisallowedHost implements ports.DisallowedHostHandler.
func (h *LogHandler) HandleDisallowedHost(ctx context.Context, req ports.DisallowedRequest) {
	if !h.limiter.Allow() {
		h.suppressed.Add(1)
		return
	}

	attrs := []any{
		"component", req.Component,
		"instance", req.Instance,
		"address", req.Address,
		"reason", req.Reason,
	}
	if n := h.suppressed.Swap(0); n > 0 {
		attrs = append(attrs, "suppressed", n)
	}

	switch req.Reason {
	case ports.ReasonNotAllowed:
		attrs = append(attrs, "suggested_entry", SuggestedEntry(req))
		h.logger.WarnContext(ctx,
			"outbound request to a host that is not allowed; add it to the component's allowed_outbound_hosts",
			attrs...)
	case ports.ReasonBlockedNetwork:
		h.logger.WarnContext(ctx, "outbound request to a blocked network", attrs...)
	case ports.ReasonAllowedHostsUnavailable:
		attrs = append(attrs, "error", sensitivedata.SafeError(req.Err, h.sensitive))
		h.logger.ErrorContext(ctx, "allowed outbound hosts unavailable; request denied", attrs...)
	case ports.ReasonInvalidDestination:
		attrs = append(attrs, "error", sensitivedata.SafeError(req.Err, h.sensitive))
		h.logger.WarnContext(ctx, "outbound request to an unparseable destination", attrs...)
	default:
		h.logger.WarnContext(ctx, "outbound request denied", attrs...)
	}
}

// SuggestedEntry returns the allowed_outbound_hosts entry that would permit
// the request, or "" if the request lacks a scheme or host.
func SuggestedEntry(req ports.DisallowedRequest) string {
	if req.Scheme == "" || req.Host == "" {
		return ""
	}
	host := req.Host
	if req.Port > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(req.Port))
	} else if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		host = "[" + host + "]"
	}
	return req.Scheme + "://" + host
}
