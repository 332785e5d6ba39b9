package telemetry

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reglet-dev/egress/internal/application/ports"
)

// MetricsHandler counts denials by component, scheme and reason.
type MetricsHandler struct {
	denials *prometheus.CounterVec
}

// NewMetricsHandler registers the denial counter with reg. Registering twice
// against the same registry reuses the existing collector.
func NewMetricsHandler(reg prometheus.Registerer) (*MetricsHandler, error) {
	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "egress",
		Name:      "outbound_denials_total",
		Help:      "Outbound requests denied by the allow-list or block-list.",
	}, []string{"component", "scheme", "reason"})

	if err := reg.Register(denials); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		denials = existing
	}
	return &MetricsHandler{denials: denials}, nil
}

// Counter exposes the underlying collector.
func (m *MetricsHandler) Counter() *prometheus.CounterVec {
	return m.denials
}

// HandleDisallowedHost implements ports.DisallowedHostHandler.
func (m *MetricsHandler) HandleDisallowedHost(_ context.Context, req ports.DisallowedRequest) {
	m.denials.With(prometheus.Labels{
		"component": req.Component,
		"scheme":    req.Scheme,
		"reason":    req.Reason,
	}).Inc()
}
