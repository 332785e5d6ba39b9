// Package container provides dependency injection for the application.
package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/reglet-dev/egress/internal/application/errors"
	"github.com/reglet-dev/egress/internal/application/ports"
	"github.com/reglet-dev/egress/internal/application/services"
	"github.com/reglet-dev/egress/internal/domain/entities"
	"github.com/reglet-dev/egress/internal/infrastructure/config"
	"github.com/reglet-dev/egress/internal/infrastructure/providers"
	"github.com/reglet-dev/egress/internal/infrastructure/redaction"
	"github.com/reglet-dev/egress/internal/infrastructure/sensitivedata"
	"github.com/reglet-dev/egress/internal/infrastructure/system"
	"github.com/reglet-dev/egress/internal/infrastructure/telemetry"
	"github.com/reglet-dev/egress/internal/infrastructure/wasm"
)

// Container holds all application dependencies.
type Container struct {
	runtimeCfg     *system.Config
	manifestLoader *config.ManifestLoader
	providers      *providers.Set
	sensitive      *sensitivedata.Provider
	redactor       *redaction.Redactor
	metrics        *telemetry.MetricsHandler
	networking     *services.OutboundNetworking
	validator      *services.VariablesValidator
	logger         *slog.Logger
}

// Options configure the container.
type Options struct {
	// Logger is used as is when set. Otherwise a text logger writing to
	// LogOutput through the redactor is built.
	Logger            *slog.Logger
	LogOutput         io.Writer
	LogLevel          slog.Level
	RuntimeConfigPath string
	// Registerer receives the denial metrics when telemetry.metrics is set.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// LookupEnv replaces os.LookupEnv for env-backed providers and
	// credentials.
	LookupEnv func(string) (string, bool)
}

// New loads the runtime configuration and builds every long-lived
// dependency. Close releases provider connections.
func New(opts Options) (*Container, error) {
	runtimeCfg, err := system.NewConfigLoader().Load(opts.RuntimeConfigPath)
	if err != nil {
		return nil, apperrors.NewConfigurationError("runtime_config", "failed to load runtime config", err)
	}

	manifestLoader, err := config.NewManifestLoader()
	if err != nil {
		return nil, err
	}

	sensitive := sensitivedata.NewProvider()
	redactor, err := redaction.New(redaction.Config{
		Tracked:         sensitive,
		Patterns:        runtimeCfg.Redaction.Patterns,
		HashMode:        runtimeCfg.Redaction.HashMode.Enabled,
		Salt:            runtimeCfg.Redaction.HashMode.Salt,
		DisableGitleaks: runtimeCfg.Redaction.DisableGitleaks,
	})
	if err != nil {
		return nil, apperrors.NewConfigurationError("redaction", "invalid redaction config", err)
	}

	logger := opts.Logger
	switch {
	case logger != nil:
	case opts.LogOutput != nil:
		logger = slog.New(slog.NewTextHandler(redaction.NewWriter(opts.LogOutput, redactor),
			&slog.HandlerOptions{Level: opts.LogLevel}))
	default:
		logger = slog.Default()
	}

	var metrics *telemetry.MetricsHandler
	if runtimeCfg.Telemetry.Metrics {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if metrics, err = telemetry.NewMetricsHandler(reg); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	set, err := providers.NewFactoryWithEnv(opts.LookupEnv).Build(runtimeCfg.Variables.Providers)
	if err != nil {
		return nil, apperrors.NewConfigurationError("variables", "invalid provider config", err)
	}

	c := &Container{
		runtimeCfg:     runtimeCfg,
		manifestLoader: manifestLoader,
		providers:      set,
		sensitive:      sensitive,
		redactor:       redactor,
		metrics:        metrics,
		validator:      services.NewVariablesValidator(),
		logger:         logger,
	}
	c.networking = services.NewOutboundNetworking(c.denialHandler())
	return c, nil
}

func (c *Container) denialHandler() ports.DisallowedHostHandler {
	logHandler := telemetry.NewLogHandler(c.logger,
		c.runtimeCfg.Telemetry.DenialLogRate,
		c.runtimeCfg.Telemetry.DenialLogBurst).WithSensitiveValues(c.sensitive)
	if c.metrics == nil {
		return logHandler
	}
	return telemetry.NewMultiHandler(logHandler, c.metrics)
}

// App is a loaded manifest together with its resolver and outbound policy.
type App struct {
	Application *entities.Application
	Resolver    *services.ProviderResolver
	Outbound    *services.AppState
}

// LoadApp loads the manifest at path, builds its resolver over the
// configured providers, and checks its outbound configuration.
func (c *Container) LoadApp(ctx context.Context, path string) (*App, error) {
	application, err := c.manifestLoader.Load(path)
	if err != nil {
		return nil, apperrors.NewConfigurationError("manifest", path, err)
	}

	resolver, err := services.NewProviderResolver(application.Variables,
		services.WithSensitiveValues(c.sensitive))
	if err != nil {
		return nil, apperrors.NewConfigurationError("variables", "invalid variable declarations", err)
	}
	for _, id := range application.ComponentIDs() {
		if err := resolver.AddComponentVariables(id, application.Components[id].Variables); err != nil {
			return nil, apperrors.NewConfigurationError("variables", fmt.Sprintf("component %q", id), err)
		}
	}
	for _, p := range c.providers.Providers {
		resolver.AddProvider(p)
	}

	state, err := c.networking.ConfigureApp(ctx, application, resolver, services.OutboundNetworkingConfig{
		BlockedNetworks:      c.runtimeCfg.OutboundNetworking.BlockedNetworks,
		BlockPrivateNetworks: c.runtimeCfg.OutboundNetworking.BlockPrivateNetworks,
	})
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "application loaded",
		"manifest", path,
		"components", len(application.Components),
		"variables", len(application.Variables),
		"providers", resolver.Providers())

	return &App{Application: application, Resolver: resolver, Outbound: state}, nil
}

// Validate runs the pre-flight variable check for app.
func (c *Container) Validate(ctx context.Context, app *App) error {
	return c.validator.ConfigureApp(ctx, app.Resolver)
}

// NewWasmRuntime creates a guest runtime using the configured memory limit
// and this container's redactor for guest output.
func (c *Container) NewWasmRuntime(ctx context.Context) (*wasm.Runtime, error) {
	return wasm.NewRuntime(ctx, c.runtimeCfg.Wasm.MemoryLimitMB, c.redactor)
}

// RuntimeConfig returns the loaded runtime configuration.
func (c *Container) RuntimeConfig() *system.Config {
	return c.runtimeCfg
}

// Redactor returns the log redactor. It covers secret values as they are
// resolved.
func (c *Container) Redactor() *redaction.Redactor {
	return c.redactor
}

// SensitiveValues returns the tracker of resolved secret values.
func (c *Container) SensitiveValues() ports.SensitiveValueProvider {
	return c.sensitive
}

// Metrics returns the denial metrics handler, or nil when disabled.
func (c *Container) Metrics() *telemetry.MetricsHandler {
	return c.metrics
}

// Logger returns the configured logger.
func (c *Container) Logger() *slog.Logger {
	return c.logger
}

// Close releases provider connections.
func (c *Container) Close() error {
	if c.providers == nil {
		return nil
	}
	return c.providers.Close()
}
