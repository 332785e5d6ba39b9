package providers

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/reglet-dev/egress/internal/application/ports"
	"github.com/reglet-dev/egress/internal/infrastructure/system"
)

// Set is the ordered provider chain built from runtime configuration.
type Set struct {
	Providers []ports.VariableProvider
	closers   []func() error
}

// Close releases every provider that holds a connection.
func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Factory builds providers from configuration.
type Factory struct {
	lookupEnv func(string) (string, bool)
}

// NewFactory creates a factory that reads credential env vars from the
// process environment.
func NewFactory() *Factory {
	return &Factory{lookupEnv: os.LookupEnv}
}

// NewFactoryWithEnv creates a factory that reads credential env vars
// through lookup.
func NewFactoryWithEnv(lookup func(string) (string, bool)) *Factory {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Factory{lookupEnv: lookup}
}

// Build creates providers in configuration order. On failure, providers
// already created are closed.
func (f *Factory) Build(configs []system.ProviderConfig) (*Set, error) {
	set := &Set{}
	for i, cfg := range configs {
		p, closer, err := f.build(cfg)
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("variables.providers[%d]: %w", i, err)
		}
		set.Providers = append(set.Providers, p)
		if closer != nil {
			set.closers = append(set.closers, closer)
		}
	}
	return set, nil
}

func (f *Factory) build(cfg system.ProviderConfig) (ports.VariableProvider, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	switch cfg.Type {
	case system.ProviderEnv:
		p := NewEnvProvider(cfg.Prefix)
		p.lookup = f.lookupEnv
		return p, nil, nil

	case system.ProviderStatic:
		p, err := NewStaticProvider(cfg.Values)
		return p, nil, err

	case system.ProviderFile:
		p, err := NewFileProvider(cfg.Root, cfg.Files)
		return p, nil, err

	case system.ProviderVault:
		timeout, err := cfg.TimeoutDuration(10 * time.Second)
		if err != nil {
			return nil, nil, err
		}
		token := cfg.Token
		if cfg.TokenEnv != "" {
			var ok bool
			if token, ok = f.lookupEnv(cfg.TokenEnv); !ok {
				return nil, nil, fmt.Errorf("provider vault: token env var %q is not set", cfg.TokenEnv)
			}
		}
		p := NewVaultProvider(VaultOptions{
			Address:    cfg.Address,
			Token:      token,
			Mount:      cfg.Mount,
			PathPrefix: cfg.PathPrefix,
			Timeout:    timeout,
		})
		return p, p.Close, nil

	case system.ProviderEtcd:
		timeout, err := cfg.TimeoutDuration(5 * time.Second)
		if err != nil {
			return nil, nil, err
		}
		p, err := NewEtcdProvider(EtcdOptions{
			Endpoints:   cfg.Endpoints,
			Prefix:      cfg.Prefix,
			Username:    cfg.Username,
			Password:    f.password(cfg),
			DialTimeout: timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil

	case system.ProviderRedis:
		timeout, err := cfg.TimeoutDuration(3 * time.Second)
		if err != nil {
			return nil, nil, err
		}
		p := NewRedisProvider(RedisOptions{
			Address:  cfg.Address,
			Username: cfg.Username,
			Password: f.password(cfg),
			Prefix:   cfg.Prefix,
			DB:       cfg.DB,
			Timeout:  timeout,
		})
		return p, p.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown provider type %q", cfg.Type)
}

func (f *Factory) password(cfg system.ProviderConfig) string {
	if cfg.PasswordEnv == "" {
		return ""
	}
	v, _ := f.lookupEnv(cfg.PasswordEnv)
	return v
}
