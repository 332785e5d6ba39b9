package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/reglet-dev/egress/internal/application/errors"
	"github.com/reglet-dev/egress/internal/application/ports"
	"github.com/reglet-dev/egress/internal/domain/values"
	"github.com/reglet-dev/egress/internal/domain/variables"
)

// validationConcurrency bounds how many variables are checked at once
// during pre-flight validation.
const validationConcurrency = 8

// ProviderResolver resolves declared variables through an ordered chain of
// providers. Registration (AddProvider, AddComponentVariables) must finish
// before the first resolution; after that the resolver is sealed and shared
// read-only without locks.
type ProviderResolver struct {
	variables  map[values.VariableKey]variables.Variable
	components map[string]map[values.VariableKey]variables.Template
	sensitive  ports.SensitiveValueProvider
	providers  []ports.VariableProvider
	mu         sync.Mutex // serializes registration
	sealed     atomic.Bool
}

// ResolverOption configures a ProviderResolver.
type ResolverOption func(*ProviderResolver)

// WithSensitiveValues tracks the resolved values of secret variables so they
// can be scrubbed from logs and output.
func WithSensitiveValues(provider ports.SensitiveValueProvider) ResolverOption {
	return func(r *ProviderResolver) {
		r.sensitive = provider
	}
}

// NewProviderResolver validates the declarations and returns a resolver with
// no providers.
func NewProviderResolver(vars map[string]variables.Variable, opts ...ResolverOption) (*ProviderResolver, error) {
	r := &ProviderResolver{
		variables:  make(map[values.VariableKey]variables.Variable, len(vars)),
		components: make(map[string]map[values.VariableKey]variables.Template),
	}

	for name, decl := range vars {
		key, err := values.NewVariableKey(name)
		if err != nil {
			return nil, apperrors.NewConfigurationError("variables", "invalid variable name", err)
		}
		if err := decl.Validate(); err != nil {
			return nil, apperrors.NewConfigurationError("variables", fmt.Sprintf("invalid declaration for %q", key), err)
		}
		if _, dup := r.variables[key]; dup {
			return nil, apperrors.NewConfigurationError("variables", fmt.Sprintf("variable %q declared more than once", key), nil)
		}
		r.variables[key] = decl
	}

	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// AddProvider appends a provider to the chain. Providers are consulted in
// registration order. Panics if the resolver is already in use.
func (r *ProviderResolver) AddProvider(p ports.VariableProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		panic("services: AddProvider called after the resolver was first used")
	}
	r.providers = append(r.providers, p)
}

// AddComponentVariables registers a component's variables. Each value is a
// template over application variables. Panics if the resolver is already in use.
func (r *ProviderResolver) AddComponentVariables(componentID string, vars map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		panic("services: AddComponentVariables called after the resolver was first used")
	}

	templates := make(map[values.VariableKey]variables.Template, len(vars))
	for name, text := range vars {
		key, err := values.NewVariableKey(name)
		if err != nil {
			return apperrors.NewConfigurationError("variables",
				fmt.Sprintf("component %q has an invalid variable name", componentID), err)
		}
		tmpl, err := variables.ParseTemplate(text)
		if err != nil {
			return apperrors.NewConfigurationError("variables",
				fmt.Sprintf("component %q variable %q", componentID, key), err)
		}
		if err := r.checkDeclared(tmpl); err != nil {
			return apperrors.NewConfigurationError("variables",
				fmt.Sprintf("component %q variable %q", componentID, key), err)
		}
		templates[key] = tmpl
	}
	r.components[componentID] = templates
	return nil
}

func (r *ProviderResolver) seal() {
	if r.sealed.Load() {
		return
	}
	r.mu.Lock()
	r.sealed.Store(true)
	r.mu.Unlock()
}

// Declared returns the declaration for key.
func (r *ProviderResolver) Declared(key values.VariableKey) (variables.Variable, bool) {
	decl, ok := r.variables[key]
	return decl, ok
}

// Keys returns every declared key in sorted order.
func (r *ProviderResolver) Keys() []values.VariableKey {
	keys := make([]values.VariableKey, 0, len(r.variables))
	for k := range r.variables {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Providers returns the number of registered providers.
func (r *ProviderResolver) Providers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.providers)
}

// Resolve returns the value of a declared variable: the first provider that
// has it wins, then the declared default.
func (r *ProviderResolver) Resolve(ctx context.Context, key values.VariableKey) (string, error) {
	r.seal()

	decl, ok := r.variables[key]
	if !ok {
		return "", apperrors.NewResolveError(apperrors.Undeclared, key.String(), nil)
	}

	for _, p := range r.providers {
		value, found, err := p.Get(ctx, key)
		if err != nil {
			slog.DebugContext(ctx, "variable provider failed",
				"variable", key.String(),
				"provider_kind", p.Kind().String(),
				"error", err)
			return "", apperrors.NewResolveError(apperrors.ProviderFailed, key.String(), err)
		}
		if found {
			r.track(decl, value)
			return value, nil
		}
	}

	if decl.Default != nil {
		r.track(decl, *decl.Default)
		return *decl.Default, nil
	}
	return "", apperrors.NewResolveError(apperrors.Undefined, key.String(), nil)
}

// ResolveTemplate substitutes every {{ key }} in text. Placeholders are
// resolved left to right and the first failure is returned.
func (r *ProviderResolver) ResolveTemplate(ctx context.Context, text string) (string, error) {
	r.seal()

	tmpl, err := variables.ParseTemplate(text)
	if err != nil {
		return "", apperrors.NewResolveError(apperrors.InvalidTemplate, text, err)
	}
	return r.render(ctx, tmpl)
}

// ResolveComponentVariable resolves a variable registered with
// AddComponentVariables.
func (r *ProviderResolver) ResolveComponentVariable(ctx context.Context, componentID, name string) (string, error) {
	r.seal()

	key, err := values.NewVariableKey(name)
	if err != nil {
		return "", apperrors.NewResolveError(apperrors.Undeclared, name, err)
	}
	tmpl, ok := r.components[componentID][key]
	if !ok {
		return "", apperrors.NewResolveError(apperrors.Undeclared, componentID+"."+key.String(), nil)
	}
	return r.render(ctx, tmpl)
}

func (r *ProviderResolver) render(ctx context.Context, tmpl variables.Template) (string, error) {
	return tmpl.Render(func(key values.VariableKey) (string, error) {
		return r.Resolve(ctx, key)
	})
}

// checkDeclared returns an Undeclared error for the first key in tmpl that
// has no declaration.
func (r *ProviderResolver) checkDeclared(tmpl variables.Template) error {
	for _, key := range tmpl.Keys() {
		if _, ok := r.variables[key]; !ok {
			return apperrors.NewResolveError(apperrors.Undeclared, key.String(), nil)
		}
	}
	return nil
}

// CheckTemplate parses text and verifies every placeholder names a declared
// variable, without resolving anything.
func (r *ProviderResolver) CheckTemplate(text string) error {
	tmpl, err := variables.ParseTemplate(text)
	if err != nil {
		return apperrors.NewResolveError(apperrors.InvalidTemplate, text, err)
	}
	return r.checkDeclared(tmpl)
}

// PrepareFor resolves, once each, the distinct variables referenced by
// templates and returns a Snapshot that renders those templates without
// further provider calls.
func (r *ProviderResolver) PrepareFor(ctx context.Context, templates []string) (*Snapshot, error) {
	r.seal()

	var keys []values.VariableKey
	seen := make(map[values.VariableKey]struct{})
	for _, text := range templates {
		tmpl, err := variables.ParseTemplate(text)
		if err != nil {
			return nil, apperrors.NewResolveError(apperrors.InvalidTemplate, text, err)
		}
		for _, key := range tmpl.Keys() {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return r.snapshot(ctx, keys)
}

// Prepare resolves every declared variable into a Snapshot.
func (r *ProviderResolver) Prepare(ctx context.Context) (*Snapshot, error) {
	r.seal()
	return r.snapshot(ctx, r.Keys())
}

func (r *ProviderResolver) snapshot(ctx context.Context, keys []values.VariableKey) (*Snapshot, error) {
	resolved := make(map[values.VariableKey]string, len(keys))
	for _, key := range keys {
		value, err := r.Resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		resolved[key] = value
	}
	return &Snapshot{values: resolved}, nil
}

// ValidateVariableExistence checks, before anything runs, that every declared
// variable can be given a value. A variable passes if it has a default, if any
// Dynamic provider is registered, or if a Static provider has it. Dynamic
// providers are never queried. All missing variables are reported together.
func (r *ProviderResolver) ValidateVariableExistence(ctx context.Context) error {
	r.seal()

	if len(r.variables) == 0 {
		return nil
	}

	var static []ports.VariableProvider
	for _, p := range r.providers {
		if p.Kind() == variables.ProviderKindDynamic {
			slog.DebugContext(ctx, "dynamic variable provider registered, skipping existence check")
			return nil
		}
		static = append(static, p)
	}

	var (
		mu      sync.Mutex
		missing []values.VariableKey
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(validationConcurrency)

	for key, decl := range r.variables {
		if decl.HasDefault() {
			continue
		}
		g.Go(func() error {
			for _, p := range static {
				_, found, err := p.Get(gctx, key)
				if err != nil {
					return apperrors.NewResolveError(apperrors.ProviderFailed, key.String(), err)
				}
				if found {
					return nil
				}
			}
			mu.Lock()
			missing = append(missing, key)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if len(missing) > 0 {
		sortKeys(missing)
		return apperrors.NewMissingVariablesError(missing)
	}
	return nil
}

func (r *ProviderResolver) track(decl variables.Variable, value string) {
	if decl.Secret && r.sensitive != nil && value != "" {
		r.sensitive.Track(value)
	}
}

func sortKeys(keys []values.VariableKey) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}

// Snapshot holds variable values resolved ahead of time. It renders
// templates synchronously and implements outbound.TemplateResolver.
type Snapshot struct {
	values map[values.VariableKey]string
}

// Get returns a prepared value.
func (s *Snapshot) Get(key values.VariableKey) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of prepared values.
func (s *Snapshot) Len() int {
	return len(s.values)
}

// ResolveTemplate renders text from the prepared values. Keys that were not
// prepared are reported as Undeclared.
func (s *Snapshot) ResolveTemplate(text string) (string, error) {
	tmpl, err := variables.ParseTemplate(text)
	if err != nil {
		return "", apperrors.NewResolveError(apperrors.InvalidTemplate, text, err)
	}
	return tmpl.Render(func(key values.VariableKey) (string, error) {
		v, ok := s.values[key]
		if !ok {
			return "", apperrors.NewResolveError(apperrors.Undeclared, key.String(), nil)
		}
		return v, nil
	})
}
