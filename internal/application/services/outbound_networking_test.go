package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/reglet-dev/egress/internal/application/errors"
	"github.com/reglet-dev/egress/internal/application/ports"
	"github.com/reglet-dev/egress/internal/domain/entities"
	"github.com/reglet-dev/egress/internal/domain/outbound"
	"github.com/reglet-dev/egress/internal/domain/variables"
)

type recordingHandler struct {
	mu       sync.Mutex
	requests []ports.DisallowedRequest
}

func (h *recordingHandler) HandleDisallowedHost(_ context.Context, req ports.DisallowedRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
}

func (h *recordingHandler) Requests() []ports.DisallowedRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ports.DisallowedRequest(nil), h.requests...)
}

func TestSharedAllowedHosts_ComputesOnce(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})
	shared := NewSharedAllowedHosts(func(context.Context) (*outbound.AllowedHostsConfig, error) {
		runs.Add(1)
		<-release
		return outbound.ParseAllowedHosts([]string{"https://example.com"}, nil)
	})

	const callers = 50
	var wg sync.WaitGroup
	results := make([]*outbound.AllowedHostsConfig, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg, err := shared.Get(context.Background())
			assert.NoError(t, err)
			results[i] = cfg
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	for _, cfg := range results {
		assert.Same(t, results[0], cfg)
	}
	assert.True(t, shared.Done())
}

func TestSharedAllowedHosts_CachesFailure(t *testing.T) {
	var runs atomic.Int32
	cause := errors.New("resolution failed")
	shared := NewSharedAllowedHosts(func(context.Context) (*outbound.AllowedHostsConfig, error) {
		runs.Add(1)
		return nil, cause
	})

	for range 3 {
		_, err := shared.Get(context.Background())
		assert.ErrorIs(t, err, cause)
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestSharedAllowedHosts_CancelledWaiterDoesNotCancelComputation(t *testing.T) {
	release := make(chan struct{})
	var sawCancel atomic.Bool
	shared := NewSharedAllowedHosts(func(ctx context.Context) (*outbound.AllowedHostsConfig, error) {
		<-release
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		return outbound.AllowAll(), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := shared.Get(ctx)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	cfg, err := shared.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.AllowsAll())
	assert.False(t, sawCancel.Load())
}

func TestSharedAllowedHosts_RecoversPanic(t *testing.T) {
	shared := NewSharedAllowedHosts(func(context.Context) (*outbound.AllowedHostsConfig, error) {
		panic("boom")
	})
	_, err := shared.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestOutboundAllowedHosts_CheckURL(t *testing.T) {
	handler := &recordingHandler{}
	shared := NewSharedAllowedHosts(func(context.Context) (*outbound.AllowedHostsConfig, error) {
		return outbound.ParseAllowedHosts([]string{"https://api.example.com", "tcp://10.0.0.0/8:5432"}, nil)
	})
	hosts := NewOutboundAllowedHosts(shared, handler).WithIdentity("fetcher", "inst-1")
	ctx := context.Background()

	ok, err := hosts.CheckURL(ctx, "https://api.example.com/v1/items", "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hosts.CheckURL(ctx, "10.1.2.3:5432", "tcp")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hosts.CheckURL(ctx, "https://evil.example.com", "")
	require.NoError(t, err)
	assert.False(t, ok)

	reqs := handler.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, ports.ReasonNotAllowed, reqs[0].Reason)
	assert.Equal(t, "evil.example.com", reqs[0].Host)
	assert.Equal(t, 443, reqs[0].Port)
	assert.Equal(t, "fetcher", reqs[0].Component)
	assert.Equal(t, "inst-1", reqs[0].Instance)

	ok, err = hosts.CheckURL(ctx, "no-port-no-scheme", "tcp")
	assert.Error(t, err)
	assert.False(t, ok)

	reqs = handler.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, ports.ReasonInvalidDestination, reqs[1].Reason)
	assert.Equal(t, "no-port-no-scheme", reqs[1].Address)
	assert.Equal(t, "fetcher", reqs[1].Component)
	assert.Error(t, reqs[1].Err)
}

func TestOutboundNetworking_BareTemplateEntryUsesSchemeDefault(t *testing.T) {
	app, r, _ := newTestApp(t, "{{ api_host }}")
	state, err := NewOutboundNetworking(nil).ConfigureApp(context.Background(), app, r, OutboundNetworkingConfig{})
	require.NoError(t, err)

	inst, err := state.Prepare(context.Background(), "fetcher")
	require.NoError(t, err)

	ok, err := inst.CheckURL(context.Background(), "https://api.example.com", "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = inst.CheckURL(context.Background(), "https://api.example.com:8443", "")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.False(t, inst.CheckSocketAddr(context.Background(), "93.184.216.34:443", outbound.TCPConnect))
}

func TestOutboundAllowedHosts_UnavailableAllowList(t *testing.T) {
	handler := &recordingHandler{}
	cause := errors.New("bad entry")
	shared := NewSharedAllowedHosts(func(context.Context) (*outbound.AllowedHostsConfig, error) {
		return nil, cause
	})
	hosts := NewOutboundAllowedHosts(shared, handler)

	ok, err := hosts.CheckURL(context.Background(), "https://example.com", "")
	assert.False(t, ok)
	assert.ErrorIs(t, err, cause)

	reqs := handler.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, ports.ReasonAllowedHostsUnavailable, reqs[0].Reason)
	assert.ErrorIs(t, reqs[0].Err, cause)
}

func TestOutboundAllowedHosts_HandlerPanicIsolated(t *testing.T) {
	shared := NewSharedAllowedHosts(func(context.Context) (*outbound.AllowedHostsConfig, error) {
		return outbound.NewAllowedHostsConfig(nil), nil
	})
	hosts := NewOutboundAllowedHosts(shared, ports.DisallowedHostHandlerFunc(
		func(context.Context, ports.DisallowedRequest) { panic("handler bug") }))

	assert.NotPanics(t, func() {
		ok, err := hosts.CheckURL(context.Background(), "https://example.com", "")
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func newTestApp(t *testing.T, hosts ...string) (*entities.Application, *ProviderResolver, *mockProvider) {
	t.Helper()

	app := &entities.Application{
		ManifestVersion: "1.0.0",
		Variables: map[string]variables.Variable{
			"api_host": variables.RequiredVariable(),
			"db_port":  variables.WithDefault("5432"),
		},
		Components: map[string]entities.Component{
			"fetcher": {AllowedOutboundHosts: hosts},
		},
	}
	r, err := NewProviderResolver(app.Variables)
	require.NoError(t, err)
	p := staticProvider(map[string]string{"api_host": "api.example.com"})
	r.AddProvider(p)
	return app, r, p
}

func TestOutboundNetworking_ConfigureApp(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		hosts   []string
		cfg     OutboundNetworkingConfig
		wantErr bool
	}{
		{name: "literal and template entries", hosts: []string{"https://{{ api_host }}", "tcp://10.0.0.1:{{ db_port }}"}},
		{name: "allow all", hosts: []string{outbound.AllowAllEntry}},
		{name: "literal syntax error", hosts: []string{"https://example.com/path"}, wantErr: true},
		{name: "undeclared placeholder", hosts: []string{"https://{{ nope }}"}, wantErr: true},
		{name: "malformed template", hosts: []string{"https://{{ api_host"}, wantErr: true},
		{name: "bad blocked network", cfg: OutboundNetworkingConfig{BlockedNetworks: []string{"nope"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, r, _ := newTestApp(t, tt.hosts...)
			state, err := NewOutboundNetworking(nil).ConfigureApp(ctx, app, r, tt.cfg)
			if tt.wantErr {
				var cfgErr *apperrors.ConfigurationError
				assert.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"fetcher"}, state.ComponentIDs())
		})
	}
}

func TestOutboundNetworking_ConcurrentChecksResolveOnce(t *testing.T) {
	app, r, p := newTestApp(t,
		"https://{{ api_host }}",
		"https://{{ api_host }}:8443",
		"tcp://10.0.0.1:{{ db_port }}",
	)
	state, err := NewOutboundNetworking(nil).ConfigureApp(context.Background(), app, r, OutboundNetworkingConfig{})
	require.NoError(t, err)

	inst, err := state.Prepare(context.Background(), "fetcher")
	require.NoError(t, err)
	assert.NotEmpty(t, inst.ID)

	const callers = 32
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := inst.CheckURL(context.Background(), "https://api.example.com", "")
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	// api_host comes from the provider; db_port falls through to its default.
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestOutboundNetworking_PrepareUnknownComponent(t *testing.T) {
	app, r, _ := newTestApp(t)
	state, err := NewOutboundNetworking(nil).ConfigureApp(context.Background(), app, r, OutboundNetworkingConfig{})
	require.NoError(t, err)

	_, err = state.Prepare(context.Background(), "missing")
	assert.Error(t, err)
}

func TestOutboundNetworking_ResolutionFailureDeniesEverything(t *testing.T) {
	app := &entities.Application{
		Variables:  map[string]variables.Variable{"host": variables.RequiredVariable()},
		Components: map[string]entities.Component{"c": {AllowedOutboundHosts: []string{"https://{{ host }}"}}},
	}
	r, err := NewProviderResolver(app.Variables)
	require.NoError(t, err)

	state, err := NewOutboundNetworking(nil).ConfigureApp(context.Background(), app, r, OutboundNetworkingConfig{})
	require.NoError(t, err)
	inst, err := state.Prepare(context.Background(), "c")
	require.NoError(t, err)

	ok, err := inst.CheckURL(context.Background(), "https://anything", "")
	assert.False(t, ok)
	assert.True(t, apperrors.IsUndefined(err))

	assert.False(t, inst.CheckSocketAddr(context.Background(), "1.2.3.4:443", outbound.TCPConnect))
}

func TestInstance_CheckSocketAddr(t *testing.T) {
	app := &entities.Application{
		Components: map[string]entities.Component{
			"c": {AllowedOutboundHosts: []string{
				"tcp://*:*",
				"udp://8.8.8.8:53",
			}},
		},
	}
	r, err := NewProviderResolver(nil)
	require.NoError(t, err)

	tests := []struct {
		name         string
		blockPrivate bool
		addr         string
		use          outbound.SocketAddrUse
		want         bool
	}{
		{"tcp connect allowed", false, "93.184.216.34:443", outbound.TCPConnect, true},
		{"loopback allowed without block_private", false, "127.0.0.1:8080", outbound.TCPConnect, true},
		{"loopback blocked with block_private", true, "127.0.0.1:8080", outbound.TCPConnect, false},
		{"ipv6 loopback blocked with block_private", true, "[::1]:8080", outbound.TCPConnect, false},
		{"explicit blocked network", false, "203.0.113.5:443", outbound.TCPConnect, false},
		{"tcp bind denied", false, "0.0.0.0:8080", outbound.TCPBind, false},
		{"udp bind denied", false, "0.0.0.0:53", outbound.UDPBind, false},
		{"udp connect allowed", false, "8.8.8.8:53", outbound.UDPConnect, true},
		{"udp datagram allowed", false, "8.8.8.8:53", outbound.UDPOutgoingDatagram, true},
		{"udp other port denied", false, "8.8.8.8:54", outbound.UDPConnect, false},
		{"not an ip", false, "example.com:443", outbound.TCPConnect, false},
		{"garbage", false, "nonsense", outbound.TCPConnect, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &recordingHandler{}
			state, err := NewOutboundNetworking(handler).ConfigureApp(context.Background(), app, r, OutboundNetworkingConfig{
				BlockedNetworks:      []string{"203.0.113.0/24"},
				BlockPrivateNetworks: tt.blockPrivate,
			})
			require.NoError(t, err)
			inst, err := state.Prepare(context.Background(), "c")
			require.NoError(t, err)

			assert.Equal(t, tt.want, inst.CheckSocketAddr(context.Background(), tt.addr, tt.use))
		})
	}
}

func TestInstance_CheckSocketAddr_ReportsBlockedNetwork(t *testing.T) {
	app := &entities.Application{
		Components: map[string]entities.Component{"c": {AllowedOutboundHosts: []string{outbound.AllowAllEntry}}},
	}
	r, err := NewProviderResolver(nil)
	require.NoError(t, err)

	handler := &recordingHandler{}
	state, err := NewOutboundNetworking(handler).ConfigureApp(context.Background(), app, r,
		OutboundNetworkingConfig{BlockPrivateNetworks: true})
	require.NoError(t, err)
	inst, err := state.Prepare(context.Background(), "c")
	require.NoError(t, err)

	assert.False(t, inst.CheckSocketAddr(context.Background(), "10.0.0.1:80", outbound.TCPConnect))

	reqs := handler.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, ports.ReasonBlockedNetwork, reqs[0].Reason)
	assert.Equal(t, "10.0.0.1", reqs[0].Host)
	assert.Equal(t, inst.ID, reqs[0].Instance)
}

func TestInstance_EmptyAllowListDeniesAll(t *testing.T) {
	app := &entities.Application{Components: map[string]entities.Component{"c": {}}}
	r, err := NewProviderResolver(nil)
	require.NoError(t, err)

	state, err := NewOutboundNetworking(nil).ConfigureApp(context.Background(), app, r, OutboundNetworkingConfig{})
	require.NoError(t, err)
	inst, err := state.Prepare(context.Background(), "c")
	require.NoError(t, err)

	for _, addr := range []string{"1.1.1.1:443", "[2606:4700::1111]:443", "127.0.0.1:80"} {
		assert.False(t, inst.CheckSocketAddr(context.Background(), addr, outbound.TCPConnect), addr)
	}
}
