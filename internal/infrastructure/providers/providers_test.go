package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/reglet-dev/egress/internal/domain/values"
	"github.com/reglet-dev/egress/internal/domain/variables"
	"github.com/reglet-dev/egress/internal/infrastructure/system"
)

func mustKey(name string) values.VariableKey {
	return values.MustNewVariableKey(name)
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func TestEnvProvider(t *testing.T) {
	p := NewEnvProvider("")
	p.lookup = envMap(map[string]string{
		"EGRESS_VARIABLE_API_HOST": "api.example.com",
		"EGRESS_VARIABLE_DB_HOST":  "db.internal",
		"EGRESS_VARIABLE_EMPTY":    "",
	})

	assert.Equal(t, variables.ProviderKindStatic, p.Kind())
	assert.Equal(t, "EGRESS_VARIABLE_DB_HOST", p.EnvName(mustKey("db.host")))
	assert.Equal(t, "EGRESS_VARIABLE_MY_VAR", p.EnvName(mustKey("my-var")))

	tests := []struct {
		key       string
		want      string
		wantFound bool
	}{
		{"api_host", "api.example.com", true},
		{"db.host", "db.internal", true},
		{"empty", "", true},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v, found, err := p.Get(context.Background(), mustKey(tt.key))
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestEnvProvider_CustomPrefix(t *testing.T) {
	p := NewEnvProvider("MYAPP_")
	assert.Equal(t, "MYAPP_TOKEN", p.EnvName(mustKey("token")))
}

func TestStaticProvider(t *testing.T) {
	p, err := NewStaticProvider(map[string]string{"Foo": "bar"})
	require.NoError(t, err)
	assert.Equal(t, variables.ProviderKindStatic, p.Kind())

	v, found, err := p.Get(context.Background(), mustKey("foo"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "bar", v)

	_, found, err = p.Get(context.Background(), mustKey("other"))
	require.NoError(t, err)
	assert.False(t, found)

	_, err = NewStaticProvider(map[string]string{"bad key": "x"})
	assert.Error(t, err)
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "token.txt"), []byte("  s3cr3t\n"), 0o600))
	abs := filepath.Join(t.TempDir(), "abs.txt")
	require.NoError(t, os.WriteFile(abs, []byte("absolute"), 0o600))

	p, err := NewFileProvider(dir, map[string]string{
		"token":    "token.txt",
		"abs":      abs,
		"missing":  "nope.txt",
		"escaping": "../../etc/passwd",
	})
	require.NoError(t, err)
	assert.Equal(t, variables.ProviderKindStatic, p.Kind())

	ctx := context.Background()

	v, found, err := p.Get(ctx, mustKey("token"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "s3cr3t", v)

	v, found, err = p.Get(ctx, mustKey("abs"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "absolute", v)

	_, found, err = p.Get(ctx, mustKey("missing"))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = p.Get(ctx, mustKey("unconfigured"))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = p.Get(ctx, mustKey("escaping"))
	assert.Error(t, err, "paths may not escape the root")
	assert.False(t, found)

	// Cached after first read.
	require.NoError(t, os.Remove(filepath.Join(dir, "token.txt")))
	v, found, err = p.Get(ctx, mustKey("token"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "s3cr3t", v)
}

func TestVaultProvider(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("X-Vault-Token") != "root-token" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		switch r.URL.Path {
		case "/v1/kv/data/app/db/password":
			_, _ = w.Write([]byte(`{"data":{"data":{"value":"hunter2"}}}`))
		case "/v1/kv/data/app/no_field":
			_, _ = w.Write([]byte(`{"data":{"data":{"other":"x"}}}`))
		case "/v1/kv/data/app/number":
			_, _ = w.Write([]byte(`{"data":{"data":{"value":42}}}`))
		case "/v1/kv/data/app/broken":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	}))
	defer server.Close()

	p := NewVaultProvider(VaultOptions{
		Address:    server.URL + "/",
		Token:      "root-token",
		Mount:      "kv",
		PathPrefix: "/app/",
	})
	assert.Equal(t, variables.ProviderKindDynamic, p.Kind())
	assert.Equal(t, "app/db/password", p.SecretPath(mustKey("db.password")))

	ctx := context.Background()

	v, found, err := p.Get(ctx, mustKey("db.password"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hunter2", v)

	_, _, err = p.Get(ctx, mustKey("db.password"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load(), "second lookup served from cache")

	_, found, err = p.Get(ctx, mustKey("absent"))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = p.Get(ctx, mustKey("no_field"))
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = p.Get(ctx, mustKey("number"))
	assert.ErrorContains(t, err, "not a string")

	_, _, err = p.Get(ctx, mustKey("broken"))
	assert.ErrorContains(t, err, "status 500")

	bad := NewVaultProvider(VaultOptions{Address: server.URL, Token: "wrong", Mount: "kv", PathPrefix: "app"})
	_, _, err = bad.Get(ctx, mustKey("db.password"))
	assert.ErrorContains(t, err, "status 403")

	require.NoError(t, p.Close())
}

type fakeKV struct {
	clientv3.KV
	data    map[string]string
	err     error
	lastKey string
}

func (f *fakeKV) Get(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.lastKey = key
	if f.err != nil {
		return nil, f.err
	}
	resp := &clientv3.GetResponse{}
	if v, ok := f.data[key]; ok {
		resp.Kvs = []*mvccpb.KeyValue{{Key: []byte(key), Value: []byte(v)}}
	}
	return resp, nil
}

func TestEtcdProvider(t *testing.T) {
	kv := &fakeKV{data: map[string]string{"/egress/api_host": "api.example.com"}}
	p := newEtcdProviderWithKV(kv, "/egress/")
	assert.Equal(t, variables.ProviderKindDynamic, p.Kind())

	v, found, err := p.Get(context.Background(), mustKey("api_host"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "api.example.com", v)

	_, found, err = p.Get(context.Background(), mustKey("missing"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "/egress/missing", kv.lastKey)

	assert.Equal(t, "cfg/db.host", newEtcdProviderWithKV(kv, "cfg").KeyFor(mustKey("db.host")))
	assert.Equal(t, "db.host", newEtcdProviderWithKV(kv, "").KeyFor(mustKey("db.host")))

	kv.err = errors.New("etcdserver: request timed out")
	_, _, err = p.Get(context.Background(), mustKey("api_host"))
	assert.ErrorContains(t, err, "request timed out")
	assert.NoError(t, p.Close())
}

type fakeRedis struct {
	data map[string]string
	err  error
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func TestRedisProvider(t *testing.T) {
	fake := &fakeRedis{data: map[string]string{"egress:token": "abc"}}
	p := &RedisProvider{client: fake, prefix: "egress:"}
	assert.Equal(t, variables.ProviderKindDynamic, p.Kind())

	v, found, err := p.Get(context.Background(), mustKey("token"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc", v)

	_, found, err = p.Get(context.Background(), mustKey("missing"))
	require.NoError(t, err)
	assert.False(t, found)

	fake.err = errors.New("connection refused")
	_, _, err = p.Get(context.Background(), mustKey("token"))
	assert.ErrorContains(t, err, "connection refused")
}

func TestFactory_Build(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "token"), []byte("from-file"), 0o600))

	f := NewFactory()
	f.lookupEnv = envMap(map[string]string{
		"APP_API_HOST": "from-env",
		"VAULT_TOKEN":  "t",
	})

	set, err := f.Build([]system.ProviderConfig{
		{Type: system.ProviderEnv, Prefix: "APP"},
		{Type: system.ProviderStatic, Values: map[string]string{"api_host": "from-static"}},
		{Type: system.ProviderFile, Root: dir, Files: map[string]string{"token": "token"}},
		{Type: system.ProviderVault, Address: "http://127.0.0.1:1", TokenEnv: "VAULT_TOKEN"},
		{Type: system.ProviderRedis, Address: "127.0.0.1:1", Prefix: "egress:"},
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, set.Close()) }()

	require.Len(t, set.Providers, 5)
	assert.IsType(t, &EnvProvider{}, set.Providers[0])
	assert.IsType(t, &StaticProvider{}, set.Providers[1])
	assert.IsType(t, &FileProvider{}, set.Providers[2])
	assert.IsType(t, &VaultProvider{}, set.Providers[3])
	assert.IsType(t, &RedisProvider{}, set.Providers[4])

	v, found, err := set.Providers[0].Get(context.Background(), mustKey("api_host"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "from-env", v)
}

func TestFactory_BuildErrors(t *testing.T) {
	f := NewFactory()
	f.lookupEnv = envMap(nil)

	tests := []struct {
		name string
		cfg  system.ProviderConfig
	}{
		{"unknown type", system.ProviderConfig{Type: "consul"}},
		{"vault token env unset", system.ProviderConfig{Type: system.ProviderVault, Address: "http://v", TokenEnv: "NOPE"}},
		{"bad static key", system.ProviderConfig{Type: system.ProviderStatic, Values: map[string]string{"a b": "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Build([]system.ProviderConfig{{Type: system.ProviderEnv}, tt.cfg})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "variables.providers[1]")
		})
	}
}
