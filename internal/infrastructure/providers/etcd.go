package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/reglet-dev/egress/internal/domain/values"
	"github.com/reglet-dev/egress/internal/domain/variables"
)

// EtcdProvider reads variables from etcd keys <prefix><key>. Values are
// fetched on every lookup.
type EtcdProvider struct {
	kv     clientv3.KV
	closer func() error
	prefix string
}

// EtcdOptions configures an EtcdProvider.
type EtcdOptions struct {
	Prefix      string
	Username    string
	Password    string
	Endpoints   []string
	DialTimeout time.Duration // default 5s
}

// NewEtcdProvider connects to the cluster.
func NewEtcdProvider(opts EtcdOptions) (*EtcdProvider, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: opts.DialTimeout,
		Username:    opts.Username,
		Password:    opts.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("etcd provider: %w", err)
	}
	return &EtcdProvider{kv: client, closer: client.Close, prefix: opts.Prefix}, nil
}

// newEtcdProviderWithKV wraps an existing KV, for tests.
func newEtcdProviderWithKV(kv clientv3.KV, prefix string) *EtcdProvider {
	return &EtcdProvider{kv: kv, prefix: prefix}
}

// KeyFor returns the etcd key read for key.
func (p *EtcdProvider) KeyFor(key values.VariableKey) string {
	if p.prefix == "" {
		return key.String()
	}
	if strings.HasSuffix(p.prefix, "/") || strings.HasSuffix(p.prefix, ":") {
		return p.prefix + key.String()
	}
	return p.prefix + "/" + key.String()
}

// Get implements ports.VariableProvider.
func (p *EtcdProvider) Get(ctx context.Context, key values.VariableKey) (string, bool, error) {
	resp, err := p.kv.Get(ctx, p.KeyFor(key))
	if err != nil {
		return "", false, fmt.Errorf("etcd get %q: %w", p.KeyFor(key), err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

// Kind implements ports.VariableProvider.
func (p *EtcdProvider) Kind() variables.ProviderKind {
	return variables.ProviderKindDynamic
}

// Close releases the client connection.
func (p *EtcdProvider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
