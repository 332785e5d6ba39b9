package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reglet-dev/egress/internal/domain/values"
	"github.com/reglet-dev/egress/internal/domain/variables"
)

// redisGetter is the subset of the go-redis client the provider needs.
type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisProvider reads variables from Redis string keys <prefix><key>.
type RedisProvider struct {
	client redisGetter
	closer func() error
	prefix string
}

// RedisOptions configures a RedisProvider.
type RedisOptions struct {
	Address  string
	Username string
	Password string
	Prefix   string
	DB       int
	Timeout  time.Duration // default 3s
}

// NewRedisProvider creates a provider. The connection is established lazily.
func NewRedisProvider(opts RedisOptions) *RedisProvider {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})
	return &RedisProvider{client: client, closer: client.Close, prefix: opts.Prefix}
}

// Get implements ports.VariableProvider.
func (p *RedisProvider) Get(ctx context.Context, key values.VariableKey) (string, bool, error) {
	name := p.prefix + key.String()
	value, err := p.client.Get(ctx, name).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", name, err)
	}
	return value, true, nil
}

// Kind implements ports.VariableProvider.
func (p *RedisProvider) Kind() variables.ProviderKind {
	return variables.ProviderKindDynamic
}

// Close releases the client connection pool.
func (p *RedisProvider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
