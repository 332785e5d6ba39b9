package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/reglet-dev/egress/internal/domain/values"
	"github.com/reglet-dev/egress/internal/domain/variables"
	"github.com/reglet-dev/egress/internal/infrastructure/sensitivedata"
)

// vaultField is the key read from each KV v2 secret.
const vaultField = "value"

// VaultProvider reads variables from a HashiCorp Vault KV v2 mount. The key
// "db.password" maps to the secret <path_prefix>/db/password, field "value".
type VaultProvider struct {
	token      *sensitivedata.SecureString
	client     *http.Client
	cache      map[values.VariableKey]vaultCacheEntry
	address    string
	mount      string
	pathPrefix string
	cacheTTL   time.Duration
	mu         sync.RWMutex
}

type vaultCacheEntry struct {
	expires time.Time
	value   string
	found   bool
}

// VaultOptions configures a VaultProvider.
type VaultOptions struct {
	Address    string
	Token      string
	Mount      string // default "secret"
	PathPrefix string
	Timeout    time.Duration // default 10s
	CacheTTL   time.Duration // default 5m; negative disables caching
}

// NewVaultProvider creates a Vault provider.
func NewVaultProvider(opts VaultOptions) *VaultProvider {
	if opts.Mount == "" {
		opts.Mount = "secret"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &VaultProvider{
		address:    strings.TrimRight(opts.Address, "/"),
		token:      sensitivedata.NewSecureString(opts.Token),
		mount:      strings.Trim(opts.Mount, "/"),
		pathPrefix: strings.Trim(opts.PathPrefix, "/"),
		cacheTTL:   opts.CacheTTL,
		client:     &http.Client{Timeout: opts.Timeout},
		cache:      make(map[values.VariableKey]vaultCacheEntry),
	}
}

// SecretPath returns the KV path read for key.
func (p *VaultProvider) SecretPath(key values.VariableKey) string {
	path := strings.Join(key.Segments(), "/")
	if p.pathPrefix != "" {
		path = p.pathPrefix + "/" + path
	}
	return path
}

// Get implements ports.VariableProvider. A missing secret or field is
// reported as not found; any other failure is an error.
func (p *VaultProvider) Get(ctx context.Context, key values.VariableKey) (string, bool, error) {
	p.mu.RLock()
	if entry, ok := p.cache[key]; ok && time.Now().Before(entry.expires) {
		p.mu.RUnlock()
		return entry.value, entry.found, nil
	}
	p.mu.RUnlock()

	value, found, err := p.fetch(ctx, p.SecretPath(key))
	if err != nil {
		return "", false, err
	}

	if p.cacheTTL > 0 {
		p.mu.Lock()
		p.cache[key] = vaultCacheEntry{value: value, found: found, expires: time.Now().Add(p.cacheTTL)}
		p.mu.Unlock()
	}
	return value, found, nil
}

func (p *VaultProvider) fetch(ctx context.Context, path string) (string, bool, error) {
	// KV v2 read: GET /v1/{mount}/data/{path}
	url := fmt.Sprintf("%s/v1/%s/data/%s", p.address, p.mount, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", p.token.String())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("vault request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", false, nil
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("vault error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		Data struct {
			Data map[string]interface{} `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", false, fmt.Errorf("parse vault response: %w", err)
	}

	val, ok := result.Data.Data[vaultField]
	if !ok {
		return "", false, nil
	}
	s, ok := val.(string)
	if !ok {
		return "", false, fmt.Errorf("vault field %q at %s is not a string", vaultField, path)
	}
	return s, true, nil
}

// Kind implements ports.VariableProvider.
func (p *VaultProvider) Kind() variables.ProviderKind {
	return variables.ProviderKindDynamic
}

// Close zeroes the token.
func (p *VaultProvider) Close() error {
	p.token.Zero()
	return nil
}
