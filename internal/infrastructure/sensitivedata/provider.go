// Package sensitivedata keeps track of values that must never reach logs or
// terminal output, such as the resolved values of secret variables.
package sensitivedata

import "sync"

// Provider implements ports.SensitiveValueProvider.
// It maintains a thread-safe, de-duplicated registry of sensitive values.
type Provider struct {
	seen   map[string]struct{}
	values []string
	mu     sync.RWMutex
}

// NewProvider creates a new sensitive data provider.
func NewProvider() *Provider {
	return &Provider{
		seen:   make(map[string]struct{}),
		values: make([]string, 0, 32),
	}
}

// Track registers a sensitive value to be protected. Empty and repeated
// values are ignored.
func (p *Provider) Track(value string) {
	if value == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[value]; ok {
		return
	}
	p.seen[value] = struct{}{}
	p.values = append(p.values, value)
}

// AllValues returns all tracked sensitive values.
func (p *Provider) AllValues() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Return a copy to avoid race conditions if caller modifies the slice
	result := make([]string, len(p.values))
	copy(result, p.values)
	return result
}
