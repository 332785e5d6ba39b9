package sensitivedata

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProvider_Track(t *testing.T) {
	p := NewProvider()

	p.Track("secret1")
	p.Track("secret2")
	p.Track("secret1") // duplicate
	p.Track("")        // ignored

	assert.Equal(t, []string{"secret1", "secret2"}, p.AllValues())
}

func TestProvider_Concurrency(t *testing.T) {
	p := NewProvider()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			p.Track(fmt.Sprintf("secret-%d", i%10))
		}(i)
		go func() {
			defer wg.Done()
			_ = p.AllValues()
		}()
	}

	wg.Wait()
	assert.Len(t, p.AllValues(), 10)
}

func TestProvider_Immutability(t *testing.T) {
	p := NewProvider()
	p.Track("secret")

	values := p.AllValues()
	values[0] = "hacked"

	assert.Equal(t, "secret", p.AllValues()[0], "Returned slice should be a copy")
}

func TestSecureString(t *testing.T) {
	ss := NewSecureString("vault-token")
	assert.Equal(t, "vault-token", ss.String())
	assert.False(t, ss.IsEmpty())

	ss.Zero()
	assert.NotContains(t, ss.String(), "vault-token")

	var nilString *SecureString
	assert.True(t, nilString.IsEmpty())
	assert.Empty(t, nilString.String())
}
