package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/reglet-dev/egress/internal/domain/values"
	"github.com/reglet-dev/egress/internal/domain/variables"
)

// FileProvider reads each variable from an operator-configured file, such
// as a mounted secret. Contents are trimmed and cached after the first read.
type FileProvider struct {
	files map[values.VariableKey]string
	cache map[values.VariableKey]string
	root  string
	mu    sync.RWMutex
}

// NewFileProvider maps variable names to paths. Relative paths are resolved
// inside root; when root is empty each path is opened within its own
// directory.
func NewFileProvider(root string, files map[string]string) (*FileProvider, error) {
	p := &FileProvider{
		files: make(map[values.VariableKey]string, len(files)),
		cache: make(map[values.VariableKey]string),
		root:  root,
	}
	for name, path := range files {
		key, err := values.NewVariableKey(name)
		if err != nil {
			return nil, fmt.Errorf("file provider: %w", err)
		}
		p.files[key] = path
	}
	return p, nil
}

// Get implements ports.VariableProvider. A configured file that does not
// exist is reported as not found.
func (p *FileProvider) Get(_ context.Context, key values.VariableKey) (string, bool, error) {
	path, ok := p.files[key]
	if !ok {
		return "", false, nil
	}

	p.mu.RLock()
	if value, ok := p.cache[key]; ok {
		p.mu.RUnlock()
		return value, true, nil
	}
	p.mu.RUnlock()

	value, err := p.read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("variable %q: %w", key, err)
	}

	p.mu.Lock()
	p.cache[key] = value
	p.mu.Unlock()
	return value, true, nil
}

func (p *FileProvider) read(path string) (string, error) {
	dir, name := p.root, path
	if dir == "" || filepath.IsAbs(path) {
		dir, name = filepath.Dir(path), filepath.Base(path)
	}

	// os.OpenRoot keeps the lookup inside dir.
	root, err := os.OpenRoot(dir)
	if err != nil {
		return "", fmt.Errorf("failed to open directory %q: %w", dir, err)
	}
	defer func() { _ = root.Close() }()

	f, err := root.Open(name)
	if err != nil {
		return "", fmt.Errorf("failed to open file %q: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading file %q: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Kind implements ports.VariableProvider.
func (p *FileProvider) Kind() variables.ProviderKind {
	return variables.ProviderKindStatic
}
