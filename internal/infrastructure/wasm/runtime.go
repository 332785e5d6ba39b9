// Package wasm runs sandboxed guest components whose outbound sockets are
// checked by the egress_host module.
package wasm

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/reglet-dev/egress/internal/infrastructure/redaction"
	"github.com/reglet-dev/egress/internal/infrastructure/wasm/hostfuncs"
)

// globalCache speeds up compilation across runtimes.
var globalCache = wazero.NewCompilationCache()

// Runtime manages guest compilation and execution.
type Runtime struct {
	runtime  wazero.Runtime
	mu       sync.RWMutex
	guests   map[string]*Guest
	redactor *redaction.Redactor
}

// NewRuntime creates a runtime with WASI and the egress_host module.
// memoryLimitMB: 0 selects the default (256), -1 disables the limit.
// redactor may be nil.
func NewRuntime(ctx context.Context, memoryLimitMB int, redactor *redaction.Redactor) (*Runtime, error) {
	switch {
	case memoryLimitMB == 0:
		memoryLimitMB = 256
	case memoryLimitMB == -1:
		slog.Warn("WASM memory limit disabled (unlimited memory)")
	case memoryLimitMB > 0:
		if memoryLimitMB < 64 {
			slog.Warn("WASM memory limit very low, guests may fail", "mb", memoryLimitMB)
		}
	default:
		return nil, fmt.Errorf("invalid WASM memory limit: %d (must be >= -1)", memoryLimitMB)
	}

	config := wazero.NewRuntimeConfig().WithCompilationCache(globalCache)
	if memoryLimitMB > 0 {
		// 1 MB = 16 pages of 64KB
		config = config.WithMemoryLimitPages(uint32(memoryLimitMB * 16)) //nolint:gosec // bounded above
	}

	r := wazero.NewRuntimeWithConfig(ctx, config)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	if err := hostfuncs.RegisterHostFunctions(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	return &Runtime{
		runtime:  r,
		guests:   make(map[string]*Guest),
		redactor: redactor,
	}, nil
}

// LoadGuest compiles and caches a guest module under name.
func (r *Runtime) LoadGuest(ctx context.Context, name string, wasmBytes []byte) (*Guest, error) {
	r.mu.RLock()
	if g, ok := r.guests[name]; ok {
		r.mu.RUnlock()
		return g, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.guests[name]; ok {
		return g, nil
	}

	compiled, err := r.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile guest %s: %w", name, err)
	}

	var stdout, stderr io.Writer = os.Stderr, os.Stderr
	if r.redactor != nil {
		stdout = redaction.NewWriter(os.Stderr, r.redactor)
		stderr = redaction.NewWriter(os.Stderr, r.redactor)
	}

	g := &Guest{
		name:    name,
		module:  compiled,
		runtime: r.runtime,
		stdout:  stdout,
		stderr:  stderr,
	}
	r.guests[name] = g
	return g, nil
}

// Close closes the runtime and every module it instantiated.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// Guest is a compiled component module.
type Guest struct {
	module  wazero.CompiledModule
	runtime wazero.Runtime
	stdout  io.Writer
	stderr  io.Writer
	name    string
}

// Name returns the guest's name.
func (g *Guest) Name() string {
	return g.name
}

// Call instantiates a fresh copy of the guest and invokes the exported
// function fn. Socket checks made by the guest during the call are decided
// by checker.
func (g *Guest) Call(ctx context.Context, checker hostfuncs.SocketChecker, fn string, params ...uint64) ([]uint64, error) {
	ctx = hostfuncs.WithSocketChecker(ctx, checker)

	config := wazero.NewModuleConfig().
		WithName("").
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader).
		WithStdout(g.stdout).
		WithStderr(g.stderr)

	instance, err := g.runtime.InstantiateModule(ctx, g.module, config)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate guest %s: %w", g.name, err)
	}
	defer func() {
		_ = instance.Close(ctx)
	}()

	if initFn := instance.ExportedFunction("_initialize"); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize guest %s: %w", g.name, err)
		}
	}

	f := instance.ExportedFunction(fn)
	if f == nil {
		return nil, fmt.Errorf("guest %s does not export %q", g.name, fn)
	}
	results, err := f.Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("guest %s: %s failed: %w", g.name, fn, err)
	}
	return results, nil
}
