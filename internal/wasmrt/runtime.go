package wasmrt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tetratelabs/wazero"
)

// Runtime owns a wazero runtime and a cache of compiled modules, so that
// repeated invocations of the same tool reuse compilation work the way
// internal/tools/sandbox.Pool reuses warm executors.
type Runtime struct {
	logger *slog.Logger

	mu        sync.Mutex
	wz        wazero.Runtime
	compiled  map[string]wazero.CompiledModule
	closeOnce sync.Once
}

// NewRuntime builds a wazero runtime configured to honor context
// cancellation (our stand-in for epoch-based preemption, since the
// callback-timeout context is cancelled on expiry either way) and the
// given memory cap.
func NewRuntime(ctx context.Context, limits Limits, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(memoryLimitPages(limits.MemoryLimitBytes))

	return &Runtime{
		logger:   logger,
		wz:       wazero.NewRuntimeWithConfig(ctx, cfg),
		compiled: make(map[string]wazero.CompiledModule),
	}
}

// Compile compiles and caches a module's bytecode under key (typically the
// manifest name), returning the cached copy on subsequent calls.
func (r *Runtime) Compile(ctx context.Context, key string, wasmBytes []byte) (wazero.CompiledModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cm, ok := r.compiled[key]; ok {
		return cm, nil
	}
	cm, err := r.wz.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("wasmrt: compile %q: %w", key, err)
	}
	r.compiled[key] = cm
	return cm, nil
}

// Wazero exposes the underlying wazero.Runtime so host modules can be
// registered against it before any tool module is instantiated.
func (r *Runtime) Wazero() wazero.Runtime {
	return r.wz
}

// Close releases the runtime and all compiled modules.
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		err = r.wz.Close(ctx)
	})
	return err
}
