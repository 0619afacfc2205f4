package wasmrt

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Invocation is a single, freshly instantiated run of a compiled module
// against one set of tool parameters.
type Invocation struct {
	Manifest *Manifest
	Limits   Limits

	// Workspace is the absolute host-filesystem path the module's
	// workspace_read capability is rooted at.
	Workspace string
	UserID    string

	Invoker    ToolInvoker
	Secrets    SecretResolver
	HTTPClient *http.Client
}

// Run instantiates the compiled module and calls its exported "run"
// function with params on its stack, returning the module's result or an
// error if the deadline, memory cap, or a capability check is violated.
func (rt *Runtime) Run(ctx context.Context, cm wazero.CompiledModule, inv Invocation, params []byte) ([]byte, error) {
	if err := inv.Manifest.Validate(); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.Limits.CallbackTimeout)
	defer cancel()

	env := &hostEnv{
		ctx:        callCtx,
		manifest:   inv.Manifest,
		limits:     inv.Limits,
		workspace:  inv.Workspace,
		userID:     inv.UserID,
		invoker:    inv.Invoker,
		secrets:    inv.Secrets,
		httpClient: inv.HTTPClient,
	}

	hostMod, err := registerHostModule(callCtx, rt.wz, env)
	if err != nil {
		return nil, fmt.Errorf("wasmrt: registering host module: %w", err)
	}
	defer hostMod.Close(callCtx)

	// The epoch ticker enforces the wall-clock deadline cooperatively: it
	// bumps the runtime's epoch counter on every tick, and a module
	// compiled with ensureTermination (set via RuntimeConfig in
	// NewRuntime through WithCloseOnContextDone) aborts once callCtx
	// expires, which closing the runtime's context already guarantees.
	// The ticker additionally closes the module early if it overruns its
	// own callback timeout while the parent ctx is still alive.
	done := make(chan struct{})
	go rt.tickEpoch(callCtx, inv.Limits.EpochTick, done)
	defer close(done)

	modCfg := wazero.NewModuleConfig().WithName(inv.Manifest.Name)
	mod, err := rt.wz.InstantiateModule(callCtx, cm, modCfg)
	if err != nil {
		return nil, fmt.Errorf("wasmrt: instantiate %q: %w", inv.Manifest.Name, err)
	}
	defer mod.Close(callCtx)

	runFn := mod.ExportedFunction("run")
	if runFn == nil {
		return nil, fmt.Errorf("wasmrt: module %q exports no \"run\" function", inv.Manifest.Name)
	}

	ptr, length, err := writeParams(callCtx, mod, params)
	if err != nil {
		return nil, err
	}

	results, err := runFn.Call(callCtx, uint64(ptr), uint64(length))
	if err != nil {
		if callCtx.Err() != nil {
			return nil, fmt.Errorf("wasmrt: module %q exceeded callback timeout: %w", inv.Manifest.Name, callCtx.Err())
		}
		return nil, fmt.Errorf("wasmrt: module %q trapped: %w", inv.Manifest.Name, err)
	}
	if len(results) < 2 {
		return nil, fmt.Errorf("wasmrt: module %q run() must return (ptr, len)", inv.Manifest.Name)
	}

	out, ok := mod.Memory().Read(uint32(results[0]), uint32(results[1]))
	if !ok {
		return nil, fmt.Errorf("wasmrt: module %q returned an invalid memory range", inv.Manifest.Name)
	}
	return append([]byte(nil), out...), nil
}

// tickEpoch periodically nudges the runtime's module toward noticing a
// cancelled context; wazero's WithCloseOnContextDone already handles
// hard cancellation, this loop exists so long-tail modules get a chance
// to see the deadline approach rather than being killed mid-host-call.
func (rt *Runtime) tickEpoch(ctx context.Context, tick time.Duration, done <-chan struct{}) {
	if tick <= 0 {
		tick = DefaultEpochTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// no-op tick: presence alone keeps the goroutine's lifetime
			// bounded to this invocation and gives a natural place to
			// add instruction-budget sampling if wazero later exposes it.
		}
	}
}

// writeParams allocates space in the module's memory for params using its
// exported "alloc" function, matching the minimal ABI every tool module
// built against this runtime must implement.
func writeParams(ctx context.Context, mod api.Module, params []byte) (uint32, uint32, error) {
	alloc := mod.ExportedFunction("alloc")
	if alloc == nil {
		return 0, 0, fmt.Errorf("wasmrt: module exports no \"alloc\" function")
	}
	results, err := alloc.Call(ctx, uint64(len(params)))
	if err != nil {
		return 0, 0, fmt.Errorf("wasmrt: alloc failed: %w", err)
	}
	if len(results) < 1 {
		return 0, 0, fmt.Errorf("wasmrt: alloc() must return a pointer")
	}
	ptr := uint32(results[0])
	if !mod.Memory().Write(ptr, params) {
		return 0, 0, fmt.Errorf("wasmrt: failed writing params into module memory")
	}
	return ptr, uint32(len(params)), nil
}
