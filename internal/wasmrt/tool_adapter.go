package wasmrt

import (
	"context"
	"encoding/json"
	"fmt"
)

// ModuleTool adapts a compiled WASM module to the agent package's Tool
// interface (Name/Description/Schema/Execute), so the dynamic tool
// registry can hold WASM-backed tools alongside native ones. It
// implements the same four-method shape as agent.Tool without importing
// internal/agent, avoiding an import cycle; callers register it through
// Runtime.RegisterDynamicTool (see internal/agent/runtime.go).
type ModuleTool struct {
	rt       *Runtime
	manifest *Manifest
	invoke   Invocation
	run      func(ctx context.Context, params []byte) ([]byte, error)
}

// NewModuleTool loads wasmBytes, validates its manifest, and returns a
// ready-to-register tool. workspace is the host path the module's
// workspace_read capability is rooted at.
func NewModuleTool(ctx context.Context, rt *Runtime, manifest *Manifest, wasmBytes []byte, workspace string, invoker ToolInvoker, secrets SecretResolver) (*ModuleTool, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	cm, err := rt.Compile(ctx, manifest.Name, wasmBytes)
	if err != nil {
		return nil, err
	}

	inv := Invocation{
		Manifest:  manifest,
		Limits:    DefaultLimits(),
		Workspace: workspace,
		Invoker:   invoker,
		Secrets:   secrets,
	}

	mt := &ModuleTool{rt: rt, manifest: manifest, invoke: inv}
	mt.run = func(callCtx context.Context, params []byte) ([]byte, error) {
		return rt.Run(callCtx, cm, mt.invoke, params)
	}
	return mt, nil
}

// Name returns the tool's registration name.
func (t *ModuleTool) Name() string { return t.manifest.Name }

// Description returns the tool's natural-language description for the LLM.
func (t *ModuleTool) Description() string { return t.manifest.Description }

// Schema returns the tool's JSON Schema parameter definition.
func (t *ModuleTool) Schema() json.RawMessage { return json.RawMessage(t.manifest.SchemaJSON) }

// Execute runs the module against params, matching agent.Tool's Execute
// signature shape (the concrete *ToolResult type lives in internal/agent;
// this returns the (content, isError) pair the adapter there wraps).
func (t *ModuleTool) Execute(ctx context.Context, params json.RawMessage) (content string, isError bool, err error) {
	out, runErr := t.run(ctx, params)
	if runErr != nil {
		return runErr.Error(), true, nil
	}
	var envelope struct {
		Content string `json:"content"`
		IsError bool   `json:"is_error"`
	}
	if jsonErr := json.Unmarshal(out, &envelope); jsonErr != nil {
		return fmt.Sprintf("wasmrt: malformed module output: %v", jsonErr), true, nil
	}
	return envelope.Content, envelope.IsError, nil
}
