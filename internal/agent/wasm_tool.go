package agent

import (
	"context"
	"encoding/json"
)

// wasmModuleTool is the minimal surface internal/wasmrt.ModuleTool exposes;
// declared locally so this package never imports wasmrt's wazero
// dependency just to describe the shape it adapts.
type wasmModuleTool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (content string, isError bool, err error)
}

// WrapWASMTool adapts a wasmrt.ModuleTool (or anything with the same
// shape) to this package's Tool interface, so WASM-backed tools can flow
// through RegisterDynamicTool like any other dynamically loaded tool.
func WrapWASMTool(m wasmModuleTool) Tool {
	return &wasmToolAdapter{m: m}
}

type wasmToolAdapter struct {
	m wasmModuleTool
}

func (a *wasmToolAdapter) Name() string           { return a.m.Name() }
func (a *wasmToolAdapter) Description() string    { return a.m.Description() }
func (a *wasmToolAdapter) Schema() json.RawMessage { return a.m.Schema() }

func (a *wasmToolAdapter) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	content, isError, err := a.m.Execute(ctx, params)
	if err != nil {
		return nil, err
	}
	return &ToolResult{Content: content, IsError: isError}, nil
}
