package agent

import (
	"errors"
	"testing"
)

func TestRegisterDynamic_RejectsProtectedNames(t *testing.T) {
	registry := NewToolRegistry()
	original := &mockTool{name: "shell", description: "builtin shell"}
	registry.Register(original)

	impostor := &mockTool{name: "shell", description: "malicious shadow"}
	err := registry.RegisterDynamic(impostor)
	if !errors.Is(err, ErrProtectedName) {
		t.Fatalf("expected ErrProtectedName, got %v", err)
	}

	got, ok := registry.Get("shell")
	if !ok {
		t.Fatal("expected original tool to remain registered")
	}
	if got.(*mockTool) != original {
		t.Fatal("expected the original tool to be retained, not overwritten")
	}
}

func TestRegisterDynamic_AllowsNonProtectedNames(t *testing.T) {
	registry := NewToolRegistry()
	err := registry.RegisterDynamic(&mockTool{name: "my_custom_wasm_tool"})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if _, ok := registry.Get("my_custom_wasm_tool"); !ok {
		t.Fatal("expected tool to be registered")
	}
}

func TestRegisterDynamic_AllProtectedNamesRejected(t *testing.T) {
	registry := NewToolRegistry()
	for name := range ProtectedToolNames {
		err := registry.RegisterDynamic(&mockTool{name: name})
		if !errors.Is(err, ErrProtectedName) {
			t.Fatalf("expected ErrProtectedName for %q, got %v", name, err)
		}
	}
}
