// Package wasmrt runs capability-scoped WebAssembly modules as agent tools.
//
// A module may only touch the outside world through host functions that
// check its manifest first: reading inside its workspace root, issuing
// HTTP requests to allowed hosts, invoking other registered tools, or
// reading named secrets. Anything not listed in the manifest is refused
// before any side effect occurs.
package wasmrt

import (
	"fmt"
	"strings"
)

// Capability is a single permission a module's manifest may grant.
type Capability string

const (
	CapWorkspaceRead Capability = "workspace_read"
	CapHTTP          Capability = "http"
	CapToolInvoke    Capability = "tool_invoke"
	CapSecrets       Capability = "secrets"
)

// HTTPCapability scopes outbound HTTP access to a set of host globs.
type HTTPCapability struct {
	Hosts          []string `json:"hosts"`
	MaxRequests    int      `json:"max_requests"`
	MaxResponseLen int      `json:"max_response_bytes"`
}

// WorkspaceReadCapability scopes filesystem reads to a path prefix.
type WorkspaceReadCapability struct {
	PathPrefix string `json:"path_prefix"`
}

// ToolInvokeCapability scopes which other registered tools this module may
// call through the host's tool_invoke function.
type ToolInvokeCapability struct {
	AllowedTools []string `json:"allowed_tools"`
	MaxInvokes   int      `json:"max_invokes"`
}

// SecretsCapability scopes which named secrets the module may ask the
// credential injector to use on its behalf. The module never receives the
// plaintext secret value directly.
type SecretsCapability struct {
	AllowedNames []string `json:"allowed_names"`
}

// Manifest declares everything a WASM tool module is permitted to do.
// Anything not granted here is refused at the host-function boundary.
type Manifest struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	SchemaJSON  string                   `json:"schema"`
	Workspace   *WorkspaceReadCapability `json:"workspace_read,omitempty"`
	HTTP        *HTTPCapability          `json:"http,omitempty"`
	ToolInvoke  *ToolInvokeCapability    `json:"tool_invoke,omitempty"`
	Secrets     *SecretsCapability       `json:"secrets,omitempty"`
}

// Grants reports which capabilities the manifest declares.
func (m *Manifest) Grants() []Capability {
	var caps []Capability
	if m.Workspace != nil {
		caps = append(caps, CapWorkspaceRead)
	}
	if m.HTTP != nil {
		caps = append(caps, CapHTTP)
	}
	if m.ToolInvoke != nil {
		caps = append(caps, CapToolInvoke)
	}
	if m.Secrets != nil {
		caps = append(caps, CapSecrets)
	}
	return caps
}

// Validate checks the manifest is internally consistent.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("wasmrt: manifest missing name")
	}
	if m.HTTP != nil && len(m.HTTP.Hosts) == 0 {
		return fmt.Errorf("wasmrt: http capability granted with no hosts")
	}
	if m.ToolInvoke != nil && len(m.ToolInvoke.AllowedTools) == 0 {
		return fmt.Errorf("wasmrt: tool_invoke capability granted with no allowed tools")
	}
	if m.Secrets != nil && len(m.Secrets.AllowedNames) == 0 {
		return fmt.Errorf("wasmrt: secrets capability granted with no allowed names")
	}
	return nil
}

// allowsHost reports whether the HTTP capability's host globs match host.
// Supports exact matches and a "*.example.com" wildcard form, matching the
// CredentialMapping glob syntax in internal/secrets.
func (c *HTTPCapability) allowsHost(host string) bool {
	host = strings.ToLower(host)
	for _, glob := range c.Hosts {
		glob = strings.ToLower(glob)
		if glob == host {
			return true
		}
		if strings.HasPrefix(glob, "*.") && strings.HasSuffix(host, glob[1:]) {
			return true
		}
	}
	return false
}

func (t *ToolInvokeCapability) allowsTool(name string) bool {
	for _, allowed := range t.AllowedTools {
		if allowed == name {
			return true
		}
	}
	return false
}

func (s *SecretsCapability) allowsSecret(name string) bool {
	for _, allowed := range s.AllowedNames {
		if allowed == name {
			return true
		}
	}
	return false
}
