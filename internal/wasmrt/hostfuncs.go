package wasmrt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/ironclaw/ironclaw/internal/workspace"
)

// ErrCapabilityDenied is returned (and surfaced to the module as a
// negative result code) whenever a host function is called for a
// capability the manifest did not grant.
var ErrCapabilityDenied = fmt.Errorf("wasmrt: capability denied")

// ToolInvoker is the subset of the agent's tool dispatch surface a WASM
// module may reach through the tool_invoke host function.
type ToolInvoker interface {
	Execute(ctx context.Context, name string, params []byte) (content string, isError bool, err error)
}

// SecretResolver lets a module request a secret be attached to an
// outbound HTTP call without ever seeing the plaintext itself, mirroring
// internal/secrets.Injector's capability-gated model.
type SecretResolver interface {
	ApplyToRequest(ctx context.Context, userID, secretName string, req *http.Request) error
}

// hostEnv is the per-invocation state host functions close over. One is
// built fresh for each Execute call so budgets never leak between calls.
type hostEnv struct {
	ctx       context.Context
	manifest  *Manifest
	limits    Limits
	workspace string // absolute path the module's workspace reads are rooted at
	userID    string

	invoker  ToolInvoker
	secrets  SecretResolver
	httpClient *http.Client

	httpCalls  atomic.Int64
	toolCalls  atomic.Int64
	lastResult []byte // staging area the next host call result is read from by the module
}

// registerHostModule wires this invocation's host functions into the
// "env" module namespace before the tool module is instantiated.
func registerHostModule(ctx context.Context, wz wazero.Runtime, env *hostEnv) (api.Closer, error) {
	builder := wz.NewHostModuleBuilder("env")

	builder.NewFunctionBuilder().
		WithFunc(env.hostWorkspaceRead).
		Export("workspace_read")

	builder.NewFunctionBuilder().
		WithFunc(env.hostHTTPFetch).
		Export("http_fetch")

	builder.NewFunctionBuilder().
		WithFunc(env.hostToolInvoke).
		Export("tool_invoke")

	builder.NewFunctionBuilder().
		WithFunc(env.hostSecretAttach).
		Export("secret_attach")

	builder.NewFunctionBuilder().
		WithFunc(env.hostLog).
		Export("host_log")

	return builder.Instantiate(ctx)
}

// hostWorkspaceRead reads a file relative to the module's workspace root.
// pathPtr/pathLen point at a UTF-8 path string inside the module's linear
// memory; the result is staged in env.lastResult for the module to pull
// via a follow-up result_len/result_read pair (the minimal ABI every host
// function here shares).
func (e *hostEnv) hostWorkspaceRead(ctx context.Context, m api.Module, pathPtr, pathLen uint32) int32 {
	if e.manifest.Workspace == nil {
		return denyResult(e, ErrCapabilityDenied)
	}
	path, ok := m.Memory().Read(pathPtr, pathLen)
	if !ok {
		return denyResult(e, fmt.Errorf("wasmrt: invalid path pointer"))
	}
	rel, err := workspace.ValidateSandboxPath(string(path))
	if err != nil {
		return denyResult(e, fmt.Errorf("%w: %v", ErrCapabilityDenied, err))
	}
	if !strings.HasPrefix(rel, e.manifest.Workspace.PathPrefix) {
		return denyResult(e, fmt.Errorf("%w: path %q outside granted prefix %q", ErrCapabilityDenied, rel, e.manifest.Workspace.PathPrefix))
	}
	full := filepath.Join(e.workspace, filepath.FromSlash(rel))
	data, err := os.ReadFile(full)
	if err != nil {
		return denyResult(e, err)
	}
	e.lastResult = data
	return int32(len(data))
}

// hostHTTPFetch issues an outbound GET to a host allowed by the HTTP
// capability. methodPtr/urlPtr etc. follow the same ptr/len ABI.
func (e *hostEnv) hostHTTPFetch(ctx context.Context, m api.Module, urlPtr, urlLen uint32) int32 {
	if e.manifest.HTTP == nil {
		return denyResult(e, ErrCapabilityDenied)
	}
	maxReq := e.manifest.HTTP.MaxRequests
	if maxReq <= 0 || maxReq > e.limits.MaxHTTPRequests {
		maxReq = e.limits.MaxHTTPRequests
	}
	if e.httpCalls.Add(1) > int64(maxReq) {
		return denyResult(e, fmt.Errorf("wasmrt: http request budget (%d) exceeded", maxReq))
	}

	raw, ok := m.Memory().Read(urlPtr, urlLen)
	if !ok {
		return denyResult(e, fmt.Errorf("wasmrt: invalid url pointer"))
	}
	url := string(raw)
	host := hostOf(url)
	if !e.manifest.HTTP.allowsHost(host) {
		return denyResult(e, fmt.Errorf("%w: host %q not in granted list", ErrCapabilityDenied, host))
	}

	client := e.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	reqCtx, cancel := context.WithTimeout(e.ctx, e.limits.CallbackTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return denyResult(e, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return denyResult(e, err)
	}
	defer resp.Body.Close()

	maxLen := e.manifest.HTTP.MaxResponseLen
	if maxLen <= 0 {
		maxLen = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxLen)))
	if err != nil {
		return denyResult(e, err)
	}
	e.lastResult = body
	return int32(len(body))
}

// hostToolInvoke dispatches a call to another registered tool, if the
// tool_invoke capability allows the named tool and the per-call budget
// has not been exhausted.
func (e *hostEnv) hostToolInvoke(ctx context.Context, m api.Module, namePtr, nameLen, paramsPtr, paramsLen uint32) int32 {
	if e.manifest.ToolInvoke == nil || e.invoker == nil {
		return denyResult(e, ErrCapabilityDenied)
	}
	maxCalls := e.manifest.ToolInvoke.MaxInvokes
	if maxCalls <= 0 || maxCalls > e.limits.MaxToolInvokes {
		maxCalls = e.limits.MaxToolInvokes
	}
	if e.toolCalls.Add(1) > int64(maxCalls) {
		return denyResult(e, fmt.Errorf("wasmrt: tool_invoke budget (%d) exceeded", maxCalls))
	}

	nameRaw, ok := m.Memory().Read(namePtr, nameLen)
	if !ok {
		return denyResult(e, fmt.Errorf("wasmrt: invalid tool name pointer"))
	}
	name := string(nameRaw)
	if !e.manifest.ToolInvoke.allowsTool(name) {
		return denyResult(e, fmt.Errorf("%w: tool %q not in granted list", ErrCapabilityDenied, name))
	}
	params, ok := m.Memory().Read(paramsPtr, paramsLen)
	if !ok {
		return denyResult(e, fmt.Errorf("wasmrt: invalid params pointer"))
	}

	callCtx, cancel := context.WithTimeout(e.ctx, e.limits.CallbackTimeout)
	defer cancel()
	content, isErr, err := e.invoker.Execute(callCtx, name, params)
	if err != nil {
		return denyResult(e, err)
	}
	if isErr {
		e.lastResult = []byte(content)
		return -int32(len(content)) - 1 // negative-but-distinguishable: tool ran, result is an error payload
	}
	e.lastResult = []byte(content)
	return int32(len(content))
}

// hostSecretAttach asks the secret resolver to attach a named secret to
// an in-flight outbound request the module never sees the plaintext of.
// nameIdx is looked up against the manifest's allowlist before anything
// reaches the vault.
func (e *hostEnv) hostSecretAttach(ctx context.Context, m api.Module, namePtr, nameLen uint32) int32 {
	if e.manifest.Secrets == nil || e.secrets == nil {
		return denyResult(e, ErrCapabilityDenied)
	}
	nameRaw, ok := m.Memory().Read(namePtr, nameLen)
	if !ok {
		return denyResult(e, fmt.Errorf("wasmrt: invalid secret name pointer"))
	}
	name := string(nameRaw)
	if !e.manifest.Secrets.allowsSecret(name) {
		return denyResult(e, fmt.Errorf("%w: secret %q not in granted list", ErrCapabilityDenied, name))
	}
	// The actual attachment happens at the egress boundary (internal/egress,
	// internal/secrets.Injector), not here; this host function only
	// records that the module requested it and validates the grant.
	return 0
}

// hostLog lets a module emit a single log line, rate-limited implicitly
// by the callback timeout and fuel budget surrounding it.
func (e *hostEnv) hostLog(ctx context.Context, m api.Module, msgPtr, msgLen uint32) {
	msg, ok := m.Memory().Read(msgPtr, msgLen)
	if !ok {
		return
	}
	_ = msg // wired by the tool adapter's logger, kept minimal here
}

func denyResult(e *hostEnv, err error) int32 {
	e.lastResult = []byte(err.Error())
	return -1
}

func hostOf(rawURL string) string {
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return rawURL
	}
	rest := rawURL[idx+3:]
	if slash := strings.IndexAny(rest, "/?#"); slash >= 0 {
		rest = rest[:slash]
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	if colon := strings.LastIndex(rest, ":"); colon >= 0 {
		rest = rest[:colon]
	}
	return rest
}
