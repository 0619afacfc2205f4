package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// JobPayload is what /worker/{id}/job returns: the task the container
// should run, independent of any further LLM interaction.
type JobPayload struct {
	JobID   string          `json:"job_id"`
	Tool    string          `json:"tool"`
	Params  json.RawMessage `json:"params"`
	Timeout time.Duration   `json:"timeout_ns"`
}

// LLMCompleter is the host-side interface a worker's /llm/complete and
// /llm/complete_with_tools calls are proxied through, so the container
// never holds provider API keys directly.
type LLMCompleter interface {
	Complete(ctx context.Context, jobID string, req json.RawMessage) (json.RawMessage, error)
	CompleteWithTools(ctx context.Context, jobID string, req json.RawMessage) (json.RawMessage, error)
}

// JobSource supplies job payloads and receives completion/status/event
// callbacks from a running worker container.
type JobSource interface {
	Job(ctx context.Context, jobID string) (*JobPayload, error)
	ReportStatus(ctx context.Context, jobID string, status json.RawMessage) error
	ReportEvent(ctx context.Context, jobID string, event json.RawMessage) error
	ReportComplete(ctx context.Context, jobID string, result json.RawMessage) error
	Prompt(ctx context.Context, jobID string, prompt json.RawMessage) (json.RawMessage, error)
}

// CredentialSource resolves the credentials a worker is allowed to use,
// gated by the per-job capability grant rather than the container's own
// request.
type CredentialSource interface {
	Credentials(ctx context.Context, jobID string) (json.RawMessage, error)
}

// API is the loopback-only HTTP server job containers talk to. Every
// route requires the job's bearer token and only ever serves that job's
// own data — a worker can never read another job's state even if it
// guesses another job's ID, since the token is checked against that
// specific ID.
type API struct {
	manager     *Manager
	jobs        JobSource
	llm         LLMCompleter
	credentials CredentialSource
	logger      *slog.Logger

	server   *http.Server
	listener net.Listener
}

// NewAPI builds the internal worker API, bound to loopback addr (or a
// Docker-bridge address when containers cannot reach 127.0.0.1 on the
// host, e.g. "172.17.0.1:0").
func NewAPI(manager *Manager, jobs JobSource, llm LLMCompleter, credentials CredentialSource, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{manager: manager, jobs: jobs, llm: llm, credentials: credentials, logger: logger}
}

// Start binds the API to addr and begins serving in the background.
// addr should be loopback-only ("127.0.0.1:0") unless the Docker network
// driver requires binding the bridge gateway address instead.
func (a *API) Start(ctx context.Context, addr string) (string, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/worker/", a.routeWorker)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("orchestrator: binding internal api: %w", err)
	}
	a.listener = listener
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("orchestrator: internal api server error", "error", err)
		}
	}()

	a.logger.Info("orchestrator: internal worker api listening", "addr", listener.Addr().String())
	return listener.Addr().String(), nil
}

// Stop shuts the API down.
func (a *API) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// routeWorker dispatches /worker/{id}/{endpoint} after authenticating the
// request's bearer token against {id}'s live grant.
func (a *API) routeWorker(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/worker/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	jobID, endpoint := parts[0], parts[1]

	token := bearerToken(r)
	if token == "" || !a.manager.VerifyToken(jobID, token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	switch endpoint {
	case "job":
		a.handleJob(ctx, w, jobID)
	case "credentials":
		a.handleCredentials(ctx, w, jobID)
	case "llm/complete":
		a.handleLLM(ctx, w, r, jobID, a.llm.Complete)
	case "llm/complete_with_tools":
		a.handleLLM(ctx, w, r, jobID, a.llm.CompleteWithTools)
	case "status":
		a.handleReport(ctx, w, r, jobID, a.jobs.ReportStatus)
	case "event":
		a.handleReport(ctx, w, r, jobID, a.jobs.ReportEvent)
	case "complete":
		a.handleReport(ctx, w, r, jobID, a.jobs.ReportComplete)
	case "prompt":
		a.handlePrompt(ctx, w, r, jobID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (a *API) handleJob(ctx context.Context, w http.ResponseWriter, jobID string) {
	payload, err := a.jobs.Job(ctx, jobID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, payload)
}

func (a *API) handleCredentials(ctx context.Context, w http.ResponseWriter, jobID string) {
	if a.credentials == nil {
		http.Error(w, "credentials not available", http.StatusNotImplemented)
		return
	}
	creds, err := a.credentials.Credentials(ctx, jobID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	writeJSON(w, creds)
}

func (a *API) handleLLM(ctx context.Context, w http.ResponseWriter, r *http.Request, jobID string, fn func(context.Context, string, json.RawMessage) (json.RawMessage, error)) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := fn(ctx, jobID, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, resp)
}

func (a *API) handleReport(ctx context.Context, w http.ResponseWriter, r *http.Request, jobID string, fn func(context.Context, string, json.RawMessage) error) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := fn(ctx, jobID, body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handlePrompt(ctx context.Context, w http.ResponseWriter, r *http.Request, jobID string) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := a.jobs.Prompt(ctx, jobID, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func readBody(r *http.Request) (json.RawMessage, error) {
	defer r.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("orchestrator: decoding request body: %w", err)
	}
	return raw, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
