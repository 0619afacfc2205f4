package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeJobSource struct{}

func (fakeJobSource) Job(ctx context.Context, jobID string) (*JobPayload, error) {
	return &JobPayload{JobID: jobID, Tool: "noop"}, nil
}
func (fakeJobSource) ReportStatus(ctx context.Context, jobID string, status json.RawMessage) error {
	return nil
}
func (fakeJobSource) ReportEvent(ctx context.Context, jobID string, event json.RawMessage) error {
	return nil
}
func (fakeJobSource) ReportComplete(ctx context.Context, jobID string, result json.RawMessage) error {
	return nil
}
func (fakeJobSource) Prompt(ctx context.Context, jobID string, prompt json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{"ok":true}`), nil
}

type fakeLLM struct{}

func (fakeLLM) Complete(ctx context.Context, jobID string, req json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{"text":"hi"}`), nil
}
func (fakeLLM) CompleteWithTools(ctx context.Context, jobID string, req json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{"text":"hi"}`), nil
}

func newTestAPI() (*API, *Manager) {
	mgr := &Manager{tokens: NewTokenStore()}
	api := NewAPI(mgr, fakeJobSource{}, fakeLLM{}, nil, nil)
	return api, mgr
}

func TestAPI_RejectsMissingToken(t *testing.T) {
	api, mgr := newTestAPI()
	mgr.tokens.Issue("job-1")

	req := httptest.NewRequest(http.MethodGet, "/worker/job-1/job", nil)
	rec := httptest.NewRecorder()
	api.routeWorker(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAPI_RejectsOtherJobsToken(t *testing.T) {
	api, mgr := newTestAPI()
	mgr.tokens.Issue("job-1")
	tokenB, _ := mgr.tokens.Issue("job-2")

	req := httptest.NewRequest(http.MethodGet, "/worker/job-1/job", nil)
	req.Header.Set("Authorization", "Bearer "+tokenB)
	rec := httptest.NewRecorder()
	api.routeWorker(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected job-2's token to be rejected for job-1, got %d", rec.Code)
	}
}

func TestAPI_ValidTokenReachesJobEndpoint(t *testing.T) {
	api, mgr := newTestAPI()
	token, _ := mgr.tokens.Issue("job-1")

	req := httptest.NewRequest(http.MethodGet, "/worker/job-1/job", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.routeWorker(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload JobPayload
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.JobID != "job-1" {
		t.Fatalf("expected job-1, got %q", payload.JobID)
	}
}

func TestAPI_PromptRoundTrip(t *testing.T) {
	api, mgr := newTestAPI()
	token, _ := mgr.tokens.Issue("job-1")

	req := httptest.NewRequest(http.MethodPost, "/worker/job-1/prompt", bytes.NewBufferString(`{"q":"hi"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.routeWorker(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPI_RevokedTokenIsRejectedAfterTeardown(t *testing.T) {
	api, mgr := newTestAPI()
	token, _ := mgr.tokens.Issue("job-1")
	mgr.tokens.Revoke("job-1")

	req := httptest.NewRequest(http.MethodGet, "/worker/job-1/job", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.routeWorker(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", rec.Code)
	}
}
