package pairing

import (
	"testing"
	"time"
)

func TestStoreGetOrCreateRequestReusesPending(t *testing.T) {
	dir := t.TempDir()
	store := NewStoreWithDir("telegram", dir)

	req1, created1, err := store.GetOrCreateRequest("user-1", "Alice")
	if err != nil {
		t.Fatalf("GetOrCreateRequest() error = %v", err)
	}
	if !created1 {
		t.Fatalf("expected first request to be created")
	}

	req2, created2, err := store.GetOrCreateRequest("user-1", "Alice")
	if err != nil {
		t.Fatalf("GetOrCreateRequest() error = %v", err)
	}
	if created2 {
		t.Fatalf("expected second request to reuse pending request")
	}
	if req1.Code != req2.Code {
		t.Fatalf("expected same code, got %q and %q", req1.Code, req2.Code)
	}
}

func TestStoreApproveMovesToAllowlist(t *testing.T) {
	dir := t.TempDir()
	store := NewStoreWithDir("discord", dir)

	req, _, err := store.GetOrCreateRequest("user-2", "")
	if err != nil {
		t.Fatalf("GetOrCreateRequest() error = %v", err)
	}

	if _, err := store.Approve(req.Code); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	allowlist, err := store.LoadAllowlist()
	if err != nil {
		t.Fatalf("LoadAllowlist() error = %v", err)
	}
	if len(allowlist) != 1 || allowlist[0] != "user-2" {
		t.Fatalf("expected allowlist to contain user-2, got %v", allowlist)
	}

	pending, err := store.Pending()
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected pending to be empty, got %v", pending)
	}
}

func TestStoreDenyRemovesPending(t *testing.T) {
	dir := t.TempDir()
	store := NewStoreWithDir("slack", dir)

	req, _, err := store.GetOrCreateRequest("user-3", "")
	if err != nil {
		t.Fatalf("GetOrCreateRequest() error = %v", err)
	}

	if _, err := store.Deny(req.Code); err != nil {
		t.Fatalf("Deny() error = %v", err)
	}

	pending, err := store.Pending()
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected pending to be empty, got %v", pending)
	}
}

func TestStoreApproveRateLimitedAfterRepeatedFailures(t *testing.T) {
	dir := t.TempDir()
	store := NewStoreWithDir("telegram", dir)

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	for i := 0; i < maxApproveFailures; i++ {
		if _, err := store.Approve("WRONGCODE"); err != ErrCodeNotFound {
			t.Fatalf("attempt %d: error = %v, want ErrCodeNotFound", i, err)
		}
	}

	if _, err := store.Approve("WRONGCODE"); err != ErrApproveRateLimited {
		t.Fatalf("error = %v, want ErrApproveRateLimited", err)
	}

	// A correct code is also rejected while rate limited.
	req, _, err := store.GetOrCreateRequest("user-4", "")
	if err != nil {
		t.Fatalf("GetOrCreateRequest() error = %v", err)
	}
	if _, err := store.Approve(req.Code); err != ErrApproveRateLimited {
		t.Fatalf("error = %v, want ErrApproveRateLimited even for a valid code", err)
	}

	// Once the window passes, attempts are allowed again.
	now = now.Add(approveFailureWindow + time.Second)
	if _, err := store.Approve(req.Code); err != nil {
		t.Fatalf("Approve() after window reset error = %v", err)
	}
}

func TestStoreApproveResetsFailuresOnSuccess(t *testing.T) {
	dir := t.TempDir()
	store := NewStoreWithDir("discord", dir)

	for i := 0; i < maxApproveFailures-1; i++ {
		if _, err := store.Approve("WRONGCODE"); err != ErrCodeNotFound {
			t.Fatalf("attempt %d: error = %v, want ErrCodeNotFound", i, err)
		}
	}

	req, _, err := store.GetOrCreateRequest("user-5", "")
	if err != nil {
		t.Fatalf("GetOrCreateRequest() error = %v", err)
	}
	if _, err := store.Approve(req.Code); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	// A fresh round of failures should need the full budget again, proving
	// the successful approval reset the failure window.
	for i := 0; i < maxApproveFailures-1; i++ {
		if _, err := store.Approve("WRONGCODE"); err != ErrCodeNotFound {
			t.Fatalf("post-reset attempt %d: error = %v, want ErrCodeNotFound", i, err)
		}
	}
}
