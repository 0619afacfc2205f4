package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCanTransition_LegalEdges(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusCancelled, true},
		{StatusRunning, StatusSucceeded, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusStuck, true},
		{StatusStuck, StatusRunning, true},
		{StatusStuck, StatusFailed, true},
		// Illegal edges.
		{StatusQueued, StatusSucceeded, false},
		{StatusQueued, StatusStuck, false},
		{StatusStuck, StatusSucceeded, false},
		{StatusSucceeded, StatusRunning, false},
		{StatusFailed, StatusRunning, false},
		{StatusCancelled, StatusRunning, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestJobTransition_RejectsIllegalEdge(t *testing.T) {
	job := &Job{Status: StatusQueued}
	if job.Transition(StatusSucceeded, "") {
		t.Fatal("expected illegal transition to be rejected")
	}
	if job.Status != StatusQueued {
		t.Fatalf("status should be unchanged, got %s", job.Status)
	}
}

func TestJobTransition_AuditListCapped(t *testing.T) {
	job := &Job{Status: StatusQueued}
	job.Transition(StatusRunning, "start")
	for i := 0; i < MaxAuditEntries+50; i++ {
		// Bounce between Running and Stuck and back to build up entries.
		if job.Status == StatusRunning {
			job.Transition(StatusStuck, "stall")
		} else {
			job.Transition(StatusRunning, "recover")
		}
	}
	if len(job.Transitions) > MaxAuditEntries {
		t.Fatalf("expected audit list capped at %d, got %d", MaxAuditEntries, len(job.Transitions))
	}
}

func TestRepairLoop_RecoversStuckJob(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &Job{ID: "job-1", Status: StatusRunning, LastProgressAt: time.Now().Add(-10 * time.Minute)}
	_ = store.Create(ctx, job)

	cfg := RepairConfig{StuckThreshold: time.Second, MaxAttempts: 3}
	recover := func(ctx context.Context, j *Job) error { return nil }

	repairOnce(ctx, store, recover, cfg)
	got, _ := store.Get(ctx, "job-1")
	if got.Status != StatusStuck {
		t.Fatalf("expected job to be marked Stuck, got %s", got.Status)
	}

	repairOnce(ctx, store, recover, cfg)
	got, _ = store.Get(ctx, "job-1")
	if got.Status != StatusRunning {
		t.Fatalf("expected job to recover to Running, got %s", got.Status)
	}
}

func TestRepairLoop_ManualRequiredAfterMaxAttempts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &Job{ID: "job-2", Status: StatusStuck, RepairAttempts: 0}
	_ = store.Create(ctx, job)

	cfg := RepairConfig{StuckThreshold: time.Second, MaxAttempts: 2}
	alwaysFails := func(ctx context.Context, j *Job) error { return errors.New("still broken") }

	repairOnce(ctx, store, alwaysFails, cfg)
	repairOnce(ctx, store, alwaysFails, cfg)
	// Third pass exceeds MaxAttempts and finalizes the job.
	repairOnce(ctx, store, alwaysFails, cfg)

	got, _ := store.Get(ctx, "job-2")
	if got.Status != StatusFailed {
		t.Fatalf("expected job to finalize as Failed, got %s", got.Status)
	}
	if !got.ManualRequired {
		t.Fatal("expected ManualRequired to be set")
	}
}
