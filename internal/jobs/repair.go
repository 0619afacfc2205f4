package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ironclaw/ironclaw/internal/storage"
)

// RecoveryFunc attempts to resume a stuck job's underlying work. Returning
// nil means the job should move back to StatusRunning; a non-nil error
// keeps it counted against RepairAttempts.
type RecoveryFunc func(ctx context.Context, job *Job) error

// RepairConfig tunes the self-repair background loop.
type RepairConfig struct {
	// StuckThreshold is how long a Running job may go without a progress
	// update before it is declared Stuck. Default 300s.
	StuckThreshold time.Duration
	// MaxAttempts is how many recovery attempts are made before a Stuck
	// job is finalized as Failed with ManualRequired set.
	MaxAttempts int
	// PollInterval is how often the loop scans for stuck/recoverable jobs.
	PollInterval time.Duration
}

// DefaultRepairConfig returns the default tuning.
func DefaultRepairConfig() RepairConfig {
	return RepairConfig{
		StuckThreshold: 300 * time.Second,
		MaxAttempts:    3,
		PollInterval:   30 * time.Second,
	}
}

// RunRepairLoop polls store for Running jobs that have gone stale past
// StuckThreshold (moving them to Stuck) and for Stuck jobs (attempting
// recovery via recover, up to MaxAttempts). It blocks until ctx is
// cancelled, so callers should run it in its own goroutine.
func RunRepairLoop(ctx context.Context, store Store, recover RecoveryFunc, cfg RepairConfig) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultRepairConfig().PollInterval
	}
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			repairOnce(ctx, store, recover, cfg)
		}
	}
}

// repairOnce runs a single scan-and-recover pass. Exported as a standalone
// step (via RunRepairLoop's ticker body) so tests can drive it
// deterministically instead of waiting on a ticker.
func repairOnce(ctx context.Context, store Store, recover RecoveryFunc, cfg RepairConfig) {
	allJobs, err := store.List(ctx, 0, 0)
	if err != nil {
		log.Printf("jobs: repair loop: list failed: %v", err)
		return
	}

	now := time.Now()
	for _, job := range allJobs {
		switch job.Status {
		case StatusRunning:
			if job.LastProgressAt.IsZero() {
				continue
			}
			if now.Sub(job.LastProgressAt) > cfg.StuckThreshold {
				if job.Transition(StatusStuck, "no progress within stuck threshold") {
					_ = store.Update(ctx, job)
				}
			}
		case StatusStuck:
			attemptRecovery(ctx, store, recover, cfg, job)
		}
	}
}

func attemptRecovery(ctx context.Context, store Store, recover RecoveryFunc, cfg RepairConfig, job *Job) {
	if job.RepairAttempts >= cfg.MaxAttempts {
		job.ManualRequired = true
		job.Transition(StatusFailed, "max repair attempts exceeded")
		_ = store.Update(ctx, job)
		return
	}

	job.RepairAttempts++
	if recover == nil {
		_ = store.Update(ctx, job)
		return
	}

	if err := recover(ctx, job); err != nil {
		job.Error = err.Error()
		_ = store.Update(ctx, job)
		return
	}

	job.Transition(StatusRunning, "recovered by self-repair")
	_ = store.Update(ctx, job)
}

// ToolBuilder rebuilds a chronically failing tool from a natural-language
// requirement, returning the compiled module bytes.
type ToolBuilder interface {
	Build(ctx context.Context, requirement string) ([]byte, error)
}

// ToolRegistrar installs a rebuilt tool module under its name.
type ToolRegistrar func(name string, module []byte) error

// ToolRepairConfig tunes the failing-tool rebuild loop.
type ToolRepairConfig struct {
	// FailureThreshold is how many recorded failures a tool needs before
	// a rebuild is attempted. Default 5.
	FailureThreshold int
	// PollInterval is how often the loop scans the failure counters.
	PollInterval time.Duration
}

// DefaultToolRepairConfig returns the default tuning.
func DefaultToolRepairConfig() ToolRepairConfig {
	return ToolRepairConfig{
		FailureThreshold: 5,
		PollInterval:     time.Minute,
	}
}

// RunToolRepairLoop is the second half of self-repair: it polls the
// tool-failure counters for tools at or past the threshold and asks the
// builder for a replacement. A successful rebuild is installed through
// register and the tool's counter is reset; a failed rebuild leaves the
// counter in place for the next pass. Blocks until ctx is cancelled.
func RunToolRepairLoop(ctx context.Context, failures storage.ToolFailureStore, builder ToolBuilder, register ToolRegistrar, cfg ToolRepairConfig) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultToolRepairConfig().PollInterval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultToolRepairConfig().FailureThreshold
	}
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			toolRepairOnce(ctx, failures, builder, register, cfg)
		}
	}
}

func toolRepairOnce(ctx context.Context, failures storage.ToolFailureStore, builder ToolBuilder, register ToolRegistrar, cfg ToolRepairConfig) {
	if failures == nil || builder == nil {
		return
	}
	failing, err := failures.ListExceeding(ctx, cfg.FailureThreshold)
	if err != nil {
		log.Printf("jobs: tool repair loop: list failed: %v", err)
		return
	}

	for _, f := range failing {
		requirement := fmt.Sprintf("rebuild tool %q; %d consecutive failures, most recent: %s",
			f.ToolName, f.Count, f.LastReason)
		module, err := builder.Build(ctx, requirement)
		if err != nil {
			log.Printf("jobs: tool repair loop: rebuild of %q failed: %v", f.ToolName, err)
			continue
		}
		if register != nil {
			if err := register(f.ToolName, module); err != nil {
				log.Printf("jobs: tool repair loop: install of rebuilt %q failed: %v", f.ToolName, err)
				continue
			}
		}
		if err := failures.ResetFailures(ctx, f.ToolName); err != nil {
			log.Printf("jobs: tool repair loop: reset counter for %q failed: %v", f.ToolName, err)
		}
	}
}
