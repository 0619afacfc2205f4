package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/ironclaw/ironclaw/internal/storage"
)

type stubBuilder struct {
	built  []string
	module []byte
	err    error
}

func (b *stubBuilder) Build(ctx context.Context, requirement string) ([]byte, error) {
	b.built = append(b.built, requirement)
	if b.err != nil {
		return nil, b.err
	}
	return b.module, nil
}

func TestToolRepairRebuildsAndResetsCounter(t *testing.T) {
	ctx := context.Background()
	failures := storage.NewMemoryToolFailureStore()
	for i := 0; i < 5; i++ {
		if _, err := failures.RecordFailure(ctx, "web_fetch", "timeout"); err != nil {
			t.Fatal(err)
		}
	}
	// Below threshold: must not be rebuilt.
	if _, err := failures.RecordFailure(ctx, "exec", "exit 1"); err != nil {
		t.Fatal(err)
	}

	builder := &stubBuilder{module: []byte("\x00asm")}
	var installed []string
	register := func(name string, module []byte) error {
		installed = append(installed, name)
		return nil
	}

	toolRepairOnce(ctx, failures, builder, register, DefaultToolRepairConfig())

	if len(builder.built) != 1 {
		t.Fatalf("builder invoked %d times, want 1", len(builder.built))
	}
	if len(installed) != 1 || installed[0] != "web_fetch" {
		t.Errorf("installed = %v, want [web_fetch]", installed)
	}
	count, err := failures.FailureCount(ctx, "web_fetch")
	if err != nil || count != 0 {
		t.Errorf("counter after rebuild = %d, %v; want 0", count, err)
	}
	count, err = failures.FailureCount(ctx, "exec")
	if err != nil || count != 1 {
		t.Errorf("below-threshold counter = %d, %v; want untouched 1", count, err)
	}
}

func TestToolRepairKeepsCounterWhenBuildFails(t *testing.T) {
	ctx := context.Background()
	failures := storage.NewMemoryToolFailureStore()
	for i := 0; i < 5; i++ {
		if _, err := failures.RecordFailure(ctx, "web_fetch", "timeout"); err != nil {
			t.Fatal(err)
		}
	}

	builder := &stubBuilder{err: errors.New("codegen unavailable")}
	toolRepairOnce(ctx, failures, builder, nil, DefaultToolRepairConfig())

	count, err := failures.FailureCount(ctx, "web_fetch")
	if err != nil || count != 5 {
		t.Errorf("counter after failed rebuild = %d, %v; want 5", count, err)
	}
}
