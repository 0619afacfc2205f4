package agent

import (
	"context"
	"testing"
	"time"

	"github.com/ironclaw/ironclaw/pkg/models"
)

// countingProvider records how many times Complete was called and returns a
// canned sequence of chunks, optionally including a tool call.
type countingProvider struct {
	calls    int
	text     string
	toolCall *models.ToolCall
}

func (p *countingProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	p.calls++
	out := make(chan *CompletionChunk, 2)
	if p.toolCall != nil {
		out <- &CompletionChunk{ToolCall: p.toolCall}
	}
	out <- &CompletionChunk{Text: p.text, Done: true, InputTokens: 10, OutputTokens: 20}
	close(out)
	return out, nil
}

func (p *countingProvider) Name() string        { return "counting" }
func (p *countingProvider) Models() []Model     { return nil }
func (p *countingProvider) SupportsTools() bool { return true }

func drainText(t *testing.T, ch <-chan *CompletionChunk) string {
	t.Helper()
	var text string
	for chunk := range ch {
		text += chunk.Text
	}
	return text
}

func TestResponseCacheHitAvoidsSecondCall(t *testing.T) {
	inner := &countingProvider{text: "hello there"}
	cache := NewResponseCache(inner, 10, time.Minute)

	req := &CompletionRequest{Model: "m", Messages: []CompletionMessage{{Role: "user", Content: "hi"}}}

	ch1, err := cache.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drainText(t, ch1); got != "hello there" {
		t.Fatalf("got %q", got)
	}

	ch2, err := cache.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drainText(t, ch2); got != "hello there" {
		t.Fatalf("got %q", got)
	}

	if inner.calls != 1 {
		t.Fatalf("inner.calls = %d, want 1 (second request should be served from cache)", inner.calls)
	}
}

func TestResponseCacheDifferentRequestsMiss(t *testing.T) {
	inner := &countingProvider{text: "x"}
	cache := NewResponseCache(inner, 10, time.Minute)

	req1 := &CompletionRequest{Model: "m", Messages: []CompletionMessage{{Role: "user", Content: "one"}}}
	req2 := &CompletionRequest{Model: "m", Messages: []CompletionMessage{{Role: "user", Content: "two"}}}

	drainText(t, mustComplete(t, cache, req1))
	drainText(t, mustComplete(t, cache, req2))

	if inner.calls != 2 {
		t.Fatalf("inner.calls = %d, want 2", inner.calls)
	}
}

func TestResponseCacheSkipsCachingToolCallCompletions(t *testing.T) {
	inner := &countingProvider{text: "partial", toolCall: &models.ToolCall{ID: "call-1", Name: "search"}}
	cache := NewResponseCache(inner, 10, time.Minute)

	req := &CompletionRequest{Model: "m", Messages: []CompletionMessage{{Role: "user", Content: "search something"}}}

	drainText(t, mustComplete(t, cache, req))
	drainText(t, mustComplete(t, cache, req))

	if inner.calls != 2 {
		t.Fatalf("inner.calls = %d, want 2 (tool-call completions must never be cached)", inner.calls)
	}
}

func TestResponseCacheExpiresAfterTTL(t *testing.T) {
	inner := &countingProvider{text: "y"}
	cache := NewResponseCache(inner, 10, time.Millisecond)

	req := &CompletionRequest{Model: "m", Messages: []CompletionMessage{{Role: "user", Content: "z"}}}

	drainText(t, mustComplete(t, cache, req))
	time.Sleep(5 * time.Millisecond)
	drainText(t, mustComplete(t, cache, req))

	if inner.calls != 2 {
		t.Fatalf("inner.calls = %d, want 2 (entry should have expired)", inner.calls)
	}
}

func TestResponseCacheEvictsOldestBeyondMaxSize(t *testing.T) {
	inner := &countingProvider{text: "v"}
	cache := NewResponseCache(inner, 2, time.Minute)

	reqA := &CompletionRequest{Model: "m", Messages: []CompletionMessage{{Role: "user", Content: "a"}}}
	reqB := &CompletionRequest{Model: "m", Messages: []CompletionMessage{{Role: "user", Content: "b"}}}
	reqC := &CompletionRequest{Model: "m", Messages: []CompletionMessage{{Role: "user", Content: "c"}}}

	drainText(t, mustComplete(t, cache, reqA))
	drainText(t, mustComplete(t, cache, reqB))
	drainText(t, mustComplete(t, cache, reqC)) // evicts reqA, the oldest

	if inner.calls != 3 {
		t.Fatalf("inner.calls = %d, want 3", inner.calls)
	}

	drainText(t, mustComplete(t, cache, reqA))
	if inner.calls != 4 {
		t.Fatalf("inner.calls = %d, want 4 (reqA should have been evicted)", inner.calls)
	}
}

func mustComplete(t *testing.T, cache *ResponseCache, req *CompletionRequest) <-chan *CompletionChunk {
	t.Helper()
	ch, err := cache.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return ch
}
