package agent

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"sync"
	"time"
)

// ResponseCache wraps an LLMProvider with an LRU+TTL cache keyed by the
// SHA-256 of the request's model, messages, max tokens, temperature, and
// stop sequences. A cache hit replays the cached text as a single chunk
// instead of re-dispatching the request. Completions that produced a tool
// call are never cached, since tool execution is effectful and replaying a
// stale tool call would re-run (or skip) side effects the caller doesn't
// expect.
type ResponseCache struct {
	inner LLMProvider
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   []string // touch-to-front; order[0] is most recently used
	maxSize int
}

type cacheEntry struct {
	text         string
	inputTokens  int
	outputTokens int
	expiresAt    time.Time
}

// DefaultResponseCacheSize is the default maximum number of cached
// responses, matching the bounded-map-with-eviction idiom used for other
// per-process caches in this codebase.
const DefaultResponseCacheSize = 500

// DefaultResponseCacheTTL is the default cache entry lifetime.
const DefaultResponseCacheTTL = 10 * time.Minute

// NewResponseCache wraps provider with a response cache. maxSize <= 0 uses
// DefaultResponseCacheSize; ttl <= 0 uses DefaultResponseCacheTTL.
func NewResponseCache(provider LLMProvider, maxSize int, ttl time.Duration) *ResponseCache {
	if maxSize <= 0 {
		maxSize = DefaultResponseCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultResponseCacheTTL
	}
	return &ResponseCache{
		inner:   provider,
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
	}
}

// Name implements LLMProvider.
func (c *ResponseCache) Name() string { return c.inner.Name() }

// Models implements LLMProvider.
func (c *ResponseCache) Models() []Model { return c.inner.Models() }

// SupportsTools implements LLMProvider.
func (c *ResponseCache) SupportsTools() bool { return c.inner.SupportsTools() }

// Complete implements LLMProvider, serving cached text completions directly
// and otherwise delegating to the wrapped provider and caching the result
// if it contains no tool call.
func (c *ResponseCache) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	key := responseCacheKey(req)

	if entry, ok := c.get(key); ok {
		return replayedChunk(entry), nil
	}

	upstream, err := c.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan *CompletionChunk)
	go c.relayAndCache(key, upstream, out)
	return out, nil
}

func (c *ResponseCache) relayAndCache(key string, upstream <-chan *CompletionChunk, out chan<- *CompletionChunk) {
	defer close(out)

	var text string
	var inputTokens, outputTokens int
	hasToolCall := false
	sawError := false

	for chunk := range upstream {
		if chunk.Error != nil {
			sawError = true
		}
		if chunk.ToolCall != nil {
			hasToolCall = true
		}
		text += chunk.Text
		if chunk.Done {
			inputTokens = chunk.InputTokens
			outputTokens = chunk.OutputTokens
		}
		out <- chunk
	}

	if !sawError && !hasToolCall {
		c.put(key, &cacheEntry{
			text:         text,
			inputTokens:  inputTokens,
			outputTokens: outputTokens,
			expiresAt:    time.Now().Add(c.ttl),
		})
	}
}

func replayedChunk(entry *cacheEntry) <-chan *CompletionChunk {
	out := make(chan *CompletionChunk, 1)
	out <- &CompletionChunk{
		Text:         entry.text,
		Done:         true,
		InputTokens:  entry.inputTokens,
		OutputTokens: entry.outputTokens,
	}
	close(out)
	return out
}

func (c *ResponseCache) get(key string) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.order = removeID(c.order, key)
		return nil, false
	}
	c.touchLocked(key)
	return entry, true
}

func (c *ResponseCache) put(key string, entry *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry
	c.touchLocked(key)
	for len(c.order) > c.maxSize {
		oldest := c.order[len(c.order)-1]
		c.order = c.order[:len(c.order)-1]
		delete(c.entries, oldest)
	}
}

func (c *ResponseCache) touchLocked(key string) {
	c.order = removeID(c.order, key)
	c.order = append([]string{key}, c.order...)
}

// Reset clears the cache, for tests and administrative invalidation.
func (c *ResponseCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.order = nil
}

// responseCacheKey hashes the parts of a request that determine its
// response: model, messages, max tokens, temperature, and stop sequences.
func responseCacheKey(req *CompletionRequest) string {
	keyed := struct {
		Model       string              `json:"model"`
		System      string              `json:"system"`
		Messages    []CompletionMessage `json:"messages"`
		MaxTokens   int                 `json:"max_tokens"`
		Temperature float64             `json:"temperature"`
		Stop        []string            `json:"stop"`
	}{
		Model:       req.Model,
		System:      req.System,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}

	data, err := json.Marshal(keyed)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return string(sum[:])
}
