package workspace

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Errors returned by document stores and the Docs manager.
var (
	ErrDocNotFound      = errors.New("workspace: document not found")
	ErrIdentityReadOnly = errors.New("workspace: identity documents are only writable through the identity API")
)

// Document is one virtual-path-addressed text blob owned by a user and,
// optionally, scoped to an agent.
type Document struct {
	ID        string
	UserID    string
	AgentID   string
	Path      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocChunk is one retrieval window of a document. Chunks are dropped and
// regenerated as a unit whenever the owning document is written.
type DocChunk struct {
	ID         string
	DocumentID string
	Index      int
	Content    string
	Embedding  []float32
}

// DocKey identifies a document.
type DocKey struct {
	UserID  string
	AgentID string
	Path    string
}

// DocStore persists documents and their chunks. PutDocument replaces the
// document at its key and all of its chunks atomically; DeleteDocument
// cascades to chunks.
type DocStore interface {
	PutDocument(ctx context.Context, doc *Document, chunks []*DocChunk) error
	GetDocument(ctx context.Context, key DocKey) (*Document, error)
	DeleteDocument(ctx context.Context, key DocKey) error
	ListPaths(ctx context.Context, userID, agentID, prefix string) ([]string, error)

	// SearchText ranks chunk IDs for the user by full-text relevance.
	SearchText(ctx context.Context, userID, query string, limit int) ([]string, error)

	// SearchVector ranks chunk IDs for the user by cosine similarity.
	SearchVector(ctx context.Context, userID string, embedding []float32, limit int) ([]string, error)

	// GetChunk returns a chunk by ID.
	GetChunk(ctx context.Context, chunkID string) (*DocChunk, error)

	Close() error
}

// Embedder produces a vector for a piece of text. A nil embedder disables
// the vector leg of hybrid search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Docs is the virtual workspace: path-addressed documents chunked on write
// and searchable with hybrid full-text + vector retrieval.
type Docs struct {
	store    DocStore
	embedder Embedder
}

// NewDocs builds a workspace over the given store. embedder may be nil.
func NewDocs(store DocStore, embedder Embedder) *Docs {
	return &Docs{store: store, embedder: embedder}
}

// Write stores content at path for the generic write surface. Identity
// files and identity directories are refused here.
func (d *Docs) Write(ctx context.Context, userID, agentID, rawPath, content string) error {
	p, err := NormalizePath(rawPath)
	if err != nil {
		return err
	}
	if IsIdentityPath(p) {
		return fmt.Errorf("%w: %s", ErrIdentityReadOnly, p)
	}
	return d.put(ctx, userID, agentID, p, content)
}

// WriteIdentity stores content at path on behalf of the identity API. It
// accepts any valid path, including the protected identity surface.
func (d *Docs) WriteIdentity(ctx context.Context, userID, agentID, rawPath, content string) error {
	p, err := NormalizePath(rawPath)
	if err != nil {
		return err
	}
	return d.put(ctx, userID, agentID, p, content)
}

func (d *Docs) put(ctx context.Context, userID, agentID, p, content string) error {
	now := time.Now().UTC()
	doc := &Document{
		ID:        uuid.NewString(),
		UserID:    userID,
		AgentID:   agentID,
		Path:      p,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	spans := ChunkWords(content, 0, 0)
	chunks := make([]*DocChunk, 0, len(spans))
	for _, span := range spans {
		c := &DocChunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Index:      span.Index,
			Content:    span.Content,
		}
		if d.embedder != nil {
			if emb, err := d.embedder.Embed(ctx, span.Content); err == nil {
				c.Embedding = emb
			}
		}
		chunks = append(chunks, c)
	}
	return d.store.PutDocument(ctx, doc, chunks)
}

// Read returns the document at path.
func (d *Docs) Read(ctx context.Context, userID, agentID, rawPath string) (*Document, error) {
	p, err := NormalizePath(rawPath)
	if err != nil {
		return nil, err
	}
	return d.store.GetDocument(ctx, DocKey{UserID: userID, AgentID: agentID, Path: p})
}

// Delete removes the document at path and all of its chunks.
func (d *Docs) Delete(ctx context.Context, userID, agentID, rawPath string) error {
	p, err := NormalizePath(rawPath)
	if err != nil {
		return err
	}
	if IsIdentityPath(p) {
		return fmt.Errorf("%w: %s", ErrIdentityReadOnly, p)
	}
	return d.store.DeleteDocument(ctx, DocKey{UserID: userID, AgentID: agentID, Path: p})
}

// List returns the paths under prefix, the "directory" view derived from
// path prefixes.
func (d *Docs) List(ctx context.Context, userID, agentID, prefix string) ([]string, error) {
	if prefix != "" {
		p, err := NormalizePath(prefix)
		if err != nil {
			return nil, err
		}
		prefix = p + "/"
	}
	return d.store.ListPaths(ctx, userID, agentID, prefix)
}

// SearchHit is one chunk returned from hybrid search.
type SearchHit struct {
	Chunk *DocChunk
	Score float64
}

// Search runs hybrid retrieval over the user's chunks: the full-text and
// vector legs run concurrently and are merged with reciprocal-rank fusion.
// Without an embedder the vector leg is skipped and full-text results are
// used alone.
func (d *Docs) Search(ctx context.Context, userID, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	legs := []SearchLeg{
		func(ctx context.Context, n int) ([]string, error) {
			return d.store.SearchText(ctx, userID, query, n)
		},
	}
	if d.embedder != nil {
		if emb, err := d.embedder.Embed(ctx, query); err == nil && len(emb) > 0 {
			legs = append(legs, func(ctx context.Context, n int) ([]string, error) {
				return d.store.SearchVector(ctx, userID, emb, n)
			})
		}
	}
	fused, err := HybridSearch(ctx, DefaultPreFusionLimit, legs...)
	if err != nil {
		return nil, err
	}
	if len(fused) > limit {
		fused = fused[:limit]
	}
	hits := make([]SearchHit, 0, len(fused))
	for _, f := range fused {
		chunk, err := d.store.GetChunk(ctx, f.ChunkID)
		if err != nil {
			continue
		}
		hits = append(hits, SearchHit{Chunk: chunk, Score: f.Score})
	}
	return hits, nil
}

// MemoryDocStore is the in-memory DocStore used by tests and the REPL's
// ephemeral mode.
type MemoryDocStore struct {
	mu     sync.RWMutex
	docs   map[DocKey]*Document
	chunks map[string][]*DocChunk // document ID -> ordered chunks
	byID   map[string]*DocChunk
}

// NewMemoryDocStore builds an empty in-memory store.
func NewMemoryDocStore() *MemoryDocStore {
	return &MemoryDocStore{
		docs:   make(map[DocKey]*Document),
		chunks: make(map[string][]*DocChunk),
		byID:   make(map[string]*DocChunk),
	}
}

func (s *MemoryDocStore) PutDocument(ctx context.Context, doc *Document, chunks []*DocChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := DocKey{UserID: doc.UserID, AgentID: doc.AgentID, Path: doc.Path}
	if old, ok := s.docs[key]; ok {
		doc.CreatedAt = old.CreatedAt
		for _, c := range s.chunks[old.ID] {
			delete(s.byID, c.ID)
		}
		delete(s.chunks, old.ID)
	}
	s.docs[key] = doc
	s.chunks[doc.ID] = chunks
	for _, c := range chunks {
		s.byID[c.ID] = c
	}
	return nil
}

func (s *MemoryDocStore) GetDocument(ctx context.Context, key DocKey) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil, ErrDocNotFound
	}
	return doc, nil
}

func (s *MemoryDocStore) DeleteDocument(ctx context.Context, key DocKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key]
	if !ok {
		return ErrDocNotFound
	}
	for _, c := range s.chunks[doc.ID] {
		delete(s.byID, c.ID)
	}
	delete(s.chunks, doc.ID)
	delete(s.docs, key)
	return nil
}

func (s *MemoryDocStore) ListPaths(ctx context.Context, userID, agentID, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var paths []string
	for key := range s.docs {
		if key.UserID != userID || key.AgentID != agentID {
			continue
		}
		if prefix != "" && !strings.HasPrefix(key.Path, prefix) {
			continue
		}
		paths = append(paths, key.Path)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *MemoryDocStore) SearchText(ctx context.Context, userID, query string, limit int) ([]string, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	type scored struct {
		id    string
		hits  int
		index int
	}
	var candidates []scored
	for key, doc := range s.docs {
		if key.UserID != userID {
			continue
		}
		for _, c := range s.chunks[doc.ID] {
			content := strings.ToLower(c.Content)
			hits := 0
			for _, term := range terms {
				hits += strings.Count(content, term)
			}
			if hits > 0 {
				candidates = append(candidates, scored{id: c.ID, hits: hits, index: c.Index})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].hits != candidates[j].hits {
			return candidates[i].hits > candidates[j].hits
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return ids, nil
}

func (s *MemoryDocStore) SearchVector(ctx context.Context, userID string, embedding []float32, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type scored struct {
		id  string
		sim float64
	}
	var candidates []scored
	for key, doc := range s.docs {
		if key.UserID != userID {
			continue
		}
		for _, c := range s.chunks[doc.ID] {
			if len(c.Embedding) == 0 {
				continue
			}
			candidates = append(candidates, scored{id: c.ID, sim: cosine(embedding, c.Embedding)})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return ids, nil
}

func (s *MemoryDocStore) GetChunk(ctx context.Context, chunkID string) (*DocChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[chunkID]
	if !ok {
		return nil, ErrDocNotFound
	}
	return c, nil
}

func (s *MemoryDocStore) Close() error { return nil }

// cosine returns the cosine similarity of two vectors with full-precision
// accumulators. Mismatched lengths or zero vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
