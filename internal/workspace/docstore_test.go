package workspace

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeEmbedder struct{}

// Embed maps text onto a toy 3-dimensional space keyed by topic words so
// similarity tests are deterministic.
func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := []float32{0.01, 0.01, 0.01}
	if strings.Contains(lower, "kubernetes") {
		vec[0] = 1
	}
	if strings.Contains(lower, "postgres") {
		vec[1] = 1
	}
	if strings.Contains(lower, "grafana") {
		vec[2] = 1
	}
	return vec, nil
}

func newTestDocs(t *testing.T, embedder Embedder) *Docs {
	t.Helper()
	return NewDocs(NewMemoryDocStore(), embedder)
}

func TestDocsWriteReadDelete(t *testing.T) {
	ctx := context.Background()
	docs := newTestDocs(t, nil)

	if err := docs.Write(ctx, "u1", "", "notes/infra.md", "postgres runbook"); err != nil {
		t.Fatal(err)
	}
	doc, err := docs.Read(ctx, "u1", "", "notes//infra.md")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Path != "notes/infra.md" || doc.Content != "postgres runbook" {
		t.Errorf("read back %q at %q", doc.Content, doc.Path)
	}

	if err := docs.Delete(ctx, "u1", "", "notes/infra.md"); err != nil {
		t.Fatal(err)
	}
	if _, err := docs.Read(ctx, "u1", "", "notes/infra.md"); !errors.Is(err, ErrDocNotFound) {
		t.Errorf("read after delete: %v, want ErrDocNotFound", err)
	}
}

func TestDocsEquivalentPathsShareOneKey(t *testing.T) {
	ctx := context.Background()
	docs := newTestDocs(t, nil)

	if err := docs.Write(ctx, "u1", "", "a/b/c", "first"); err != nil {
		t.Fatal(err)
	}
	if err := docs.Write(ctx, "u1", "", "//a/x/../b/c", "second"); err != nil {
		t.Fatal(err)
	}
	doc, err := docs.Read(ctx, "u1", "", "a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Content != "second" {
		t.Errorf("content = %q, want the second write to have replaced the first", doc.Content)
	}
	paths, err := docs.List(ctx, "u1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Errorf("paths = %v, want exactly one key", paths)
	}
}

func TestDocsIdentityPathsRefuseGenericWrite(t *testing.T) {
	ctx := context.Background()
	docs := newTestDocs(t, nil)

	for _, p := range []string{"SOUL.md", "MEMORY.md", "daily/2026-08-02.md", "context/goals.md"} {
		if err := docs.Write(ctx, "u1", "", p, "x"); !errors.Is(err, ErrIdentityReadOnly) {
			t.Errorf("Write(%q) error = %v, want ErrIdentityReadOnly", p, err)
		}
		if err := docs.WriteIdentity(ctx, "u1", "", p, "x"); err != nil {
			t.Errorf("WriteIdentity(%q) error = %v", p, err)
		}
	}
}

func TestDocsChunksRegeneratedOnWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocStore()
	docs := NewDocs(store, nil)

	if err := docs.Write(ctx, "u1", "", "big.md", wordBlob(2000)); err != nil {
		t.Fatal(err)
	}
	before, err := store.SearchText(ctx, "u1", "w100", 10)
	if err != nil || len(before) == 0 {
		t.Fatalf("expected chunk hits before rewrite: %v %v", before, err)
	}

	if err := docs.Write(ctx, "u1", "", "big.md", "tiny replacement"); err != nil {
		t.Fatal(err)
	}
	after, err := store.SearchText(ctx, "u1", "w100", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 0 {
		t.Errorf("stale chunks survived rewrite: %v", after)
	}
}

func TestDocsListDirectoryView(t *testing.T) {
	ctx := context.Background()
	docs := newTestDocs(t, nil)
	for _, p := range []string{"notes/a.md", "notes/b.md", "projects/x.md"} {
		if err := docs.Write(ctx, "u1", "", p, "content"); err != nil {
			t.Fatal(err)
		}
	}
	paths, err := docs.List(ctx, "u1", "", "notes")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"notes/a.md", "notes/b.md"}
	if len(paths) != len(want) || paths[0] != want[0] || paths[1] != want[1] {
		t.Errorf("List(notes) = %v, want %v", paths, want)
	}
}

func TestDocsSearchTextOnlyWithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	docs := newTestDocs(t, nil)
	if err := docs.Write(ctx, "u1", "", "infra.md", "the postgres cluster lives in rack 4"); err != nil {
		t.Fatal(err)
	}
	hits, err := docs.Search(ctx, "u1", "postgres", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if hits[0].Score != 1.0 {
		t.Errorf("single-leg top score = %f, want 1.0", hits[0].Score)
	}
}

func TestDocsHybridSearchBoostsDualMatches(t *testing.T) {
	ctx := context.Background()
	docs := newTestDocs(t, fakeEmbedder{})
	seed := map[string]string{
		"a.md": "postgres tuning guide",        // text + vector match
		"b.md": "database tuning guide",        // neither leg's favorite
		"c.md": "grafana dashboards for sales", // vector mismatch
	}
	for p, content := range seed {
		if err := docs.Write(ctx, "u1", "", p, content); err != nil {
			t.Fatal(err)
		}
	}
	hits, err := docs.Search(ctx, "u1", "postgres tuning", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	if !strings.Contains(hits[0].Chunk.Content, "postgres") {
		t.Errorf("top hit %q, want the dual-matched postgres chunk", hits[0].Chunk.Content)
	}
}

func TestDocsSearchScopedToUser(t *testing.T) {
	ctx := context.Background()
	docs := newTestDocs(t, nil)
	if err := docs.Write(ctx, "u1", "", "secret.md", "kubeconfig rotation steps"); err != nil {
		t.Fatal(err)
	}
	hits, err := docs.Search(ctx, "u2", "kubeconfig", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("user u2 sees u1's chunks: %v", hits)
	}
}
