package workspace

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteDocStore is the embedded DocStore backend. Full-text retrieval uses
// an FTS5 shadow table kept in the same transaction as chunk writes; the
// vector leg scans candidate embeddings and ranks by cosine similarity in
// process, the same approach the sqlite-vec memory backend takes without
// the vec0 extension loaded.
type SQLiteDocStore struct {
	db *sql.DB
}

// NewSQLiteDocStore opens (or creates) the document database at path.
// ":memory:" is accepted for tests.
func NewSQLiteDocStore(path string) (*SQLiteDocStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single pooled connection keeps ":memory:" databases coherent and
	// serializes writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)
	s := &SQLiteDocStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDocStore) init() error {
	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS memory_documents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(user_id, agent_id, path)
		)`,
		`CREATE TABLE IF NOT EXISTS memory_chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES memory_documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON memory_chunks(document_id)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memory_chunks_fts USING fts5(
			content, chunk_id UNINDEXED, user_id UNINDEXED
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteDocStore) PutDocument(ctx context.Context, doc *Document, chunks []*DocChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM memory_documents WHERE user_id = ? AND agent_id = ? AND path = ?`,
		doc.UserID, doc.AgentID, doc.Path).Scan(&oldID)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("failed to look up document: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_chunks_fts WHERE chunk_id IN
			(SELECT id FROM memory_chunks WHERE document_id = ?)`, oldID); err != nil {
			return fmt.Errorf("failed to drop stale fts rows: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_documents WHERE id = ?`, oldID); err != nil {
			return fmt.Errorf("failed to replace document: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memory_documents (id, user_id, agent_id, path, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.AgentID, doc.Path, doc.Content, doc.CreatedAt, doc.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_chunks (id, document_id, chunk_index, content, embedding)
			 VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.DocumentID, c.Index, c.Content, encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_chunks_fts (content, chunk_id, user_id) VALUES (?, ?, ?)`,
			c.Content, c.ID, doc.UserID); err != nil {
			return fmt.Errorf("failed to index chunk: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteDocStore) GetDocument(ctx context.Context, key DocKey) (*Document, error) {
	doc := &Document{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, agent_id, path, content, created_at, updated_at
		 FROM memory_documents WHERE user_id = ? AND agent_id = ? AND path = ?`,
		key.UserID, key.AgentID, key.Path).
		Scan(&doc.ID, &doc.UserID, &doc.AgentID, &doc.Path, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrDocNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteDocStore) DeleteDocument(ctx context.Context, key DocKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM memory_documents WHERE user_id = ? AND agent_id = ? AND path = ?`,
		key.UserID, key.AgentID, key.Path).Scan(&id)
	if err == sql.ErrNoRows {
		return ErrDocNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_chunks_fts WHERE chunk_id IN
		(SELECT id FROM memory_chunks WHERE document_id = ?)`, id); err != nil {
		return fmt.Errorf("failed to drop fts rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteDocStore) ListPaths(ctx context.Context, userID, agentID, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM memory_documents
		 WHERE user_id = ? AND agent_id = ? AND path LIKE ? ESCAPE '\'
		 ORDER BY path`,
		userID, agentID, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list paths: %w", err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLiteDocStore) SearchText(ctx context.Context, userID, query string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id FROM memory_chunks_fts
		 WHERE memory_chunks_fts MATCH ? AND user_id = ?
		 ORDER BY rank LIMIT ?`,
		ftsQuery(query), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteDocStore) SearchVector(ctx context.Context, userID string, embedding []float32, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.embedding FROM memory_chunks c
		 JOIN memory_documents d ON d.id = c.document_id
		 WHERE d.user_id = ? AND c.embedding IS NOT NULL`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	type scored struct {
		id  string
		sim float64
	}
	var candidates []scored
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		vec := decodeVector(blob)
		if len(vec) == 0 {
			continue
		}
		candidates = append(candidates, scored{id: id, sim: cosine(embedding, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
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

func (s *SQLiteDocStore) GetChunk(ctx context.Context, chunkID string) (*DocChunk, error) {
	c := &DocChunk{}
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, chunk_index, content, embedding FROM memory_chunks WHERE id = ?`,
		chunkID).Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &blob)
	if err == sql.ErrNoRows {
		return nil, ErrDocNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk: %w", err)
	}
	c.Embedding = decodeVector(blob)
	return c, nil
}

func (s *SQLiteDocStore) Close() error { return s.db.Close() }

// ftsQuery quotes each term so user input is matched literally instead of
// being parsed as FTS5 query syntax.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, ``) + `"`
	}
	return strings.Join(fields, " ")
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}
