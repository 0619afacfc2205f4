package secrets

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLStore persists sealed secret records in a relational backend (the
// same Postgres-wire-compatible database used for the rest of the
// persistence adapter). It only ever reads and writes opaque bytes; all
// encryption happens in Vault.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an existing *sql.DB. The caller owns the connection
// lifecycle; expects a table created by SecretsSchema.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// SecretsSchema is the DDL for the secrets table. Applied by the
// migration runner alongside the rest of the persistence schema.
const SecretsSchema = `
CREATE TABLE IF NOT EXISTS secrets (
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	key_salt   BYTES NOT NULL,
	sealed     BYTES NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, name)
);`

func (s *SQLStore) Put(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (user_id, name, key_salt, sealed, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id, name) DO UPDATE SET
			key_salt = excluded.key_salt,
			sealed = excluded.sealed,
			updated_at = now()`,
		rec.UserID, rec.Name, rec.KeySalt, rec.Sealed,
	)
	if err != nil {
		return fmt.Errorf("secrets: put: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, userID, name string) (Record, error) {
	var rec Record
	rec.UserID = userID
	rec.Name = name
	err := s.db.QueryRowContext(ctx,
		`SELECT key_salt, sealed FROM secrets WHERE user_id = $1 AND name = $2`,
		userID, name,
	).Scan(&rec.KeySalt, &rec.Sealed)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("secrets: get: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) Delete(ctx context.Context, userID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM secrets WHERE user_id = $1 AND name = $2`, userID, name)
	if err != nil {
		return fmt.Errorf("secrets: delete: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM secrets WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("secrets: list: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("secrets: list scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
