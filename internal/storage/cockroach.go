package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// NewCockroachStoresFromDSN creates Cockroach-backed stores using a DSN.
func NewCockroachStoresFromDSN(dsn string, config *CockroachConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("migrate: %w", err)
	}

	return StoreSet{
		Settings:     &cockroachSettingsStore{db: db},
		ToolFailures: &cockroachToolFailureStore{db: db},
		Actions:      &cockroachActionLogStore{db: db},
		closer:       db.Close,
	}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			user_id STRING NOT NULL,
			key STRING NOT NULL,
			value STRING NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS tool_failures (
			tool_name STRING PRIMARY KEY,
			failure_count INT NOT NULL DEFAULT 0,
			last_reason STRING NOT NULL DEFAULT '',
			last_failure_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS job_actions (
			id UUID PRIMARY KEY,
			job_id STRING NOT NULL,
			sequence_num INT NOT NULL,
			tool_name STRING NOT NULL,
			params JSONB,
			result STRING NOT NULL DEFAULT '',
			is_error BOOL NOT NULL DEFAULT false,
			sanitization_warnings STRING[] NOT NULL DEFAULT ARRAY[]::STRING[],
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (job_id, sequence_num)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_actions_job ON job_actions (job_id, sequence_num)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type cockroachSettingsStore struct {
	db *sql.DB
}

func (s *cockroachSettingsStore) Get(ctx context.Context, userID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE user_id = $1 AND key = $2`,
		userID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

func (s *cockroachSettingsStore) Set(ctx context.Context, userID, key, value string) error {
	if userID == "" || key == "" {
		return fmt.Errorf("user id and key are required")
	}
	_, err := s.db.ExecContext(ctx,
		`UPSERT INTO settings (user_id, key, value, updated_at) VALUES ($1, $2, $3, now())`,
		userID, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

func (s *cockroachSettingsStore) Delete(ctx context.Context, userID, key string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM settings WHERE user_id = $1 AND key = $2`,
		userID, key)
	if err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cockroachSettingsStore) List(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM settings WHERE user_id = $1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

type cockroachToolFailureStore struct {
	db *sql.DB
}

func (s *cockroachToolFailureStore) RecordFailure(ctx context.Context, toolName, reason string) (int, error) {
	if toolName == "" {
		return 0, fmt.Errorf("tool name is required")
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO tool_failures (tool_name, failure_count, last_reason, last_failure_at)
		 VALUES ($1, 1, $2, now())
		 ON CONFLICT (tool_name) DO UPDATE SET
			failure_count = tool_failures.failure_count + 1,
			last_reason = $2,
			last_failure_at = now()
		 RETURNING failure_count`,
		toolName, reason).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("record tool failure: %w", err)
	}
	return count, nil
}

func (s *cockroachToolFailureStore) ResetFailures(ctx context.Context, toolName string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tool_failures WHERE tool_name = $1`, toolName)
	if err != nil {
		return fmt.Errorf("reset tool failures: %w", err)
	}
	return nil
}

func (s *cockroachToolFailureStore) FailureCount(ctx context.Context, toolName string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT failure_count FROM tool_failures WHERE tool_name = $1`,
		toolName).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get tool failure count: %w", err)
	}
	return count, nil
}

func (s *cockroachToolFailureStore) ListExceeding(ctx context.Context, threshold int) ([]ToolFailure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool_name, failure_count, last_reason, last_failure_at
		 FROM tool_failures WHERE failure_count >= $1 ORDER BY tool_name`,
		threshold)
	if err != nil {
		return nil, fmt.Errorf("list tool failures: %w", err)
	}
	defer rows.Close()

	var out []ToolFailure
	for rows.Next() {
		var f ToolFailure
		if err := rows.Scan(&f.ToolName, &f.Count, &f.LastReason, &f.LastFailureAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type cockroachActionLogStore struct {
	db *sql.DB
}

func (s *cockroachActionLogStore) RecordAction(ctx context.Context, action *JobAction) error {
	if action == nil || action.JobID == "" {
		return fmt.Errorf("action with job id is required")
	}
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	// The sequence number is assigned inside the insert so two concurrent
	// writers for the same job cannot claim the same slot; the UNIQUE
	// constraint backstops the race.
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO job_actions
			(id, job_id, sequence_num, tool_name, params, result, is_error, sanitization_warnings, created_at)
		 SELECT $1, $2, COALESCE(MAX(sequence_num), 0) + 1, $3, $4, $5, $6, $7, $8
		 FROM job_actions WHERE job_id = $2
		 RETURNING sequence_num`,
		action.ID, action.JobID, action.ToolName, []byte(action.Params),
		action.Result, action.IsError, pq.Array(action.SanitizationWarnings),
		action.CreatedAt).Scan(&action.SequenceNum)
	if err != nil {
		return fmt.Errorf("record job action: %w", err)
	}
	return nil
}

func (s *cockroachActionLogStore) ListActions(ctx context.Context, jobID string, limit int) ([]*JobAction, error) {
	query := `SELECT id, job_id, sequence_num, tool_name, params, result, is_error, sanitization_warnings, created_at
		FROM job_actions WHERE job_id = $1 ORDER BY sequence_num`
	args := []any{jobID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list job actions: %w", err)
	}
	defer rows.Close()

	var out []*JobAction
	for rows.Next() {
		a := &JobAction{}
		var params []byte
		var warnings pq.StringArray
		if err := rows.Scan(&a.ID, &a.JobID, &a.SequenceNum, &a.ToolName, &params,
			&a.Result, &a.IsError, &warnings, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Params = params
		a.SanitizationWarnings = warnings
		out = append(out, a)
	}
	return out, rows.Err()
}
