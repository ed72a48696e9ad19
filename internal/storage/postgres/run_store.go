package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/store"
)

// RunStore implements store.RunRepository on a Postgres table.
type RunStore struct {
	pool  Pool
	table string
}

// NewRunStore builds a RunStore on an existing pool.
func NewRunStore(pool Pool, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := TableName(table, "task_runs")
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table}, nil
}

// Migrate creates the run table when missing.
func (s *RunStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id           TEXT PRIMARY KEY,
	task_name    TEXT NOT NULL,
	trigger      TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT NOT NULL,
	status       TEXT NOT NULL,
	error        TEXT,
	payload      JSONB
);
CREATE INDEX IF NOT EXISTS %[1]s_task_started_idx ON %[1]s (task_name, started_at DESC);`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// Record inserts result; an existing ID is left untouched.
func (s *RunStore) Record(ctx context.Context, result seo.TaskResult) error {
	if result.ID == "" {
		return fmt.Errorf("run id is required")
	}
	var payload []byte
	if result.Payload != nil {
		var err error
		if payload, err = json.Marshal(result.Payload); err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, task_name, trigger, started_at, completed_at, duration_ms, status, error, payload)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING`, s.table)
	_, err := s.pool.Exec(ctx, query,
		result.ID,
		string(result.TaskName),
		string(result.Trigger),
		result.StartedAt,
		result.CompletedAt,
		result.DurationMs,
		string(result.Status),
		nullString(result.Error),
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert task run: %w", err)
	}
	return nil
}

// List returns runs newest first.
func (s *RunStore) List(ctx context.Context, task seo.TaskName, limit int) ([]seo.TaskResult, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	query := fmt.Sprintf(`
SELECT id, task_name, trigger, started_at, completed_at, duration_ms, status, error, payload
FROM %s
WHERE ($1 = '' OR task_name = $1)
ORDER BY started_at DESC
LIMIT $2`, s.table)
	rows, err := s.pool.Query(ctx, query, string(task), limit)
	if err != nil {
		return nil, fmt.Errorf("list task runs: %w", err)
	}
	defer rows.Close()

	var out []seo.TaskResult
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task runs: %w", err)
	}
	return out, nil
}

// Get loads one run.
func (s *RunStore) Get(ctx context.Context, id string) (seo.TaskResult, error) {
	query := fmt.Sprintf(`
SELECT id, task_name, trigger, started_at, completed_at, duration_ms, status, error, payload
FROM %s WHERE id = $1`, s.table)
	r, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return seo.TaskResult{}, store.ErrNotFound
	}
	return r, err
}

// Ping checks connectivity.
func (s *RunStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

func scanRun(row pgx.Row) (seo.TaskResult, error) {
	var (
		r                  seo.TaskResult
		name, trig, status string
		errText            *string
		payload            []byte
		started, completed time.Time
	)
	if err := row.Scan(&r.ID, &name, &trig, &started, &completed, &r.DurationMs, &status, &errText, &payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan task run: %w", err)
	}
	r.TaskName = seo.TaskName(name)
	r.Trigger = seo.Trigger(trig)
	r.Status = seo.TaskStatus(status)
	r.StartedAt = started.UTC()
	r.CompletedAt = completed.UTC()
	if errText != nil {
		r.Error = *errText
	}
	if len(payload) > 0 {
		r.Payload = json.RawMessage(payload)
	}
	return r, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
