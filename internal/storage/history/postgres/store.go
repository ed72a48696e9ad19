// Package postgres stores audit history in Postgres as JSONB rows.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/storage/history"
	pgstore "github.com/JakeFAU/seo-orchestrator/internal/storage/postgres"
)

// Store is a HistoryStore that trims to capacity inside the insert transaction.
type Store struct {
	pool     pgstore.Pool
	table    string
	capacity int
}

// New builds a Store on an existing pool.
func New(pool pgstore.Pool, table string, capacity int) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := pgstore.TableName(table, "audit_runs")
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, table: table, capacity: history.Capacity(capacity)}, nil
}

// Migrate creates the history table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	recorded_at TIMESTAMPTZ NOT NULL,
	overall     INTEGER NOT NULL,
	run         JSONB NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// Append inserts run and deletes everything older than the newest capacity rows.
func (s *Store) Append(ctx context.Context, run seo.AuditRun) (err error) {
	body, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode audit run: %w", err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	insert := fmt.Sprintf(`INSERT INTO %s (id, recorded_at, overall, run) VALUES ($1,$2,$3,$4)`, s.table)
	if _, err = tx.Exec(ctx, insert, run.ID, run.Timestamp, run.OverallScore, body); err != nil {
		return fmt.Errorf("insert audit run: %w", err)
	}
	trim := fmt.Sprintf(`DELETE FROM %[1]s WHERE seq NOT IN (SELECT seq FROM %[1]s ORDER BY seq DESC LIMIT $1)`, s.table)
	if _, err = tx.Exec(ctx, trim, s.capacity); err != nil {
		return fmt.Errorf("trim audit history: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}
	return nil
}

// List returns up to limit of the newest runs, oldest first.
func (s *Store) List(ctx context.Context, limit int) ([]seo.AuditRun, error) {
	if limit <= 0 {
		limit = s.capacity
	}
	query := fmt.Sprintf(`SELECT run FROM (SELECT seq, run FROM %s ORDER BY seq DESC LIMIT $1) AS recent ORDER BY seq ASC`, s.table)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit history: %w", err)
	}
	defer rows.Close()

	var out []seo.AuditRun
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan audit run: %w", err)
		}
		var run seo.AuditRun
		if err := json.Unmarshal(body, &run); err != nil {
			return nil, fmt.Errorf("decode audit run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit history: %w", err)
	}
	return out, nil
}

// Latest returns the newest run.
func (s *Store) Latest(ctx context.Context) (seo.AuditRun, error) {
	query := fmt.Sprintf(`SELECT run FROM %s ORDER BY seq DESC LIMIT 1`, s.table)
	var body []byte
	if err := s.pool.QueryRow(ctx, query).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return seo.AuditRun{}, seo.ErrNoHistory
		}
		return seo.AuditRun{}, fmt.Errorf("load latest audit: %w", err)
	}
	var run seo.AuditRun
	if err := json.Unmarshal(body, &run); err != nil {
		return seo.AuditRun{}, fmt.Errorf("decode audit run: %w", err)
	}
	return run, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
