// Package sqlite stores audit history in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/storage/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_runs (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	recorded_at TEXT NOT NULL,
	overall     INTEGER NOT NULL,
	run         TEXT NOT NULL
)`

// Store is a bounded HistoryStore on SQLite.
type Store struct {
	db       *sql.DB
	path     string
	capacity int
}

// New opens (or creates) the database at path.
func New(path string, capacity int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, path: path, capacity: history.Capacity(capacity)}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts run and trims to capacity in one transaction.
func (s *Store) Append(ctx context.Context, run seo.AuditRun) (err error) {
	body, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode audit run: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO audit_runs (id, recorded_at, overall, run) VALUES (?, ?, ?, ?)`,
		run.ID, run.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"), run.OverallScore, string(body),
	); err != nil {
		return fmt.Errorf("insert audit run: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM audit_runs WHERE seq NOT IN (SELECT seq FROM audit_runs ORDER BY seq DESC LIMIT ?)`,
		s.capacity,
	); err != nil {
		return fmt.Errorf("trim audit history: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}
	return nil
}

// List returns up to limit of the newest runs, oldest first.
func (s *Store) List(ctx context.Context, limit int) ([]seo.AuditRun, error) {
	if limit <= 0 {
		limit = s.capacity
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run FROM (SELECT seq, run FROM audit_runs ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit history: %w", err)
	}
	defer rows.Close()

	var out []seo.AuditRun
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan audit run: %w", err)
		}
		var run seo.AuditRun
		if err := json.Unmarshal([]byte(body), &run); err != nil {
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
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT run FROM audit_runs ORDER BY seq DESC LIMIT 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return seo.AuditRun{}, seo.ErrNoHistory
	}
	if err != nil {
		return seo.AuditRun{}, fmt.Errorf("load latest audit: %w", err)
	}
	var run seo.AuditRun
	if err := json.Unmarshal([]byte(body), &run); err != nil {
		return seo.AuditRun{}, fmt.Errorf("decode audit run: %w", err)
	}
	return run, nil
}
