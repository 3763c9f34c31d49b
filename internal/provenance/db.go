package provenance

import (
	"context"
	"database/sql"
	"encoding/json"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// DB persists findings durably across runs, keyed by run ID. It uses
// SQLite with WAL mode for concurrent read access; writes stay on a
// single connection to avoid SQLITE_BUSY.
type DB struct {
	db *sql.DB
}

// OpenDB creates or opens a findings database at the given path,
// applying pragmas and schema idempotently.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open findings database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to findings database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply findings schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set schema version: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// WriteRun persists every finding of a run's store. Values are serialized
// to JSON so their type survives the round trip. Duplicate (run, key)
// pairs are silently ignored for idempotency.
func (d *DB) WriteRun(ctx context.Context, runID string, store *Store) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write findings: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, f := range store.Findings() {
		valueJSON, err := json.Marshal(f.Value)
		if err != nil {
			return fmt.Errorf("write finding %q: marshal value: %w", f.Key, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO findings (run_id, key, value, source, method)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id, key) DO NOTHING
		`, runID, f.Key, string(valueJSON), f.Source, f.Method)
		if err != nil {
			return fmt.Errorf("write finding %q: %w", f.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write findings: commit: %w", err)
	}
	return nil
}

// ReadRun loads a run's findings in discovery order into a fresh store.
func (d *DB) ReadRun(ctx context.Context, runID string) (*Store, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT key, value, source, method
		FROM findings
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read findings: %w", err)
	}
	defer rows.Close()

	store := NewStore()
	for rows.Next() {
		var key, valueJSON, source, method string
		if err := rows.Scan(&key, &valueJSON, &source, &method); err != nil {
			return nil, fmt.Errorf("read findings: scan: %w", err)
		}
		var value any
		if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
			return nil, fmt.Errorf("read finding %q: decode value: %w", key, err)
		}
		if err := store.Record(key, value, source, method); err != nil {
			return nil, fmt.Errorf("read finding %q: %w", key, err)
		}
	}
	return store, rows.Err()
}

// Runs returns the distinct run IDs present in the database, oldest first.
func (d *DB) Runs(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT run_id FROM findings GROUP BY run_id ORDER BY MIN(id)
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}
