// Package audit provides a supplemental, append-only log of wallet
// lifecycle events and tool-call dispatches. It is never the credential
// store of record — that remains wallet.json/session.json — and a missing
// or corrupt audit database does not block any vault operation.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one row of the audit log.
type Entry struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Kind           string    `json:"kind"` // e.g. "wallet.unlocked", "tool.call"
	IntegrationKey string    `json:"integration_key,omitempty"`
	ToolName       string    `json:"tool_name,omitempty"`
	Status         string    `json:"status,omitempty"` // "ok", "error", or "tool_error"
	LatencyMs      float64   `json:"latency_ms,omitempty"`
	Detail         string    `json:"detail,omitempty"`
}

// Log is a sqlite-backed append-only audit log.
type Log struct {
	db *sql.DB
}

// Open creates or opens the audit database at dsn (e.g. "file:/data/audit.db").
func Open(dsn string) (*Log, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit db pragmas: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	l := &Log{db: db}
	if err := l.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		kind TEXT NOT NULL,
		integration_key TEXT NOT NULL DEFAULT '',
		tool_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		latency_ms REAL NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return fmt.Errorf("migrate audit db: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp)`)
	if err != nil {
		return fmt.Errorf("migrate audit db index: %w", err)
	}
	return nil
}

// Record appends one entry. ID and Timestamp are populated by Record when
// unset, so callers don't need to generate them.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, timestamp, kind, integration_key, tool_name, status, latency_ms, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.Format(time.RFC3339Nano), e.Kind, e.IntegrationKey, e.ToolName, e.Status, e.LatencyMs, e.Detail)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first, bounded by limit
// (defaulting to 100 when <= 0) and offset.
func (l *Log) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, timestamp, kind, integration_key, tool_name, status, latency_ms, detail
		 FROM audit_log ORDER BY timestamp DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.IntegrationKey, &e.ToolName, &e.Status, &e.LatencyMs, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}
