package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"deskfs/internal/storage"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 200
	memoryPath        = ":memory:"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		subject TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		request_id TEXT NOT NULL DEFAULT '',
		payload BLOB
	);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_events(ts);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_subject_ts ON audit_events(subject, ts);`,
}

// Store хранит журнал вызовов команд в SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open открывает базу и применяет схему. Каталог базы создается при
// необходимости; ":memory:" открывает базу в памяти.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == memoryPath {
		// каждое соединение к :memory: получает свою базу
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Write сохраняет событие аудита.
func (s *Store) Write(ctx context.Context, ev storage.AuditEvent) error {
	ts := ev.TS
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events(ts, subject, action, source, status, request_id, payload) VALUES(?,?,?,?,?,?,?)`,
		ts.UTC(), ev.Subject, ev.Action, ev.Source, ev.Status, ev.RequestID, ev.Payload)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// QueryAudit возвращает события от новых к старым.
func (s *Store) QueryAudit(ctx context.Context, q storage.AuditQuery) ([]storage.AuditEvent, error) {
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = defaultQueryLimit
	case limit > maxQueryLimit:
		limit = maxQueryLimit
	}

	var (
		where []string
		args  []interface{}
	)
	if !q.From.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, q.To.UTC())
	}
	if q.Subject != "" {
		where = append(where, "subject = ?")
		args = append(args, q.Subject)
	}
	if q.Source != "" {
		where = append(where, "source = ?")
		args = append(args, q.Source)
	}

	query := `SELECT subject, action, source, status, request_id, payload, ts FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var events []storage.AuditEvent
	for rows.Next() {
		var (
			ev storage.AuditEvent
			ts time.Time
		)
		if err := rows.Scan(&ev.Subject, &ev.Action, &ev.Source, &ev.Status, &ev.RequestID, &ev.Payload, &ts); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		ev.TS = ts.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}
	return events, nil
}

// PruneAudit удаляет события старше before и возвращает их число.
func (s *Store) PruneAudit(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE ts < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune audit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune audit rows: %w", err)
	}
	return n, nil
}

// Close закрывает соединение.
func (s *Store) Close() error {
	return s.db.Close()
}
