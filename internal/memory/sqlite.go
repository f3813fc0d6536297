package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteLog is a Persister backed by a local SQLite database. Use
// ":memory:" for an in-memory database in tests.
type SQLiteLog struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// OpenSQLite opens (or creates) the memory database at path and runs the
// schema migration.
func OpenSQLite(path string) (*SQLiteLog, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("memory: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteLog{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteLog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS memory_entries (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    TEXT    NOT NULL,
    message    TEXT    NOT NULL,
    response   TEXT    NOT NULL,
    context    TEXT    NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL  -- Unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_memory_entries_user_created
    ON memory_entries (user_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("memory: migrate: %w", err)
	}
	return nil
}

// SaveEntry appends one entry and trims the user's log to capacity so the
// database stays bounded alongside the in-memory FIFO.
func (s *SQLiteLog) SaveEntry(ctx context.Context, e Entry, capacity int) error {
	const ins = `INSERT INTO memory_entries (user_id, message, response, context, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, ins, e.UserID, e.Message, e.Response, e.Context, e.Timestamp.UnixMilli()); err != nil {
		return fmt.Errorf("memory: save entry: %w", err)
	}

	const trim = `
DELETE FROM memory_entries
WHERE  user_id = ?
AND    id NOT IN (
    SELECT id FROM memory_entries
    WHERE  user_id = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
)`
	if _, err := s.db.ExecContext(ctx, trim, e.UserID, e.UserID, capacity); err != nil {
		return fmt.Errorf("memory: trim entries: %w", err)
	}
	return nil
}

// LoadEntries returns all persisted entries oldest-first.
func (s *SQLiteLog) LoadEntries(ctx context.Context) ([]Entry, error) {
	const q = `
SELECT user_id, message, response, context, created_at
FROM   memory_entries
ORDER  BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("memory: load entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.UserID, &e.Message, &e.Response, &e.Context, &ts); err != nil {
			return nil, fmt.Errorf("memory: load entries scan: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: load entries rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (s *SQLiteLog) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("memory: close: %w", err)
	}
	return nil
}
