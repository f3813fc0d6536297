package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a Persister backed by a local SQLite database. Use
// ":memory:" for an in-memory database in tests.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// OpenSQLite opens (or creates) the record database at path and runs the
// schema migration.
func OpenSQLite(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS knowledge_records (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    id            TEXT    NOT NULL UNIQUE,
    text          TEXT    NOT NULL,
    vector        BLOB,
    category      TEXT    NOT NULL,
    source        TEXT    NOT NULL,
    title         TEXT    NOT NULL DEFAULT '',
    origin_topic  TEXT    NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL,  -- Unix milliseconds
    verified      INTEGER NOT NULL DEFAULT 0,
    verified_at   INTEGER NOT NULL DEFAULT 0,
    status        TEXT    NOT NULL DEFAULT '',
    status_note   TEXT    NOT NULL DEFAULT '',
    usage_count   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_knowledge_records_created
    ON knowledge_records (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("knowledge: migrate: %w", err)
	}
	return nil
}

// SaveRecord writes or replaces one record. The ON CONFLICT clause keeps
// the original seq so insertion order survives rewrites.
func (s *SQLiteStore) SaveRecord(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO knowledge_records
    (id, text, vector, category, source, title, origin_topic, created_at,
     verified, verified_at, status, status_note, usage_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    text = excluded.text, vector = excluded.vector,
    category = excluded.category, source = excluded.source,
    title = excluded.title, origin_topic = excluded.origin_topic,
    created_at = excluded.created_at, verified = excluded.verified,
    verified_at = excluded.verified_at, status = excluded.status,
    status_note = excluded.status_note, usage_count = excluded.usage_count`

	verified := 0
	if rec.Meta.Verified {
		verified = 1
	}
	var verifiedAt int64
	if !rec.Meta.VerifiedAt.IsZero() {
		verifiedAt = rec.Meta.VerifiedAt.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.Text, encodeVector(rec.Vector),
		rec.Meta.Category, rec.Meta.Source, rec.Meta.Title, rec.Meta.OriginTopic,
		rec.Meta.Timestamp.UnixMilli(),
		verified, verifiedAt, string(rec.Meta.VerificationStatus),
		rec.Meta.VerificationNote, rec.Meta.UsageCount,
	)
	if err != nil {
		return fmt.Errorf("knowledge: save record %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteRecord removes a record by ID. Missing IDs are not an error.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("knowledge: delete record %s: %w", id, err)
	}
	return nil
}

// LoadRecords returns every persisted record in insertion order.
func (s *SQLiteStore) LoadRecords(ctx context.Context) ([]Record, error) {
	const q = `
SELECT id, text, vector, category, source, title, origin_topic, created_at,
       verified, verified_at, status, status_note, usage_count
FROM   knowledge_records
ORDER  BY seq ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("knowledge: load records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			rec        Record
			blob       []byte
			createdAt  int64
			verified   int
			verifiedAt int64
			status     string
		)
		if err := rows.Scan(
			&rec.ID, &rec.Text, &blob,
			&rec.Meta.Category, &rec.Meta.Source, &rec.Meta.Title, &rec.Meta.OriginTopic,
			&createdAt, &verified, &verifiedAt, &status,
			&rec.Meta.VerificationNote, &rec.Meta.UsageCount,
		); err != nil {
			return nil, fmt.Errorf("knowledge: load records scan: %w", err)
		}
		rec.Vector = decodeVector(blob)
		rec.Meta.Timestamp = time.UnixMilli(createdAt)
		rec.Meta.Verified = verified == 1
		if verifiedAt > 0 {
			rec.Meta.VerifiedAt = time.UnixMilli(verifiedAt)
		}
		rec.Meta.VerificationStatus = VerificationStatus(status)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge: load records rows: %w", err)
	}
	return recs, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("knowledge: close: %w", err)
	}
	return nil
}

// encodeVector serializes a vector as little-endian float32 bytes.
// A nil vector maps to a NULL column so keyword-only records round-trip.
func encodeVector(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
