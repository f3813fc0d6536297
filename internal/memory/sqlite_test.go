package memory

import (
	"context"
	"testing"
	"time"
)

// openTestSQLite opens an in-memory entry database for use in tests.
func openTestSQLite(t *testing.T) *SQLiteLog {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_SQLiteLog_RoundTrip(t *testing.T) {
	t.Parallel()
	db := openTestSQLite(t)
	ctx := context.Background()

	e := Entry{
		UserID:    "u1",
		Message:   "when is orientation week",
		Response:  "the last week of February",
		Context:   "events",
		Timestamp: time.UnixMilli(1700000000000),
	}
	if err := db.SaveEntry(ctx, e, 100); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := db.LoadEntries(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	got := entries[0]
	if got.UserID != e.UserID || got.Message != e.Message || got.Response != e.Response || got.Context != e.Context {
		t.Errorf("entry mismatch: %+v", got)
	}
	if !got.Timestamp.Equal(e.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, e.Timestamp)
	}
}

func Test_SQLiteLog_TrimsToCapacity(t *testing.T) {
	t.Parallel()
	db := openTestSQLite(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := range 5 {
		e := Entry{UserID: "u1", Message: "m", Response: "r", Timestamp: base.Add(time.Duration(i) * time.Minute)}
		if err := db.SaveEntry(ctx, e, 3); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	entries, err := db.LoadEntries(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries after trim, want 3", len(entries))
	}
}

func Test_SQLiteLog_WarmStartRestoresLog(t *testing.T) {
	t.Parallel()
	db := openTestSQLite(t)
	ctx := context.Background()

	e := Entry{UserID: "u1", Message: "campus shuttle times", Response: "every 20 minutes", Timestamp: time.Now()}
	if err := db.SaveEntry(ctx, e, 100); err != nil {
		t.Fatalf("save: %v", err)
	}

	l, err := NewLog(ctx, &Config{Persister: db})
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	if hits := l.Relevant("u1", "shuttle times", 5); len(hits) != 1 {
		t.Errorf("persisted entry not restored: %v", hits)
	}
}
