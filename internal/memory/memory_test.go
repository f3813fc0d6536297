package memory

import (
	"context"
	"testing"
	"time"
)

// newTestLog builds a memory-only log with the given capacity.
func newTestLog(t *testing.T, capacity int) *Log {
	t.Helper()
	l, err := NewLog(context.Background(), &Config{Capacity: capacity})
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	return l
}

func Test_Log_BoundedFIFOEvictsOldest(t *testing.T) {
	t.Parallel()
	l := newTestLog(t, 3)
	ctx := context.Background()

	for _, msg := range []string{"first", "second", "third", "fourth"} {
		if err := l.Append(ctx, Entry{UserID: "u1", Message: msg, Response: "ok"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if got := l.Len("u1"); got != 3 {
		t.Fatalf("len = %d, want 3", got)
	}
	// "first" must have been evicted: no overlap hit for it.
	if hits := l.Relevant("u1", "first", 5); len(hits) != 0 {
		t.Errorf("evicted entry still retrievable: %v", hits)
	}
	if hits := l.Relevant("u1", "fourth", 5); len(hits) != 1 {
		t.Errorf("latest entry missing: %v", hits)
	}
}

func Test_Log_RelevantRanksNewerOfEqualOverlap(t *testing.T) {
	t.Parallel()
	l := newTestLog(t, 10)
	ctx := context.Background()

	old := Entry{UserID: "u1", Message: "library opening hours", Response: "9am", Timestamp: time.Now().Add(-72 * time.Hour)}
	fresh := Entry{UserID: "u1", Message: "library opening hours", Response: "9am", Timestamp: time.Now().Add(-1 * time.Hour)}
	for _, e := range []Entry{old, fresh} {
		if err := l.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	hits := l.Relevant("u1", "library hours", 2)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if !hits[0].Timestamp.After(hits[1].Timestamp) {
		t.Error("decay weighting should rank the newer entry first")
	}
}

func Test_Log_ZeroOverlapExcluded(t *testing.T) {
	t.Parallel()
	l := newTestLog(t, 10)
	if err := l.Append(context.Background(), Entry{UserID: "u1", Message: "visa paperwork", Response: "bring your passport"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if hits := l.Relevant("u1", "cafeteria menu", 5); len(hits) != 0 {
		t.Errorf("zero-overlap entry returned: %v", hits)
	}
}

func Test_Log_UsersIsolated(t *testing.T) {
	t.Parallel()
	l := newTestLog(t, 10)
	ctx := context.Background()
	if err := l.Append(ctx, Entry{UserID: "alice", Message: "exam timetable", Response: "june"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if hits := l.Relevant("bob", "exam timetable", 5); len(hits) != 0 {
		t.Errorf("cross-user leak: %v", hits)
	}
}

func Test_Log_LimitRespected(t *testing.T) {
	t.Parallel()
	l := newTestLog(t, 10)
	ctx := context.Background()
	for range 5 {
		if err := l.Append(ctx, Entry{UserID: "u1", Message: "fees due date", Response: "friday"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if hits := l.Relevant("u1", "fees due", 2); len(hits) != 2 {
		t.Errorf("got %d hits, want 2", len(hits))
	}
}

func Test_Log_MissingUserIDRejected(t *testing.T) {
	t.Parallel()
	l := newTestLog(t, 10)
	if err := l.Append(context.Background(), Entry{Message: "hi"}); err == nil {
		t.Error("want error for entry without user ID")
	}
}
