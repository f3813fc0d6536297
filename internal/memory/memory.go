// Package memory implements per-user conversational memory: a bounded
// append-only log of past turns, queried by recency-decayed keyword
// relevance. Recent-and-relevant beats old-and-relevant — each entry's
// keyword overlap with the query is multiplied by exp(-age/halfLife).
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultCapacity is the per-user entry cap; the oldest entry is
	// evicted FIFO on overflow.
	DefaultCapacity = 100

	// DefaultHalfLife is the age at which an entry's relevance has decayed
	// by a factor of e.
	DefaultHalfLife = 7 * 24 * time.Hour
)

// Entry is one remembered conversation turn.
type Entry struct {
	// UserID identifies whose log this entry belongs to.
	UserID string
	// Message is the user's query text.
	Message string
	// Response is the assistant's answer text.
	Response string
	// Context is the retrieval context the answer was grounded on.
	Context string
	// Timestamp is when the turn completed.
	Timestamp time.Time
}

// Persister is the durable backing store for memory entries. The SQLite
// implementation in this package satisfies it; tests use nil (memory-only).
type Persister interface {
	// SaveEntry appends one entry and trims the user's log to capacity.
	SaveEntry(ctx context.Context, e Entry, capacity int) error
	// LoadEntries returns all persisted entries oldest-first.
	LoadEntries(ctx context.Context) ([]Entry, error)
	// Close releases the underlying database handle.
	Close() error
}

// Config holds the settings for constructing a Log.
type Config struct {
	// Capacity is the per-user entry cap (default DefaultCapacity).
	Capacity int
	// HalfLife is the relevance decay constant (default DefaultHalfLife).
	HalfLife time.Duration
	// Persister is the optional durable backing store.
	Persister Persister
}

// userLog holds one user's entries behind a dedicated mutex so concurrent
// appends for the same user are serialized without cross-user contention.
type userLog struct {
	mu      sync.Mutex
	entries []Entry
}

// Log is the conversational memory across all users.
type Log struct {
	// mu guards the users map only; per-user state has its own lock.
	mu    sync.Mutex
	users map[string]*userLog

	// capacity is the per-user FIFO cap.
	capacity int
	// halfLife is the decay constant for relevance scoring.
	halfLife time.Duration
	// db is the optional durable backing store.
	db Persister
}

// NewLog constructs a Log, loading any persisted entries.
func NewLog(ctx context.Context, cfg *Config) (*Log, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	halfLife := cfg.HalfLife
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}

	l := &Log{
		users:    make(map[string]*userLog),
		capacity: capacity,
		halfLife: halfLife,
		db:       cfg.Persister,
	}

	if l.db != nil {
		entries, err := l.db.LoadEntries(ctx)
		if err != nil {
			return nil, fmt.Errorf("memory: load persisted entries: %w", err)
		}
		for _, e := range entries {
			u := l.user(e.UserID)
			u.entries = append(u.entries, e)
			if len(u.entries) > capacity {
				u.entries = u.entries[len(u.entries)-capacity:]
			}
		}
	}

	return l, nil
}

// user returns (creating if needed) the log for userID.
func (l *Log) user(userID string) *userLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[userID]
	if !ok {
		u = &userLog{}
		l.users[userID] = u
	}
	return u
}

// Append records one turn for the user, evicting the oldest entry when the
// capacity cap is exceeded.
func (l *Log) Append(ctx context.Context, e Entry) error {
	if e.UserID == "" {
		return fmt.Errorf("memory: entry requires a user ID")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	u := l.user(e.UserID)
	u.mu.Lock()
	u.entries = append(u.entries, e)
	if len(u.entries) > l.capacity {
		u.entries = u.entries[len(u.entries)-l.capacity:]
	}
	u.mu.Unlock()

	if l.db != nil {
		if err := l.db.SaveEntry(ctx, e, l.capacity); err != nil {
			return fmt.Errorf("memory: persist entry: %w", err)
		}
	}
	return nil
}

// Len returns the number of entries stored for userID.
func (l *Log) Len(userID string) int {
	u := l.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.entries)
}

// Relevant returns up to limit entries for userID ranked by decay-weighted
// keyword relevance to the query. Entries scoring zero are excluded.
func (l *Log) Relevant(userID, query string, limit int) []Entry {
	if limit <= 0 {
		limit = 3
	}
	u := l.user(userID)

	u.mu.Lock()
	entries := make([]Entry, len(u.entries))
	copy(entries, u.entries)
	u.mu.Unlock()

	now := time.Now()
	type scored struct {
		entry Entry
		score float64
	}
	var ranked []scored
	for _, e := range entries {
		overlap := keywordOverlap(query, e.Message+" "+e.Response)
		if overlap == 0 {
			continue
		}
		age := now.Sub(e.Timestamp)
		score := overlap * math.Exp(-float64(age)/float64(l.halfLife))
		if score > 0 {
			ranked = append(ranked, scored{entry: e, score: score})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]Entry, len(ranked))
	for i, s := range ranked {
		out[i] = s.entry
	}
	return out
}

// Close releases the persister, if configured.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// keywordOverlap returns the fraction of query terms present in text.
func keywordOverlap(query, text string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	found := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			found++
		}
	}
	return float64(found) / float64(len(terms))
}
