package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sistc/ragcore/internal/vecmath"
)

// substringBonus is added to a keyword-overlap score when the whole query
// appears verbatim inside the record text.
const substringBonus = 0.25

// VectorIndex is the remote similarity-search collaborator (Qdrant in
// production). It may be absent entirely, in which case the store runs in
// local-only mode. Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Query returns the topK nearest records to vector, optionally
	// restricted to a category.
	Query(ctx context.Context, vector []float32, topK int, category string) ([]Match, error)
	// Upsert stores or replaces one record in the index.
	Upsert(ctx context.Context, rec Record) error
	// Delete removes a record from the index by ID.
	Delete(ctx context.Context, id string) error
	// Close releases the index connection.
	Close() error
}

// Persister is the durable backing store for records. The SQLite
// implementation in this package satisfies it; tests use nil (memory-only).
type Persister interface {
	// SaveRecord writes or replaces one record.
	SaveRecord(ctx context.Context, rec Record) error
	// DeleteRecord removes a record by ID; missing IDs are not an error.
	DeleteRecord(ctx context.Context, id string) error
	// LoadRecords returns every persisted record in insertion order.
	LoadRecords(ctx context.Context) ([]Record, error)
	// Close releases the underlying database handle.
	Close() error
}

// Config holds the settings for constructing a Store.
type Config struct {
	// Dimensions is the vector size every embedded record must have.
	Dimensions int
	// Index is the optional remote vector index.
	Index VectorIndex
	// Persister is the optional durable backing store.
	Persister Persister
	// Log is the structured logger; defaults to slog.Default when nil.
	Log *slog.Logger
}

// Store is the knowledge store: an in-memory record set with optional
// remote-index search and optional SQLite durability. Search degrades
// gracefully — remote index failure falls back to local scoring, and
// records without vectors are scored by keyword overlap — so retrieval
// keeps producing answers through collaborator outages.
type Store struct {
	// mu guards records and order. It is never held across I/O.
	mu sync.RWMutex
	// records maps ID to the current record state.
	records map[string]Record
	// order preserves insertion order for stable tie-breaking.
	order []string

	// dims is the required vector dimensionality.
	dims int
	// index is the optional remote vector index.
	index VectorIndex
	// db is the optional durable backing store.
	db Persister
	// log records degradation events.
	log *slog.Logger
}

// NewStore constructs a Store, loading any persisted records from the
// configured Persister.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil || cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("knowledge: store requires a positive vector dimensionality")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	s := &Store{
		records: make(map[string]Record),
		dims:    cfg.Dimensions,
		index:   cfg.Index,
		db:      cfg.Persister,
		log:     log,
	}

	if s.db != nil {
		recs, err := s.db.LoadRecords(ctx)
		if err != nil {
			return nil, fmt.Errorf("knowledge: load persisted records: %w", err)
		}
		for _, rec := range recs {
			if rec.Vector != nil && len(rec.Vector) != s.dims {
				return nil, fmt.Errorf("knowledge: persisted record %s has %d-dimensional vector, store configured for %d", rec.ID, len(rec.Vector), s.dims)
			}
			s.records[rec.ID] = rec
			s.order = append(s.order, rec.ID)
		}
	}

	return s, nil
}

// Dimensions returns the vector size this store is configured for.
func (s *Store) Dimensions() int { return s.dims }

// Len returns the number of records currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Upsert stores or replaces a record, idempotent by ID. Text, vector, and
// metadata are replaced together as a unit. A vector of the wrong
// dimensionality is rejected before any write. Persistence failure is
// surfaced; remote-index failure is logged and tolerated because the record
// remains retrievable through the local fallback.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("knowledge: upsert requires a record ID")
	}
	if rec.Vector != nil && len(rec.Vector) != s.dims {
		return fmt.Errorf("knowledge: record %s has %d-dimensional vector, store configured for %d", rec.ID, len(rec.Vector), s.dims)
	}
	if rec.Meta.Timestamp.IsZero() {
		rec.Meta.Timestamp = time.Now()
	}

	if s.db != nil {
		if err := s.db.SaveRecord(ctx, rec); err != nil {
			return fmt.Errorf("knowledge: persist record %s: %w", rec.ID, err)
		}
	}

	s.mu.Lock()
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
	s.mu.Unlock()

	if s.index != nil && rec.Vector != nil {
		if err := s.index.Upsert(ctx, rec); err != nil {
			s.log.Warn("knowledge: remote index upsert failed, record remains local-only",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Delete removes a record everywhere. Deleting a missing ID is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.records[id]; ok {
		delete(s.records, id)
		for i, oid := range s.order {
			if oid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.DeleteRecord(ctx, id); err != nil {
			return fmt.Errorf("knowledge: delete record %s: %w", id, err)
		}
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, id); err != nil {
			s.log.Warn("knowledge: remote index delete failed",
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// ListOlderThan returns records whose creation timestamp is older than age.
func (s *Store) ListOlderThan(age time.Duration) []Record {
	cutoff := time.Now().Add(-age)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, id := range s.order {
		rec := s.records[id]
		if rec.Meta.Timestamp.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// SetVerification records a fact-check verdict on a record. Returns false
// if the record no longer exists — the caller treats that as a no-op, not
// an error, because eviction may race with delayed verification.
func (s *Store) SetVerification(ctx context.Context, id string, status VerificationStatus, note string) (bool, error) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	rec.Meta.Verified = true
	rec.Meta.VerifiedAt = time.Now()
	rec.Meta.VerificationStatus = status
	rec.Meta.VerificationNote = note
	s.records[id] = rec
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.SaveRecord(ctx, rec); err != nil {
			return true, fmt.Errorf("knowledge: persist verification for %s: %w", id, err)
		}
	}
	return true, nil
}

// Search runs a similarity search with graceful degradation. A configured
// remote index is preferred; on its failure (or absence) the store scores
// every local record itself. A category-filtered pass that yields fewer
// than two matches is retried unfiltered before returning — under-filtering
// must never starve a real answer.
func (s *Store) Search(ctx context.Context, q Query) ([]Match, error) {
	if q.TopK <= 0 {
		q.TopK = 5
	}

	matches := s.searchOnce(ctx, q)
	if q.Category != "" && len(matches) < 2 {
		unfiltered := q
		unfiltered.Category = ""
		matches = s.searchOnce(ctx, unfiltered)
	}

	s.recordUsage(matches)
	return matches, nil
}

// searchOnce performs a single filtered or unfiltered search pass.
func (s *Store) searchOnce(ctx context.Context, q Query) []Match {
	if s.index != nil {
		matches, err := s.index.Query(ctx, q.Vector, q.TopK, q.Category)
		if err == nil {
			return s.rankAndTrim(matches, q)
		}
		s.log.Warn("knowledge: remote index query failed, falling back to local search",
			slog.String("error", err.Error()),
		)
	}
	return s.rankAndTrim(s.scoreLocal(q), q)
}

// scoreLocal scores every in-memory record against the query: cosine
// similarity for records with vectors, keyword overlap for the rest.
func (s *Store) scoreLocal(q Query) []Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		if q.Category != "" && rec.Meta.Category != q.Category {
			continue
		}

		var score float64
		if rec.Vector != nil && q.Vector != nil {
			score = vecmath.Clip01(vecmath.Cosine(q.Vector, rec.Vector))
		} else {
			score = keywordScore(q.Text, rec.Text)
		}
		matches = append(matches, Match{Record: rec, Score: score})
	}
	return matches
}

// rankAndTrim applies the similarity floor, sorts, and truncates to topK.
// Ordering: score descending, then most-recently-verified first, then
// insertion order (the incoming slice is already in insertion or index
// order, and the sort is stable).
func (s *Store) rankAndTrim(matches []Match, q Query) []Match {
	kept := matches[:0]
	for _, m := range matches {
		if m.Score >= q.MinSimilarity && m.Score > 0 {
			kept = append(kept, m)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Record.Meta.VerifiedAt.After(kept[j].Record.Meta.VerifiedAt)
	})

	if len(kept) > q.TopK {
		kept = kept[:q.TopK]
	}
	return kept
}

// recordUsage increments the usage counter of every returned record.
// Best-effort: counters live in memory and are persisted on the next
// full record write.
func (s *Store) recordUsage(matches []Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range matches {
		if rec, ok := s.records[m.Record.ID]; ok {
			rec.Meta.UsageCount++
			s.records[m.Record.ID] = rec
		}
	}
}

// Close releases the index and persister, if configured.
func (s *Store) Close() error {
	var firstErr error
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			firstErr = fmt.Errorf("knowledge: close index: %w", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("knowledge: close persister: %w", err)
		}
	}
	return firstErr
}

// keywordScore is the degradation path for records without vectors: the
// fraction of query terms present in the record text, plus a bonus when
// the whole query appears verbatim. Result is clipped to [0, 1].
func keywordScore(query, text string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	lowerText := strings.ToLower(text)

	found := 0
	for _, term := range terms {
		if strings.Contains(lowerText, term) {
			found++
		}
	}
	score := float64(found) / float64(len(terms))
	if strings.Contains(lowerText, strings.ToLower(strings.TrimSpace(query))) {
		score += substringBonus
	}
	return vecmath.Clip01(score)
}
