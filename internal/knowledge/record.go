// Package knowledge implements the durable knowledge store behind the
// retrieval core: record model, two-tier similarity search (remote vector
// index with a local in-memory fallback), keyword-overlap degradation for
// records without vectors, and SQLite persistence.
package knowledge

import (
	"time"
)

// VerificationStatus is the verdict recorded by the lifecycle manager's
// delayed fact-check of a record.
type VerificationStatus string

const (
	// StatusAccurate marks a record whose content passed fact-checking.
	StatusAccurate VerificationStatus = "ACCURATE"
	// StatusNeedsUpdate marks a record that is partially correct but stale.
	StatusNeedsUpdate VerificationStatus = "NEEDS_UPDATE"
	// StatusIncorrect marks a record that failed fact-checking.
	StatusIncorrect VerificationStatus = "INCORRECT"
)

// Well-known record sources.
const (
	// SourceManual identifies records created by operator ingestion.
	SourceManual = "manual"
	// SourceWebLearned identifies records distilled from web search results
	// by the self-learning loop.
	SourceWebLearned = "web_auto_learned"
	// SourceConversation identifies records extracted from past turns.
	SourceConversation = "conversation"
)

// Meta holds the mutable metadata attached to a knowledge record.
type Meta struct {
	// Category is the taxonomy bucket used for filtered search.
	Category string
	// Source identifies how the record was created (manual, web_auto_learned, ...).
	Source string
	// Title is an optional human-readable label.
	Title string
	// Timestamp is when the record was created or last rewritten.
	Timestamp time.Time
	// Verified reports whether a fact-check has completed for this record.
	Verified bool
	// VerifiedAt is when the fact-check verdict was recorded; zero if never.
	VerifiedAt time.Time
	// VerificationStatus is the fact-check verdict, empty until verified.
	VerificationStatus VerificationStatus
	// VerificationNote is the fact-checker's explanation of its verdict.
	VerificationNote string
	// UsageCount is incremented each time the record is returned by a search.
	UsageCount int
	// OriginTopic is the query that triggered a web-learned record.
	OriginTopic string
}

// Record is one unit of retrievable knowledge. Vector is either nil
// (keyword-fallback-only record) or has exactly the store's configured
// dimensionality. Text and Vector are only ever replaced together so the
// vector can never drift stale against the text.
type Record struct {
	// ID uniquely identifies the record; upserts are idempotent by ID.
	ID string
	// Text is the factual content.
	Text string
	// Vector is the embedding of Text, or nil for keyword-only records.
	Vector []float32
	// Meta holds category, provenance, and verification state.
	Meta Meta
}

// Match is a retrieval result: a record plus its similarity score in [0, 1].
type Match struct {
	// Record is the matched knowledge record.
	Record Record
	// Score is the normalized similarity in [0, 1].
	Score float64
}

// Query describes one search against the store.
type Query struct {
	// Text is the raw query text, used for keyword-overlap scoring of
	// records that have no vector.
	Text string
	// Vector is the query embedding.
	Vector []float32
	// TopK caps the number of results.
	TopK int
	// MinSimilarity excludes results scoring below this floor.
	MinSimilarity float64
	// Category restricts the search to one taxonomy bucket when non-empty.
	// The filter is an optimization, not a correctness constraint: a
	// filtered result set with fewer than two matches triggers an
	// unfiltered retry.
	Category string
}
