// Package learn implements the self-learning write-back loop. When
// retrieval confidence is too low to answer from the knowledge store, the
// learner searches the web, distills the results into clean factual
// statements, embeds them, and upserts them back into the store so the
// next similar query can be answered directly.
package learn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sistc/ragcore/internal/embed"
	"github.com/sistc/ragcore/internal/knowledge"
	"github.com/sistc/ragcore/internal/llm"
	"github.com/sistc/ragcore/internal/websearch"
)

const (
	// defaultMaxResults bounds the number of web hits fed to distillation.
	defaultMaxResults = 5

	// maxSnippetInput bounds the total characters of concatenated snippets
	// sent to the distillation call.
	maxSnippetInput = 2000

	// minDistilledLength is the floor below which distilled output is
	// discarded as noise.
	minDistilledLength = 50
)

// distillSystem instructs the model to produce storable factual text.
const distillSystem = `You distill web search results into knowledge for a
university student assistant. Write one clean factual paragraph of 2-4
sentences covering only facts supported by the provided snippets. No
preamble, no markdown, no citations.`

// Config holds the settings for constructing a Learner.
type Config struct {
	// MaxResults bounds the web search (default 5).
	MaxResults int
	// ChunkSize splits the distilled paragraph into chunks of at most this
	// many characters on sentence boundaries. Zero keeps the paragraph as
	// a single chunk, matching current product behavior. Chunk granularity
	// is a tunable, not a contract.
	ChunkSize int
}

// Learner runs the search → distill → embed → upsert cycle.
type Learner struct {
	// search is the external web-search collaborator.
	search websearch.Searcher
	// gen distills snippets into factual text.
	gen llm.Generator
	// embedder vectorizes distilled chunks.
	embedder embed.Embedder
	// store receives the learned records.
	store *knowledge.Store
	// categorize assigns a taxonomy bucket to learned text; may be nil.
	categorize func(ctx context.Context, text string) string
	// cfg holds the resolved settings.
	cfg Config
	// log records per-chunk failures.
	log *slog.Logger
}

// New constructs a Learner. categorize may be nil, in which case learned
// records land in the general category.
func New(search websearch.Searcher, gen llm.Generator, embedder embed.Embedder, store *knowledge.Store, categorize func(ctx context.Context, text string) string, cfg Config, log *slog.Logger) (*Learner, error) {
	if search == nil || gen == nil || embedder == nil || store == nil {
		return nil, fmt.Errorf("learn: search, generator, embedder, and store are all required")
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if log == nil {
		log = slog.Default()
	}
	return &Learner{
		search:     search,
		gen:        gen,
		embedder:   embedder,
		store:      store,
		categorize: categorize,
		cfg:        cfg,
		log:        log,
	}, nil
}

// LearnFromExternal runs one learning cycle for the query. An empty record
// slice with a nil error means the web search found nothing — the caller
// degrades gracefully rather than treating it as a failure. Chunk failures
// are isolated: one bad chunk is logged and skipped, the rest are stored.
func (l *Learner) LearnFromExternal(ctx context.Context, query string) ([]knowledge.Record, error) {
	results, err := l.search.Search(ctx, query, l.cfg.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("learn: web search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	distilled, err := l.distill(ctx, query, results)
	if err != nil {
		return nil, err
	}
	if len(distilled) < minDistilledLength {
		l.log.Debug("learn: distilled output below noise floor, discarding",
			slog.Int("length", len(distilled)),
		)
		return nil, nil
	}

	category := "general"
	if l.categorize != nil {
		category = l.categorize(ctx, distilled)
	}

	var stored []knowledge.Record
	for i, chunk := range splitChunks(distilled, l.cfg.ChunkSize) {
		rec, err := l.storeChunk(ctx, query, category, chunk)
		if err != nil {
			// Failure isolation: a failed chunk must not block the rest.
			l.log.Error("learn: chunk write-back failed",
				slog.Int("chunk", i),
				slog.String("query", query),
				slog.String("error", err.Error()),
			)
			continue
		}
		stored = append(stored, rec)
	}
	return stored, nil
}

// distill condenses the search snippets into a factual paragraph.
func (l *Learner) distill(ctx context.Context, query string, results []websearch.Result) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nSearch results:\n", query)
	for _, r := range results {
		line := fmt.Sprintf("- %s: %s\n", r.Title, r.Snippet)
		if b.Len()+len(line) > maxSnippetInput {
			break
		}
		b.WriteString(line)
	}

	out, err := l.gen.Generate(ctx, b.String(), distillSystem)
	if err != nil {
		return "", fmt.Errorf("learn: distillation: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// storeChunk embeds one chunk and writes it back to the knowledge store.
func (l *Learner) storeChunk(ctx context.Context, query, category, chunk string) (knowledge.Record, error) {
	vec, err := l.embedder.Embed(ctx, chunk)
	if err != nil {
		return knowledge.Record{}, fmt.Errorf("embed chunk: %w", err)
	}

	rec := knowledge.Record{
		ID:     newRecordID(),
		Text:   chunk,
		Vector: vec,
		Meta: knowledge.Meta{
			Category:    category,
			Source:      knowledge.SourceWebLearned,
			OriginTopic: query,
			Timestamp:   time.Now(),
		},
	}
	if err := l.store.Upsert(ctx, rec); err != nil {
		return knowledge.Record{}, fmt.Errorf("upsert chunk: %w", err)
	}
	return rec, nil
}

// newRecordID returns a fresh UUID record ID. The remote vector index only
// accepts UUID-shaped point IDs, so provenance (source, origin topic,
// timestamp) travels in the record metadata rather than the ID.
func newRecordID() string {
	return uuid.NewString()
}

// splitChunks splits text into chunks of at most size characters on
// sentence boundaries. size <= 0 keeps the whole text as one chunk.
func splitChunks(text string, size int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, sentence := range strings.SplitAfter(text, ". ") {
		if current.Len() > 0 && current.Len()+len(sentence) > size {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(sentence)
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
