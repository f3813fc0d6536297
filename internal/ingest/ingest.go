// Package ingest implements operator-driven knowledge seeding. It reads
// local text or markdown files, chunks the content, categorizes and embeds
// each chunk, and upserts the results into the knowledge store as manual
// records. This pipeline is invoked by the `ragcore ingest` CLI command.
package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sistc/ragcore/internal/embed"
	"github.com/sistc/ragcore/internal/knowledge"
)

// Config holds the configuration for the ingest pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between
	// consecutive chunks. Defaults to 100 if zero.
	ChunkOverlap int

	// Category is the taxonomy bucket applied to every chunk. When empty
	// and Categorize is set, each chunk is classified individually.
	Category string

	// Categorize assigns a taxonomy bucket per chunk; may be nil.
	Categorize func(ctx context.Context, text string) string
}

// Pipeline orchestrates the read → chunk → embed → upsert flow for a set
// of knowledge files.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder embed.Embedder

	// store persists the embedded chunks.
	store *knowledge.Store

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder embed.Embedder, store *knowledge.Store, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingest: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingest: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
	}, nil
}

// Ingest reads, chunks, embeds, and stores all provided files.
// It processes files sequentially and returns the first error encountered.
// Chunk IDs are deterministic per file and index, so re-ingesting the same
// file replaces its records instead of duplicating them.
// Progress is reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, paths []string, progress func(msg string)) (int, error) {
	if progress == nil {
		progress = func(string) {}
	}

	total := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return total, fmt.Errorf("ingest: read %s: %w", path, err)
		}

		chunks := p.chunk(string(data))
		progress(fmt.Sprintf("chunked %s into %d chunks", path, len(chunks)))

		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		for i, chunk := range chunks {
			vec, err := p.embedder.Embed(ctx, chunk)
			if err != nil {
				return total, fmt.Errorf("ingest: embed chunk %d of %s: %w", i, path, err)
			}

			rec := knowledge.Record{
				ID:     chunkID(path, i),
				Text:   chunk,
				Vector: vec,
				Meta: knowledge.Meta{
					Category:  p.category(ctx, chunk),
					Source:    knowledge.SourceManual,
					Title:     title,
					Timestamp: time.Now(),
				},
			}
			if err := p.store.Upsert(ctx, rec); err != nil {
				return total, fmt.Errorf("ingest: upsert chunk %d of %s: %w", i, path, err)
			}
			total++
		}

		progress(fmt.Sprintf("ingested %d chunks from %s", len(chunks), path))
	}

	return total, nil
}

// category resolves the taxonomy bucket for one chunk.
func (p *Pipeline) category(ctx context.Context, chunk string) string {
	if p.cfg.Category != "" {
		return p.cfg.Category
	}
	if p.cfg.Categorize != nil {
		return p.cfg.Categorize(ctx, chunk)
	}
	return "general"
}

// chunk splits text into overlapping chunks of cfg.ChunkSize characters.
func (p *Pipeline) chunk(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	var chunks []string
	size := p.cfg.ChunkSize
	overlap := p.cfg.ChunkOverlap

	for start := 0; start < len(text); start += size - overlap {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}

	return chunks
}

// chunkID generates a deterministic ID for a chunk based on its source
// file path and chunk index.
func chunkID(path string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", path, index)))
	return fmt.Sprintf("%x", h[:16])
}
