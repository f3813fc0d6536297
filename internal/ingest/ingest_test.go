package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sistc/ragcore/internal/embed"
	"github.com/sistc/ragcore/internal/knowledge"
)

// writeFile writes a temp knowledge file and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

// newTestPipeline builds a pipeline over a memory-only store.
func newTestPipeline(t *testing.T, cfg *Config) (*Pipeline, *knowledge.Store) {
	t.Helper()
	store, err := knowledge.NewStore(context.Background(), &knowledge.Config{Dimensions: 64})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	p, err := NewPipeline(embed.NewHashEmbedder(64), store, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p, store
}

func Test_Pipeline_IngestsFileAsManualRecords(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "campus.md", "SISTC has campuses in Sydney, Parramatta, and Melbourne.")
	p, store := newTestPipeline(t, &Config{Category: "campus"})

	n, err := p.Ingest(context.Background(), []string{path}, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 1 || store.Len() != 1 {
		t.Fatalf("ingested %d chunks, store holds %d, want 1 each", n, store.Len())
	}
}

func Test_Pipeline_RecordMetadata(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "fees.md", "Tuition for international students is billed per semester.")
	p, store := newTestPipeline(t, &Config{Category: "fees"})

	if _, err := p.Ingest(context.Background(), []string{path}, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	rec, ok := store.Get(chunkID(path, 0))
	if !ok {
		t.Fatal("record not retrievable by deterministic chunk ID")
	}
	if rec.Meta.Source != knowledge.SourceManual {
		t.Errorf("source = %q, want %q", rec.Meta.Source, knowledge.SourceManual)
	}
	if rec.Meta.Category != "fees" {
		t.Errorf("category = %q, want fees", rec.Meta.Category)
	}
	if rec.Meta.Title != "fees" {
		t.Errorf("title = %q, want fees", rec.Meta.Title)
	}
	if len(rec.Vector) != 64 {
		t.Errorf("vector dims = %d, want 64", len(rec.Vector))
	}
}

func Test_Pipeline_ReingestReplacesNotDuplicates(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "campus.md", "SISTC has campuses in Sydney, Parramatta, and Melbourne.")
	p, store := newTestPipeline(t, &Config{Category: "campus"})
	ctx := context.Background()

	if _, err := p.Ingest(ctx, []string{path}, nil); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := p.Ingest(ctx, []string{path}, nil); err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d records after re-ingest, want 1", store.Len())
	}
}

func Test_Pipeline_ChunkOverlap(t *testing.T) {
	t.Parallel()
	content := strings.Repeat("a", 250)
	path := writeFile(t, "long.md", content)
	p, store := newTestPipeline(t, &Config{ChunkSize: 100, ChunkOverlap: 20, Category: "general"})

	n, err := p.Ingest(context.Background(), []string{path}, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	// Stride is 80 chars: chunks start at 0, 80, and 160. The third chunk
	// reaches end-of-text, so no degenerate tail chunk is emitted.
	if n != 3 || store.Len() != 3 {
		t.Errorf("got %d chunks, want 3", n)
	}
}

func Test_Pipeline_PerChunkCategorize(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "mixed.md", "Visa renewals are handled by the international office.")
	var seen []string
	p, store := newTestPipeline(t, &Config{
		Categorize: func(_ context.Context, text string) string {
			seen = append(seen, text)
			return "visa"
		},
	})

	if _, err := p.Ingest(context.Background(), []string{path}, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("categorize called %d times, want 1", len(seen))
	}
	rec, _ := store.Get(chunkID(path, 0))
	if rec.Meta.Category != "visa" {
		t.Errorf("category = %q, want visa", rec.Meta.Category)
	}
}

func Test_Pipeline_MissingFileSurfaced(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t, nil)
	if _, err := p.Ingest(context.Background(), []string{"/does/not/exist.md"}, nil); err == nil {
		t.Error("want error for missing file")
	}
}
