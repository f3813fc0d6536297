package embed

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

// failingEmbedder always errors, simulating an unreachable external backend.
type failingEmbedder struct {
	dims  int
	calls int
}

func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func (f *failingEmbedder) Dimensions() int { return f.dims }

// fixedEmbedder returns a canned vector, simulating a healthy backend.
type fixedEmbedder struct {
	vec []float32
}

func (f *fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, nil
}

func (f *fixedEmbedder) Dimensions() int { return len(f.vec) }

func Test_FallbackEmbedder_ExternalFailureDegradesToHash(t *testing.T) {
	t.Parallel()
	ext := &failingEmbedder{dims: 128}
	fb, err := NewFallbackEmbedder(ext, slog.Default())
	if err != nil {
		t.Fatalf("new fallback embedder: %v", err)
	}

	vec, err := fb.Embed(context.Background(), "visa requirements for international students")
	if err != nil {
		t.Fatalf("embed should not surface external errors, got: %v", err)
	}
	if len(vec) != 128 {
		t.Errorf("fallback vector has %d dims, want 128", len(vec))
	}
	if ext.calls != 1 {
		t.Errorf("external backend called %d times, want 1", ext.calls)
	}
}

func Test_FallbackEmbedder_HealthyExternalPreferred(t *testing.T) {
	t.Parallel()
	want := []float32{0.6, 0.8}
	fb, err := NewFallbackEmbedder(&fixedEmbedder{vec: want}, slog.Default())
	if err != nil {
		t.Fatalf("new fallback embedder: %v", err)
	}

	got, err := fb.Embed(context.Background(), "course enrolment dates")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want external vector %v", got, want)
	}
}

func Test_FallbackEmbedder_NilExternalUsesHashDirectly(t *testing.T) {
	t.Parallel()
	fb, err := NewFallbackEmbedder(nil, slog.Default())
	if err != nil {
		t.Fatalf("new fallback embedder: %v", err)
	}
	vec, err := fb.Embed(context.Background(), "orientation week schedule")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != fb.Dimensions() {
		t.Errorf("len(vec) = %d, want %d", len(vec), fb.Dimensions())
	}
}

func Test_FallbackEmbedder_EmptyInputStillRejected(t *testing.T) {
	t.Parallel()
	fb, err := NewFallbackEmbedder(&failingEmbedder{dims: 64}, slog.Default())
	if err != nil {
		t.Fatalf("new fallback embedder: %v", err)
	}
	if _, err := fb.Embed(context.Background(), "  "); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("got %v, want ErrEmptyInput", err)
	}
}
