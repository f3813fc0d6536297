package embed

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// FallbackEmbedder delegates to an external embedding backend and silently
// degrades to the deterministic hash path on any external failure (timeout,
// quota, malformed response). External errors are logged but never surfaced
// to the caller — the retrieval core must keep working through an embedding
// outage, just with lower-quality vectors.
//
// Both paths must produce vectors of the same dimensionality; this is
// enforced at construction.
type FallbackEmbedder struct {
	// external is the preferred embedding backend; may fail freely.
	external Embedder
	// fallback is the deterministic hash embedder used on external failure.
	fallback *HashEmbedder
	// log records fallback events.
	log *slog.Logger
}

// NewFallbackEmbedder wraps external with a hash fallback of matching
// dimensionality. external may be nil, in which case every call takes the
// hash path directly (local-only mode).
func NewFallbackEmbedder(external Embedder, log *slog.Logger) (*FallbackEmbedder, error) {
	dims := defaultHashDimensions
	if external != nil {
		dims = external.Dimensions()
	}
	fb := &FallbackEmbedder{
		external: external,
		fallback: NewHashEmbedder(dims),
		log:      log,
	}
	if external != nil {
		if err := ValidateDimensions(fb.fallback, external.Dimensions()); err != nil {
			return nil, err
		}
	}
	return fb, nil
}

// Dimensions returns the shared output vector length of both paths.
func (f *FallbackEmbedder) Dimensions() int { return f.fallback.Dimensions() }

// Embed tries the external backend first and falls back to the hash path on
// any error except ErrEmptyInput, which is a caller mistake on both paths.
func (f *FallbackEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	if f.external != nil {
		vec, err := f.external.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		if errors.Is(err, ErrEmptyInput) {
			return nil, err
		}
		f.log.Warn("embed: external backend failed, using hash fallback",
			slog.String("error", err.Error()),
		)
	}

	return f.fallback.Embed(ctx, text)
}
