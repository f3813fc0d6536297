// Package embed provides implementations of the text-embedding collaborator:
// external model backends (Ollama, OpenAI) spoken to via plain HTTP, a
// deterministic hash-based fallback that requires no trained model, and a
// wrapper that degrades from the external path to the fallback on any error.
package embed

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when the text to embed is blank or
// whitespace-only. It is rejected before any network call is attempted.
var ErrEmptyInput = errors.New("embed: input text is empty")

// Embedder converts a single text into a fixed-length dense vector.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts text into its embedding vector. The returned vector
	// always has the dimensionality reported by Dimensions.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the output vector length of this embedder.
	Dimensions() int
}

// ValidateDimensions checks that the embedder's output dimensionality
// matches the vector store's configured size. A mismatch is a configuration
// error surfaced at startup, never a runtime fallback condition.
func ValidateDimensions(e Embedder, storeDims int) error {
	if e.Dimensions() != storeDims {
		return fmt.Errorf("embed: embedder produces %d-dimensional vectors but the store is configured for %d", e.Dimensions(), storeDims)
	}
	return nil
}
