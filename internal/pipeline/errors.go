package pipeline

import (
	"errors"
	"fmt"
)

// ErrEmptyInput rejects a blank query before any I/O happens.
var ErrEmptyInput = errors.New("pipeline: query is empty")

// ErrQueryTooLong rejects a query above the configured length cap before
// any I/O happens.
var ErrQueryTooLong = errors.New("pipeline: query exceeds maximum length")

// ConfigError reports a wiring problem detected at construction time, such
// as a missing collaborator or an embedder/store dimensionality mismatch.
type ConfigError struct {
	// Reason describes what is misconfigured.
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pipeline: configuration: %s", e.Reason)
}

// CollaboratorError wraps a failure of a named external collaborator.
// Only the answer generator's failures surface to callers this way; every
// other collaborator failure is recovered through a degradation path.
type CollaboratorError struct {
	// Collaborator names the failing dependency (e.g. "generator").
	Collaborator string
	// Err is the underlying cause.
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("pipeline: %s failed: %v", e.Collaborator, e.Err)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *CollaboratorError) Unwrap() error { return e.Err }
