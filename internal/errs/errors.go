// Package errs defines the structured error taxonomy used across the
// indexing engine. Every error that crosses a component boundary is wrapped
// in an *IndexError tagged with one of the Kind values below, so callers can
// branch on failure category with errors.As instead of string matching.
package errs

import "fmt"

// Kind classifies an IndexError into one of the documented failure modes.
type Kind string

const (
	// KindValidation means a caller-supplied argument violated a stated contract.
	KindValidation Kind = "validation"
	// KindConfig means a configuration file was malformed beyond salvage.
	KindConfig Kind = "config"
	// KindNotIndexed means a search was attempted against an empty index.
	KindNotIndexed Kind = "not_indexed"
	// KindBackendUnreachable means an embedding backend's reachability probe failed.
	KindBackendUnreachable Kind = "backend_unreachable"
	// KindBackendAuth means an embedding backend rejected credentials.
	KindBackendAuth Kind = "backend_auth"
	// KindModelNotFound means the configured model is not available on the backend.
	KindModelNotFound Kind = "model_not_found"
	// KindEmbeddingFailed means a specific batch permanently failed after retries.
	KindEmbeddingFailed Kind = "embedding_failed"
	// KindStore means a vector store or metadata store operation failed (I/O, schema).
	KindStore Kind = "store"
	// KindChunkerParseFailed means AST parsing of a file failed. Internally recovered
	// by falling back to the line strategy; surfaced here only for logging/debugging,
	// never returned to a caller of the chunker.
	KindChunkerParseFailed Kind = "chunker_parse_failed"
	// KindCheckpointIncompatible means a checkpoint's backend/model differs from the
	// live configuration. Internally recovered by discarding the checkpoint.
	KindCheckpointIncompatible Kind = "checkpoint_incompatible"
	// KindInternal means an unexpected failure with no more specific classification.
	KindInternal Kind = "internal"
)

// IndexError is the structured error type returned by this module's
// components. It carries a Kind for programmatic branching, a human message,
// an optional Detail map for structured logging, and an optional Cause for
// errors.Is/errors.As chaining.
type IndexError struct {
	Kind    Kind
	Message string
	Detail  map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, enabling errors.Is/errors.As.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *IndexError with the same Kind, enabling
// errors.Is(err, &IndexError{Kind: KindNotIndexed}) style checks.
func (e *IndexError) Is(target error) bool {
	t, ok := target.(*IndexError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key-value pair to the error's Detail map and returns
// the error for chaining.
func (e *IndexError) WithDetail(key string, value any) *IndexError {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// New constructs an IndexError of the given kind.
func New(kind Kind, message string, cause error) *IndexError {
	return &IndexError{Kind: kind, Message: message, Cause: cause}
}

// Validation builds a KindValidation error.
func Validation(message string, cause error) *IndexError {
	return New(KindValidation, message, cause)
}

// Config builds a KindConfig error.
func Config(message string, cause error) *IndexError {
	return New(KindConfig, message, cause)
}

// NotIndexed builds a KindNotIndexed error.
func NotIndexed(message string) *IndexError {
	return New(KindNotIndexed, message, nil)
}

// BackendUnreachable builds a KindBackendUnreachable error.
func BackendUnreachable(message string, cause error) *IndexError {
	return New(KindBackendUnreachable, message, cause)
}

// BackendAuth builds a KindBackendAuth error.
func BackendAuth(message string, cause error) *IndexError {
	return New(KindBackendAuth, message, cause)
}

// ModelNotFound builds a KindModelNotFound error.
func ModelNotFound(message string) *IndexError {
	return New(KindModelNotFound, message, nil)
}

// EmbeddingFailed builds a KindEmbeddingFailed error.
func EmbeddingFailed(message string, cause error) *IndexError {
	return New(KindEmbeddingFailed, message, cause)
}

// Store builds a KindStore error.
func Store(message string, cause error) *IndexError {
	return New(KindStore, message, cause)
}

// ChunkerParseFailed builds a KindChunkerParseFailed error. Callers that
// recover from this internally (falling back to the line strategy) should
// log it rather than propagate it.
func ChunkerParseFailed(message string, cause error) *IndexError {
	return New(KindChunkerParseFailed, message, cause)
}

// CheckpointIncompatible builds a KindCheckpointIncompatible error.
func CheckpointIncompatible(message string) *IndexError {
	return New(KindCheckpointIncompatible, message, nil)
}

// Internal builds a KindInternal error.
func Internal(message string, cause error) *IndexError {
	return New(KindInternal, message, cause)
}

// Is reports whether err is an *IndexError of the given kind.
func Is(err error, kind Kind) bool {
	var ie *IndexError
	if ae, ok := err.(*IndexError); ok {
		ie = ae
	} else {
		return false
	}
	return ie.Kind == kind
}

// KindOf extracts the Kind from err, returning "" if err is not an *IndexError.
func KindOf(err error) Kind {
	if ae, ok := err.(*IndexError); ok {
		return ae.Kind
	}
	return ""
}
