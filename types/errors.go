package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the terminal failures the relatedness core can surface.
// Every error crossing the public API boundary carries exactly one kind.
type ErrorKind string

const (
	// ErrKindNotFound means the seed work item does not exist in the tracker.
	ErrKindNotFound ErrorKind = "not_found"
	// ErrKindTrackerUnavailable means connectivity or auth failed before any slice returned.
	ErrKindTrackerUnavailable ErrorKind = "tracker_unavailable"
	// ErrKindEmbeddingUnavailable means all embedding batches failed and the hash fallback is disabled.
	ErrKindEmbeddingUnavailable ErrorKind = "embedding_unavailable"
	// ErrKindIndexCorrupt means the persisted index files failed integrity checks.
	// Recoverable by clearing the index.
	ErrKindIndexCorrupt ErrorKind = "index_corrupt"
	// ErrKindTimeout means the request deadline expired before any ranked item was produced.
	ErrKindTimeout ErrorKind = "timeout"
	// ErrKindInternal means an invariant was violated (e.g. vector dimension mismatch).
	ErrKindInternal ErrorKind = "internal"
)

// CoreError is the error type returned across the relatedness core's public surface.
// Subcomponent failures that the pipeline absorbs are reported through diagnostics
// instead; a CoreError always terminates the request.
type CoreError struct {
	Kind    ErrorKind      `json:"kind"`
	Op      string         `json:"op"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// NewCoreError creates a CoreError wrapping an underlying cause.
func NewCoreError(kind ErrorKind, op string, err error) *CoreError {
	return &CoreError{Kind: kind, Op: op, Err: err}
}

// CoreErrorf creates a CoreError with a formatted message and no wrapped cause.
func CoreErrorf(kind ErrorKind, op string, format string, args ...any) *CoreError {
	return &CoreError{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a key/value pair for diagnostics and returns the error.
func (e *CoreError) WithDetail(key string, value any) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// KindOf extracts the ErrorKind from err, walking the wrap chain.
// Returns ErrKindInternal for non-core errors and "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrKindInternal
}

// IsKind reports whether err (or anything it wraps) is a CoreError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// MCPError provides structured error information for MCP responses
type MCPError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewMCPError creates a new structured MCP error
func NewMCPError(code string, message string, details map[string]interface{}) *MCPError {
	return &MCPError{
		Code:    code,
		Message: message,
		Details: details,
	}
}
