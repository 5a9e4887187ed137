package iterata

import (
	"errors"
	"fmt"
)

// Common errors returned by the iterata loop and stores.
var (
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrStorageInit is returned when a base path cannot be initialized.
	// Wrapped by *StorageError with path context.
	ErrStorageInit = errors.New("storage initialization failed")

	// ErrNoExplainer is returned when an explanation is requested but no
	// explainer collaborator is configured.
	ErrNoExplainer = errors.New("no explainer configured and no explanation provided")

	// ErrNoSkillPath is returned when skill generation is requested without
	// a configured skill path.
	ErrNoSkillPath = errors.New("no skill path configured")
)

// StorageError wraps a disk or permission failure with the operation and path
// that caused it. Storage errors are fatal and never retried internally.
// Extractable via errors.As(); supports Unwrap().
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// MalformedRecordError indicates a record failed header validation, typically
// after hand-editing. Bulk loads skip-and-report malformed records rather
// than aborting.
type MalformedRecordError struct {
	Path   string
	Key    string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("malformed record %s: key %q: %s", e.Path, e.Key, e.Reason)
	}
	return fmt.Sprintf("malformed record %s: %s", e.Path, e.Reason)
}

// NotFoundError is returned when no pending correction matches the given ID.
type NotFoundError struct {
	CorrectionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("correction %s not found", e.CorrectionID)
}

// AlreadyExplainedError is returned when attaching an explanation to a
// correction that already carries one. The transition is never overwritten
// silently.
type AlreadyExplainedError struct {
	CorrectionID string
}

func (e *AlreadyExplainedError) Error() string {
	return fmt.Sprintf("correction %s is already explained", e.CorrectionID)
}

// ExplanationError is returned when the explainer collaborator fails.
// The coordinator surfaces it without retry; retry policy belongs to the
// caller. Supports Unwrap().
type ExplanationError struct {
	CorrectionID string
	Err          error
}

func (e *ExplanationError) Error() string {
	return fmt.Sprintf("explain correction %s: %v", e.CorrectionID, e.Err)
}

func (e *ExplanationError) Unwrap() error { return e.Err }

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}
