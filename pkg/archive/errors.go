package archive

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared by the engine's components.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateID       = errors.New("duplicate archive id")
	ErrEmptyRecordSet    = errors.New("empty record set")
	ErrSerialization     = errors.New("serialization failed")
	ErrEncryption        = errors.New("encryption failed")
	ErrDecryption        = errors.New("decryption failed")
	ErrCorruptPayload    = errors.New("corrupt payload")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrDuplicateInFlight = errors.New("duplicate job in flight")
	ErrForbidden         = errors.New("forbidden")
	ErrJobTimeout        = errors.New("job timed out")
	ErrPrecondition      = errors.New("precondition failed")
	ErrBlobNotFound      = errors.New("payload not found")
	ErrBlobExists        = errors.New("payload already exists")
)

// Kind classifies an error for callers.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindIntegrity
	KindUnreadable
)

// String returns the kind name used in job records and audit details.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindIntegrity:
		return "integrity_failure"
	case KindUnreadable:
		return "unrecoverable_storage"
	default:
		return "internal"
	}
}

// Error is the engine's tagged error.
type Error struct {
	Kind Kind   // Error classification
	Op   string // Operation that failed ("archive.retrieve", "jobs.submit", etc.)
	ID   string // Archive or job id, when known
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s [id=%s]: %s: %v", e.Op, e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error.
func NewError(kind Kind, op, id string, err error) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		ID:   id,
		Err:  err,
	}
}

// Validationf creates a validation error with a formatted message.
func Validationf(op, format string, args ...any) *Error {
	return NewError(KindValidation, op, "", fmt.Errorf(format, args...))
}

// KindOf returns the Kind of err. Tagged errors keep their kind; otherwise
// the kind is derived from the sentinel in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrDuplicateID), errors.Is(err, ErrDuplicateInFlight),
		errors.Is(err, ErrPrecondition), errors.Is(err, ErrBlobExists):
		return KindConflict
	case errors.Is(err, ErrEmptyRecordSet), errors.Is(err, ErrSerialization):
		return KindValidation
	case errors.Is(err, ErrChecksumMismatch):
		return KindIntegrity
	case errors.Is(err, ErrDecryption), errors.Is(err, ErrCorruptPayload), errors.Is(err, ErrBlobNotFound):
		return KindUnreadable
	default:
		return KindInternal
	}
}

// IsKind reports whether err is of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Outcome is the coarse result class of an operation.
type Outcome string

const (
	// OutcomeOK means the operation ran and found nothing wrong.
	OutcomeOK Outcome = "ok"

	// OutcomeRejected means the operation did not run (validation,
	// permission, unknown id, conflict).
	OutcomeRejected Outcome = "rejected"

	// OutcomeProblem means the operation ran and found a problem
	// (integrity failure, unreadable payload, blocked deletion).
	OutcomeProblem Outcome = "problem"

	// OutcomeFailed means the operation ran and failed unexpectedly.
	OutcomeFailed Outcome = "failed"
)

// Classify maps an operation error to its Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeFailed
	}
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindForbidden, KindConflict:
		return OutcomeRejected
	case KindIntegrity, KindUnreadable:
		return OutcomeProblem
	default:
		return OutcomeFailed
	}
}

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory", "filesystem")
	Operation string // Operation that failed ("create", "list", "delete", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// QueryError represents an invalid list query.
type QueryError struct {
	Query *ListQuery
	Cause error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(query *ListQuery, cause error) *QueryError {
	return &QueryError{
		Query: query,
		Cause: cause,
	}
}

// RetentionError represents an error during retention enforcement.
type RetentionError struct {
	EntityType string // Scope of the sweep, empty for all
	Cause      error
}

// Error implements the error interface.
func (e *RetentionError) Error() string {
	if e.EntityType == "" {
		return fmt.Sprintf("retention error: %v", e.Cause)
	}
	return fmt.Sprintf("retention error [entity_type=%s]: %v", e.EntityType, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RetentionError) Unwrap() error {
	return e.Cause
}

// NewRetentionError creates a new RetentionError.
func NewRetentionError(entityType string, cause error) *RetentionError {
	return &RetentionError{
		EntityType: entityType,
		Cause:      cause,
	}
}

// ExportError represents an error during metadata export.
type ExportError struct {
	Format      string // Export format ("json", "csv")
	RecordCount int    // Number of records being exported
	Cause       error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, record_count=%d]: %v", e.Format, e.RecordCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{
		Format:      format,
		RecordCount: recordCount,
		Cause:       cause,
	}
}
