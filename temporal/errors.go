/*
errors.go - Centralized error types for the versioning engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Lookup errors - No current version for a logical id
  2. Concurrency errors - Compare-and-swap lost a race
  3. Operation errors - The requested lifecycle step is not permitted
  4. Integrity errors - Verification detected drift beyond tolerance

USAGE:
  Callers branch with errors.Is / errors.As:

    if errors.Is(err, temporal.ErrConcurrentModification) {
        // re-read the current version, then retry the whole operation
    }

SEE ALSO:
  - store.go: CloseVersion() raises ConcurrentModificationError
  - repository.go: Lookup paths raise ErrNotFound
*/
package temporal

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when no current version exists for a logical id.
	ErrNotFound = errors.New("no current version found")

	// ErrConcurrentModification is returned when the optimistic close detects
	// that another writer already closed the version. Always safe to retry
	// the whole operation after a fresh read.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidOperation is returned when a lifecycle step is not permitted,
	// e.g. editing a voided transaction or posting to an inactive account.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrIntegrityViolation is returned when verification detects drift
	// beyond tolerance. Diagnostic only: verification never mutates state.
	ErrIntegrityViolation = errors.New("integrity violation detected")

	// ErrKindNotRegistered is returned when the storage codec has no factory
	// for an entity kind.
	ErrKindNotRegistered = errors.New("entity kind not registered")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConcurrentModificationError reports which version lost the race.
type ConcurrentModificationError struct {
	Kind      string
	VersionID VersionID
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("concurrent modification on %s version %s: already closed by another writer", e.Kind, e.VersionID)
}

func (e *ConcurrentModificationError) Unwrap() error {
	return ErrConcurrentModification
}

// NotFoundError reports which logical id had no current version.
type NotFoundError struct {
	Kind      string
	LogicalID LogicalID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.LogicalID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InvalidOperationError reports why a lifecycle step was rejected.
type InvalidOperationError struct {
	Kind   string
	Reason string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid operation on %s: %s", e.Kind, e.Reason)
}

func (e *InvalidOperationError) Unwrap() error {
	return ErrInvalidOperation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on whole-operation
// retry after re-reading the now-current version.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing current version.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
