/*
store.go - Persistence interface for version rows

PURPOSE:
  Defines the interface between the versioning engine and the database.
  The Store persists immutable version rows. Different implementations can
  use SQLite, PostgreSQL, or in-memory storage.

APPEND-ONLY CONTRACT:
  Versions are immutable once inserted. The ONLY permitted mutations are:
  - CloseVersion(): set ValidTo/SystemTo from Infinity to a real timestamp
  - CloseDeleted(): same, plus the soft-delete markers
  Both are compare-and-swap guarded on SystemTo still being Infinity, so a
  concurrent writer's close observes zero affected rows and fails.

WHY COMPARE-AND-SWAP:
  Mutation in this model is always "read current, compute, close current and
  create next" - never "update current in place". The second of two racing
  writers finds the version already closed, gets ConcurrentModificationError,
  and its whole unit of work aborts. That is the sole concurrency-control
  primitive; no pessimistic locks are held anywhere.

ATOMIC UNITS OF WORK:
  TxStore.WithTx ensures all-or-nothing semantics. A transaction edit closes
  and creates several versions across two entity kinds; either every one of
  those writes commits, or none do.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite backend
  - temporal/store: In-memory arena for testing/dev

SEE ALSO:
  - repository.go: Typed entity operations built on this interface
  - errors.go: ConcurrentModificationError, NotFoundError
*/
package temporal

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Version-row persistence
// =============================================================================

// Store persists immutable version rows.
type Store interface {
	// Insert appends a new version row. The row's data fields are immutable
	// from this point on.
	Insert(ctx context.Context, e Entity) error

	// Version returns one specific version by its storage key.
	Version(ctx context.Context, kind string, versionID VersionID) (Entity, error)

	// Current returns the unique open, non-deleted version for the logical
	// id, or NotFoundError.
	Current(ctx context.Context, kind string, logicalID LogicalID) (Entity, error)

	// AllCurrent returns the current version of every logical id of a kind.
	AllCurrent(ctx context.Context, kind string) ([]Entity, error)

	// LogicalIDs returns the distinct logical ids of a kind, including ids
	// whose chain is currently closed (soft-deleted records).
	LogicalIDs(ctx context.Context, kind string) ([]LogicalID, error)

	// History returns every version for the logical id, most recent first
	// (descending SystemFrom, ties broken by descending ValidFrom).
	History(ctx context.Context, kind string, logicalID LogicalID) ([]Entity, error)

	// CloseVersion sets ValidTo = SystemTo = now on the identified version,
	// guarded by SystemTo still being Infinity. If the guard fails (the
	// version was already closed, or does not exist) it returns
	// ConcurrentModificationError.
	CloseVersion(ctx context.Context, kind string, versionID VersionID, now time.Time) error

	// CloseDeleted closes the version exactly as CloseVersion does and additionally
	// stamps IsDeleted/DeletedAt/DeletedBy on the closed row. This is the
	// one sanctioned mutation beyond boundary closing: soft deletion marks
	// the closed version rather than creating a successor.
	CloseDeleted(ctx context.Context, kind string, versionID VersionID, now time.Time, actor string) error
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic multi-write units of work
// =============================================================================

// TxStore wraps Store with unit-of-work support.
//
// Every multi-step mutation (balance change, transaction edit/void) must run
// inside WithTx so that a ConcurrentModificationError on any close aborts the
// entire operation with no partial effect. The caller's only valid response
// to such an abort is to re-read the current version and retry the whole
// operation.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view of the store.
	// If fn returns an error, every write made through the view is rolled
	// back; if fn returns nil, all of them commit together.
	WithTx(ctx context.Context, fn func(Store) error) error
}
