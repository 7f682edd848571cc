/*
Package temporal provides the bitemporal versioning engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms for managing
  versioned records on two time axes. Whether the entity is an account, a
  journal transaction, a contact, or an organization, the same engine handles
  version creation, closing, soft deletion, restoration, and point-in-time
  reconstruction.

KEY CONCEPTS IN THIS FILE (types.go):
  - Meta: The bitemporal envelope every versioned entity embeds
  - LogicalID / VersionID: Stable identity vs. per-version storage key
  - Infinity: The sentinel "still current" boundary timestamp
  - Entity: The contract an entity type satisfies to be versionable

THE TWO TIME AXES:
  Valid time  (ValidFrom/ValidTo):   when the fact was true in the business
  System time (SystemFrom/SystemTo): when the system believed/recorded it

  A version with ValidTo = SystemTo = Infinity and IsDeleted = false is
  "the current version". For a given LogicalID there is at most one.

DESIGN PRINCIPLES:
  1. Immutability: A version's data fields are never mutated after insert.
     Only the temporal boundaries may be closed, exactly once.
  2. Half-open windows: A version is valid at t iff ValidFrom <= t < ValidTo.
  3. Type Safety: Strong typing for logical vs. version identifiers.
  4. Auditability: Every version records who changed it and when.

SEE ALSO:
  - store.go: Persistence contract (insert, close, current, history)
  - repository.go: Typed CRUD on top of the store
  - registry.go: Kind registration for storage codecs
*/
package temporal

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// LogicalID is the stable identity shared by all versions of the same record.
type LogicalID string

// VersionID identifies one specific version. It is the actual storage key.
type VersionID string

// NewLogicalID returns a fresh logical identity.
func NewLogicalID() LogicalID { return LogicalID(uuid.NewString()) }

// NewVersionID returns a fresh version identity.
func NewVersionID() VersionID { return VersionID(uuid.NewString()) }

// =============================================================================
// TIME BOUNDARIES
// =============================================================================

// Infinity is the sentinel boundary carried by open versions.
// ValidTo/SystemTo hold Infinity while the version is current.
var Infinity = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// IsInfinity reports whether t is the open-boundary sentinel.
func IsInfinity(t time.Time) bool { return t.Equal(Infinity) }

// =============================================================================
// META - The bitemporal envelope embedded by every versioned entity
// =============================================================================

// Meta carries the version lifecycle fields. Entity types embed it.
type Meta struct {
	VersionID VersionID
	LogicalID LogicalID

	// PreviousVersionID links a successor back to the version it supersedes.
	// Empty for a genesis version.
	PreviousVersionID VersionID

	// Valid time: when this version was the business truth.
	ValidFrom time.Time
	ValidTo   time.Time

	// System time: when the system stated this version as its belief.
	SystemFrom time.Time
	SystemTo   time.Time

	// Soft-delete markers. A deleted version stays queryable via history.
	IsDeleted bool
	DeletedAt *time.Time
	DeletedBy string

	// Actor attribution for the audit trail.
	ChangedBy string
}

// Envelope returns the version envelope. The accessor cannot be named Meta:
// an embedded field named Meta sits at depth 0 and would shadow the promoted
// method, so embedding types would not satisfy the Entity interface.
func (m *Meta) Envelope() *Meta { return m }

// IsCurrent reports whether this version is the open, non-deleted truth.
func (m *Meta) IsCurrent() bool {
	return IsInfinity(m.ValidTo) && IsInfinity(m.SystemTo) && !m.IsDeleted
}

// IsClosed reports whether the temporal boundaries have been closed.
func (m *Meta) IsClosed() bool {
	return !IsInfinity(m.SystemTo)
}

// ValidAt reports whether t falls inside the valid-time window.
// Half-open: ValidFrom <= t < ValidTo, so a version ending exactly at t is
// excluded and one starting exactly at t is included.
func (m *Meta) ValidAt(t time.Time) bool {
	return !t.Before(m.ValidFrom) && t.Before(m.ValidTo)
}

// RecordedAt reports whether t falls inside the system-time window,
// using the same half-open convention.
func (m *Meta) RecordedAt(t time.Time) bool {
	return !t.Before(m.SystemFrom) && t.Before(m.SystemTo)
}

// openAt stamps m as a fresh open version created at now by actor.
func (m *Meta) openAt(now time.Time, actor string) {
	m.VersionID = NewVersionID()
	m.ValidFrom = now
	m.ValidTo = Infinity
	m.SystemFrom = now
	m.SystemTo = Infinity
	m.IsDeleted = false
	m.DeletedAt = nil
	m.DeletedBy = ""
	m.ChangedBy = actor
}

// =============================================================================
// ENTITY - Contract for versionable types
// =============================================================================

// Entity is satisfied by any type that embeds Meta, names its kind, and can
// deep-copy itself. Kind strings key the storage tables and the codec
// registry; Clone is how the repository derives successor versions without
// touching the closed one.
type Entity interface {
	Envelope() *Meta
	Kind() string
	Clone() Entity
}

// =============================================================================
// CLOCK - Injectable time source
// =============================================================================

// Clock supplies "now" for version stamping. Tests substitute a fixed clock
// to make temporal boundaries deterministic.
type Clock func() time.Time

// UTCNow is the default Clock.
func UTCNow() time.Time { return time.Now().UTC() }
