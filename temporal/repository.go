/*
repository.go - Typed bitemporal CRUD over the Store

PURPOSE:
  Repository[T] gives each entity kind the full version lifecycle:
  create (genesis), update (close + supersede), soft delete, restore,
  plus the temporal read paths (current, as-of, bitemporal as-of, history).

VERSION LIFECYCLE:
  genesis:    Create() stamps ValidFrom=SystemFrom=now, boundaries open.
  supersede:  Update() closes the current version (compare-and-swap), clones
              it, applies the mutation, links PreviousVersionID, inserts.
  soft delete: SoftDelete() closes the current version and marks it deleted.
              No successor is created.
  restore:    Restore() copies the most recently deleted version into a new
              open version with deletion markers cleared.

AS-OF SEMANTICS:
  Half-open intervals throughout: a version matches date t iff
  ValidFrom <= t < ValidTo. A version ending exactly at t is excluded; one
  starting exactly at t is included.

ATOMICITY:
  The repository is a thin layer: it issues reads and writes against whatever
  Store it was built over. Callers composing multi-entity operations build
  repositories over the transactional view inside TxStore.WithTx.

SEE ALSO:
  - store.go: The persistence contract
  - types.go: Meta and the Entity interface
*/
package temporal

import (
	"context"
	"time"
)

// =============================================================================
// REPOSITORY - Generic over a concrete entity pointer type
// =============================================================================

// Repository provides the bitemporal CRUD operations for one entity kind.
// T is the concrete pointer type, e.g. *ledger.Account.
type Repository[T Entity] struct {
	store Store
	kind  string
	now   Clock
}

// NewRepository builds a repository over the given store for one entity kind.
func NewRepository[T Entity](store Store, kind string) *Repository[T] {
	return &Repository[T]{store: store, kind: kind, now: UTCNow}
}

// WithClock returns a copy of the repository using the given time source.
// Intended for tests that need deterministic temporal boundaries.
func (r *Repository[T]) WithClock(clock Clock) *Repository[T] {
	return &Repository[T]{store: r.store, kind: r.kind, now: clock}
}

// =============================================================================
// READS
// =============================================================================

// FindCurrent returns the unique current version or NotFoundError.
func (r *Repository[T]) FindCurrent(ctx context.Context, id LogicalID) (T, error) {
	var zero T
	e, err := r.store.Current(ctx, r.kind, id)
	if err != nil {
		return zero, err
	}
	return e.(T), nil
}

// FindAllCurrent returns every current version matching the filter.
// A nil filter matches everything.
func (r *Repository[T]) FindAllCurrent(ctx context.Context, filter func(T) bool) ([]T, error) {
	es, err := r.store.AllCurrent(ctx, r.kind)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(es))
	for _, e := range es {
		t := e.(T)
		if filter == nil || filter(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// FindAsOf returns the version whose valid-time window contains at.
// This is the business-time query: "what was true at that date", using the
// system's latest recorded belief about it.
func (r *Repository[T]) FindAsOf(ctx context.Context, id LogicalID, at time.Time) (T, error) {
	var zero T
	versions, err := r.store.History(ctx, r.kind, id)
	if err != nil {
		return zero, err
	}
	// History is most recent first; the first valid-time match is the
	// latest recorded belief about that moment.
	for _, e := range versions {
		if e.Envelope().ValidAt(at) {
			return e.(T), nil
		}
	}
	return zero, &NotFoundError{Kind: r.kind, LogicalID: id}
}

// FindBitemporalAsOf answers the audit question: "what did the system
// believe, as recorded by at, was true as of at". Both the valid-time and
// the system-time window must contain at. Returns all matches across logical
// ids, optionally filtered.
func (r *Repository[T]) FindBitemporalAsOf(ctx context.Context, at time.Time, filter func(T) bool) ([]T, error) {
	var out []T
	// Walk every logical id's history once, newest first, taking the first
	// bitemporal match per id.
	ids, err := r.logicalIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		versions, err := r.store.History(ctx, r.kind, id)
		if err != nil {
			return nil, err
		}
		for _, e := range versions {
			m := e.Envelope()
			if m.ValidAt(at) && m.RecordedAt(at) {
				t := e.(T)
				if filter == nil || filter(t) {
					out = append(out, t)
				}
				break
			}
		}
	}
	return out, nil
}

// FindHistory returns all versions for the logical id, most recent first.
func (r *Repository[T]) FindHistory(ctx context.Context, id LogicalID) ([]T, error) {
	es, err := r.store.History(ctx, r.kind, id)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(es))
	for _, e := range es {
		out = append(out, e.(T))
	}
	return out, nil
}

// logicalIDs collects the distinct logical ids of the kind, including those
// whose chain is currently closed (soft-deleted records).
func (r *Repository[T]) logicalIDs(ctx context.Context) ([]LogicalID, error) {
	return r.store.LogicalIDs(ctx, r.kind)
}

// =============================================================================
// WRITES
// =============================================================================

// Create inserts the genesis version of a new logical record.
// The entity's data fields must be populated by the caller; the repository
// stamps the temporal envelope. If the entity carries no LogicalID one is
// generated; a preset id is rejected while it still has a current version,
// so a chain can never hold two open versions.
func (r *Repository[T]) Create(ctx context.Context, e T, actor string) (T, error) {
	var zero T
	m := e.Envelope()
	if m.LogicalID == "" {
		m.LogicalID = NewLogicalID()
	} else {
		_, err := r.FindCurrent(ctx, m.LogicalID)
		if err == nil {
			return zero, &InvalidOperationError{Kind: r.kind, Reason: "record already exists: " + string(m.LogicalID)}
		}
		if !IsNotFound(err) {
			return zero, err
		}
	}
	m.PreviousVersionID = ""
	m.openAt(r.now(), actor)
	if err := r.store.Insert(ctx, e); err != nil {
		return zero, err
	}
	return e, nil
}

// Update closes the current version and inserts a successor derived from it.
// mutate receives the successor clone and applies the field changes; the
// closed version itself is never touched. A lost close race surfaces as
// ConcurrentModificationError and nothing is inserted.
func (r *Repository[T]) Update(ctx context.Context, id LogicalID, actor string, mutate func(T)) (T, error) {
	var zero T
	current, err := r.FindCurrent(ctx, id)
	if err != nil {
		return zero, err
	}
	return r.Supersede(ctx, current, actor, mutate)
}

// Supersede is Update starting from an already-read current version. Callers
// inside a unit of work that have the current version in hand use this to
// avoid a second read.
func (r *Repository[T]) Supersede(ctx context.Context, current T, actor string, mutate func(T)) (T, error) {
	var zero T
	now := r.now()
	cm := current.Envelope()
	if err := r.store.CloseVersion(ctx, r.kind, cm.VersionID, now); err != nil {
		return zero, err
	}
	next := current.Clone().(T)
	nm := next.Envelope()
	nm.openAt(now, actor)
	nm.LogicalID = cm.LogicalID
	nm.PreviousVersionID = cm.VersionID
	if mutate != nil {
		mutate(next)
	}
	if err := r.store.Insert(ctx, next); err != nil {
		return zero, err
	}
	return next, nil
}

// SoftDelete closes the current version and marks it deleted.
// No successor is created; the record simply stops having a current version.
func (r *Repository[T]) SoftDelete(ctx context.Context, id LogicalID, actor string) error {
	current, err := r.FindCurrent(ctx, id)
	if err != nil {
		return err
	}
	return r.store.CloseDeleted(ctx, r.kind, current.Envelope().VersionID, r.now(), actor)
}

// Restore locates the most recently deleted version of the logical id and
// reopens the record: a new current version copying its fields with the
// deletion markers cleared.
func (r *Repository[T]) Restore(ctx context.Context, id LogicalID, actor string) (T, error) {
	var zero T
	versions, err := r.store.History(ctx, r.kind, id)
	if err != nil {
		return zero, err
	}
	var deleted T
	found := false
	for _, e := range versions { // most recent first
		if e.Envelope().IsDeleted {
			deleted = e.(T)
			found = true
			break
		}
	}
	if !found {
		return zero, &NotFoundError{Kind: r.kind, LogicalID: id}
	}
	// A record with a current version cannot also be restored; the chain
	// must be closed at the point of the deletion.
	if _, err := r.FindCurrent(ctx, id); err == nil {
		return zero, &InvalidOperationError{Kind: r.kind, Reason: "record is not deleted"}
	}

	next := deleted.Clone().(T)
	nm := next.Envelope()
	nm.openAt(r.now(), actor)
	nm.LogicalID = id
	nm.PreviousVersionID = deleted.Envelope().VersionID
	return next, r.store.Insert(ctx, next)
}
