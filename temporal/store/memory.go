// Package store provides Store implementations for the versioning engine.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clearbooks/ledger-engine/temporal"
)

// =============================================================================
// MEMORY STORE - In-memory arena (for testing/dev)
// =============================================================================

// Memory keeps every version in an arena keyed by (kind, versionID), with a
// secondary index from logical id to its version chain. Close is an atomic
// compare-and-swap under the mutex, which is exactly the "zero rows affected"
// contract the SQL backends implement with a conditional UPDATE.
type Memory struct {
	mu       sync.RWMutex
	versions map[arenaKey]temporal.Entity
	chains   map[chainKey][]temporal.VersionID // insertion order: oldest first
}

type arenaKey struct {
	Kind      string
	VersionID temporal.VersionID
}

type chainKey struct {
	Kind      string
	LogicalID temporal.LogicalID
}

func NewMemory() *Memory {
	return &Memory{
		versions: make(map[arenaKey]temporal.Entity),
		chains:   make(map[chainKey][]temporal.VersionID),
	}
}

// Insert appends a version row. The stored entity is a clone, so the caller
// cannot mutate arena state through a retained pointer.
func (m *Memory) Insert(_ context.Context, e temporal.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(e)
}

func (m *Memory) insertLocked(e temporal.Entity) error {
	meta := e.Envelope()
	ak := arenaKey{Kind: e.Kind(), VersionID: meta.VersionID}
	ck := chainKey{Kind: e.Kind(), LogicalID: meta.LogicalID}
	m.versions[ak] = e.Clone()
	m.chains[ck] = append(m.chains[ck], meta.VersionID)
	return nil
}

func (m *Memory) Version(_ context.Context, kind string, versionID temporal.VersionID) (temporal.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.versions[arenaKey{Kind: kind, VersionID: versionID}]
	if !ok {
		return nil, &temporal.NotFoundError{Kind: kind}
	}
	return e.Clone(), nil
}

func (m *Memory) Current(_ context.Context, kind string, logicalID temporal.LogicalID) (temporal.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentLocked(kind, logicalID)
}

func (m *Memory) currentLocked(kind string, logicalID temporal.LogicalID) (temporal.Entity, error) {
	ck := chainKey{Kind: kind, LogicalID: logicalID}
	for _, vid := range m.chains[ck] {
		e := m.versions[arenaKey{Kind: kind, VersionID: vid}]
		if e != nil && e.Envelope().IsCurrent() {
			return e.Clone(), nil
		}
	}
	return nil, &temporal.NotFoundError{Kind: kind, LogicalID: logicalID}
}

func (m *Memory) AllCurrent(_ context.Context, kind string) ([]temporal.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []temporal.Entity
	for ck := range m.chains {
		if ck.Kind != kind {
			continue
		}
		if e, err := m.currentLocked(kind, ck.LogicalID); err == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) LogicalIDs(_ context.Context, kind string) ([]temporal.LogicalID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []temporal.LogicalID
	for ck := range m.chains {
		if ck.Kind == kind {
			ids = append(ids, ck.LogicalID)
		}
	}
	return ids, nil
}

func (m *Memory) History(_ context.Context, kind string, logicalID temporal.LogicalID) ([]temporal.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ck := chainKey{Kind: kind, LogicalID: logicalID}
	chain := m.chains[ck]
	out := make([]temporal.Entity, 0, len(chain))
	// Walk the chain newest insertion first, then stable-sort on SystemFrom
	// descending so equal timestamps keep reverse insertion order.
	for i := len(chain) - 1; i >= 0; i-- {
		if e := m.versions[arenaKey{Kind: kind, VersionID: chain[i]}]; e != nil {
			out = append(out, e.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Envelope().SystemFrom.After(out[j].Envelope().SystemFrom)
	})
	return out, nil
}

// CloseVersion performs the compare-and-swap: boundaries move from Infinity
// to now only if SystemTo is still Infinity. Anything else is a lost race.
func (m *Memory) CloseVersion(_ context.Context, kind string, versionID temporal.VersionID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked(kind, versionID, now, false, "")
}

func (m *Memory) CloseDeleted(_ context.Context, kind string, versionID temporal.VersionID, now time.Time, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked(kind, versionID, now, true, actor)
}

func (m *Memory) closeLocked(kind string, versionID temporal.VersionID, now time.Time, markDeleted bool, actor string) error {
	e, ok := m.versions[arenaKey{Kind: kind, VersionID: versionID}]
	if !ok || e.Envelope().IsClosed() {
		return &temporal.ConcurrentModificationError{Kind: kind, VersionID: versionID}
	}
	meta := e.Envelope()
	meta.ValidTo = now
	meta.SystemTo = now
	if markDeleted {
		meta.IsDeleted = true
		deletedAt := now
		meta.DeletedAt = &deletedAt
		meta.DeletedBy = actor
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with unit-of-work support. Every root-store
// operation takes the same lock WithTx holds, so readers outside a unit of
// work never observe its uncommitted writes, matching the isolation the SQL
// backend gets from real transactions.
type TxMemory struct {
	inner *Memory
	txMu  sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{inner: NewMemory()}
}

// WithTx executes fn against the store, restoring a snapshot on error.
// Units of work are serialized; within one, reads see the work's own writes.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(temporal.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(tm.inner); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

// Root-store operations gate on the unit-of-work lock.

func (tm *TxMemory) Insert(ctx context.Context, e temporal.Entity) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()
	return tm.inner.Insert(ctx, e)
}

func (tm *TxMemory) Version(ctx context.Context, kind string, versionID temporal.VersionID) (temporal.Entity, error) {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()
	return tm.inner.Version(ctx, kind, versionID)
}

func (tm *TxMemory) Current(ctx context.Context, kind string, logicalID temporal.LogicalID) (temporal.Entity, error) {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()
	return tm.inner.Current(ctx, kind, logicalID)
}

func (tm *TxMemory) AllCurrent(ctx context.Context, kind string) ([]temporal.Entity, error) {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()
	return tm.inner.AllCurrent(ctx, kind)
}

func (tm *TxMemory) LogicalIDs(ctx context.Context, kind string) ([]temporal.LogicalID, error) {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()
	return tm.inner.LogicalIDs(ctx, kind)
}

func (tm *TxMemory) History(ctx context.Context, kind string, logicalID temporal.LogicalID) ([]temporal.Entity, error) {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()
	return tm.inner.History(ctx, kind, logicalID)
}

func (tm *TxMemory) CloseVersion(ctx context.Context, kind string, versionID temporal.VersionID, now time.Time) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()
	return tm.inner.CloseVersion(ctx, kind, versionID, now)
}

func (tm *TxMemory) CloseDeleted(ctx context.Context, kind string, versionID temporal.VersionID, now time.Time, actor string) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()
	return tm.inner.CloseDeleted(ctx, kind, versionID, now, actor)
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.inner.mu.RLock()
	defer tm.inner.mu.RUnlock()

	versions := make(map[arenaKey]temporal.Entity, len(tm.inner.versions))
	for k, v := range tm.inner.versions {
		versions[k] = v.Clone()
	}
	chains := make(map[chainKey][]temporal.VersionID, len(tm.inner.chains))
	for k, v := range tm.inner.chains {
		chains[k] = append([]temporal.VersionID{}, v...)
	}
	return memorySnapshot{versions: versions, chains: chains}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.inner.mu.Lock()
	defer tm.inner.mu.Unlock()
	tm.inner.versions = s.versions
	tm.inner.chains = s.chains
}

type memorySnapshot struct {
	versions map[arenaKey]temporal.Entity
	chains   map[chainKey][]temporal.VersionID
}
