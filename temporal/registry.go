/*
registry.go - Entity kind registration and lookup

PURPOSE:
  Provides a registry for domain packages to register their entity kinds.
  Storage backends use it to reconstruct concrete types from persisted
  version rows while the temporal package stays domain-agnostic.

HOW IT WORKS:
  1. Domain packages define Entity implementations
  2. Domain packages register a factory on init()
  3. Storage codecs use the registry to allocate the right concrete type

USAGE:
  // In ledger/types.go
  func init() {
      temporal.RegisterKind(KindAccount, func() temporal.Entity { return &Account{} })
  }

  // In a storage codec
  e, err := temporal.NewOfKind("account")

SEE ALSO:
  - types.go: Entity interface definition
  - store/sqlite: Uses the registry to decode version rows
*/
package temporal

import (
	"fmt"
	"sync"
)

// Factory allocates an empty entity of a registered kind.
type Factory func() Entity

var (
	kindRegistry = make(map[string]Factory)
	registryMu   sync.RWMutex
)

// RegisterKind adds an entity kind to the global registry.
// Call this from domain package init() functions.
func RegisterKind(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	kindRegistry[kind] = f
}

// NewOfKind allocates an empty entity of the given kind.
// Returns ErrKindNotRegistered if no factory was registered.
func NewOfKind(kind string) (Entity, error) {
	registryMu.RLock()
	f := kindRegistry[kind]
	registryMu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrKindNotRegistered, kind)
	}
	return f(), nil
}

// RegisteredKinds returns all registered kind names.
func RegisteredKinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(kindRegistry))
	for k := range kindRegistry {
		kinds = append(kinds, k)
	}
	return kinds
}
