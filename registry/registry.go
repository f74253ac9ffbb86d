// SPDX-License-Identifier: GPL-3.0-or-later

// Package registry implements the process-wide instance registry: the
// id→kernel table the protocol engine consults to resolve principals on
// arrival (spec.md §4.C).
package registry

import (
	"errors"
	"sync"

	"github.com/igankevich/factory/kernel"
)

// ErrDuplicateID is returned by Insert when id is already registered,
// preserving invariant (iv) of spec.md §3: the instance registry never
// contains two entries with the same id.
var ErrDuplicateID = errors.New("registry: duplicate kernel id")

// Registry is the process-wide mapping id → *kernel.Kernel. A kernel stays
// registered while it has outstanding children not yet returned (spec
// §4.C).
type Registry struct {
	mu    sync.RWMutex
	table map[uint64]*kernel.Kernel
}

// New returns an empty [*Registry].
func New() *Registry {
	return &Registry{table: make(map[uint64]*kernel.Kernel)}
}

// Insert registers k under k.ID(). k must already have a nonzero id.
func (reg *Registry) Insert(k *kernel.Kernel) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	id := k.ID()
	if _, exists := reg.table[id]; exists {
		return ErrDuplicateID
	}
	reg.table[id] = k
	return nil
}

// Lookup returns the kernel registered under id, if any.
func (reg *Registry) Lookup(id uint64) (*kernel.Kernel, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	k, ok := reg.table[id]
	return k, ok
}

// Erase removes the entry for id, if present.
func (reg *Registry) Erase(id uint64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.table, id)
}

// Len reports the number of registered kernels.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.table)
}

// Resolve upgrades ref to a local [kernel.Ref] by looking up its id in the
// registry. Already-local refs are returned unchanged. This implements
// Design Notes §9's "resolution replaces ById with LocalRef on successful
// registry lookup".
func (reg *Registry) Resolve(ref kernel.Ref) (kernel.Ref, bool) {
	if ref.IsLocal() {
		return ref, true
	}
	if ref.IsZero() {
		return ref, false
	}
	k, ok := reg.Lookup(ref.ID())
	if !ok {
		return ref, false
	}
	return kernel.LocalRef(k), true
}
