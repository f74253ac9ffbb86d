// SPDX-License-Identifier: GPL-3.0-or-later

// Package proto implements the per-connection kernel protocol engine:
// framing, buffering, dispatch, and recovery of kernels sent and received
// over a single connection (spec.md §4.D).
package proto

import "github.com/igankevich/factory/kernel"

// Buffer holds kernels in flight on one side of a connection, indexed by
// id for O(1) lookup when a downstream reply arrives.
//
// Property 3 of spec.md §8 (buffer invariant) holds by construction: Push,
// Pop and Drain are the only mutators, and every kernel placed in the upstream
// buffer is identifiable first (spec §3 invariant i).
type Buffer struct {
	order []uint64
	index map[uint64]*kernel.Kernel
}

// NewBuffer returns an empty [*Buffer].
func NewBuffer() *Buffer {
	return &Buffer{index: make(map[uint64]*kernel.Kernel)}
}

// Push adds k, keyed by its id. k must already have a nonzero id.
func (b *Buffer) Push(k *kernel.Kernel) {
	id := k.ID()
	if _, exists := b.index[id]; exists {
		return
	}
	b.order = append(b.order, id)
	b.index[id] = k
}

// Pop removes and returns the kernel with the given id, if buffered.
func (b *Buffer) Pop(id uint64) (*kernel.Kernel, bool) {
	k, ok := b.index[id]
	if !ok {
		return nil, false
	}
	delete(b.index, id)
	for i, bid := range b.order {
		if bid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return k, true
}

// Peek returns the kernel with the given id without removing it.
func (b *Buffer) Peek(id uint64) (*kernel.Kernel, bool) {
	k, ok := b.index[id]
	return k, ok
}

// Len reports the number of buffered kernels.
func (b *Buffer) Len() int {
	return len(b.order)
}

// Drain removes and returns every buffered kernel in insertion order,
// leaving the buffer empty. Used by RecoverKernels, which leaves every
// buffer it drains empty on return (Property 4 of spec.md §8).
func (b *Buffer) Drain() []*kernel.Kernel {
	out := make([]*kernel.Kernel, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.index[id])
	}
	b.order = nil
	b.index = make(map[uint64]*kernel.Kernel)
	return out
}
