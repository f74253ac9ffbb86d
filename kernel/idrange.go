// SPDX-License-Identifier: GPL-3.0-or-later

package kernel

import "sync"

// IDRange is a contiguous, half-open range [Pos0, Pos1) of kernel ids
// owned by one interface. Drawing ids from disjoint ranges across
// interfaces gives every kernel a globally unique id with no coordination
// (spec §3 "Interface address range").
type IDRange struct {
	Pos0, Pos1 uint64

	mu   sync.Mutex
	next uint64
	init bool
}

// NewIDRange returns an [*IDRange] covering [pos0, pos1). pos1 must be
// greater than pos0.
func NewIDRange(pos0, pos1 uint64) *IDRange {
	return &IDRange{Pos0: pos0, Pos1: pos1}
}

// Next draws the next id from the range, wrapping back to Pos0 once Pos1
// is reached. Id 0 is reserved for "not yet identified" (spec §3), so a
// range starting at 0 skips it on the first draw.
func (r *IDRange) Next() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.init {
		r.next = r.Pos0
		r.init = true
	}
	if r.next == 0 {
		r.next++
	}
	if r.next >= r.Pos1 {
		r.next = r.Pos0
		if r.next == 0 {
			r.next = 1
		}
	}
	id := r.next
	r.next++
	return id
}

// Contains reports whether id falls within [Pos0, Pos1).
func (r *IDRange) Contains(id uint64) bool {
	return id >= r.Pos0 && id < r.Pos1
}
