// SPDX-License-Identifier: GPL-3.0-or-later

package kernel

// Flags is the per-kernel bit set carried on the wire and in memory.
type Flags uint8

const (
	// CarriesParent marks a kernel that serializes its parent alongside
	// itself (spec invariant: a kernel with carries_parent serializes its
	// parent together with itself).
	CarriesParent Flags = 1 << iota

	// Deleted marks a kernel as torn down; set by MarkAsDeleted.
	Deleted

	// DoNotDelete marks a kernel the engine must not take ownership of
	// for deletion purposes (e.g. broadcast kernels, spec §4.D "a kernel
	// marked moves_everywhere is written but never owned by the engine").
	DoNotDelete

	// PrincipalIsID marks that Principal currently holds a bare id rather
	// than a resolved local pointer.
	PrincipalIsID

	// ParentIsID marks that Parent currently holds a bare id rather than
	// a resolved local pointer.
	ParentIsID

	// Priority marks a kernel for front-of-queue scheduling in the local
	// worker pool (see SPEC_FULL.md §17, supplemented from original_source).
	Priority
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// Set returns f with mask set.
func (f Flags) Set(mask Flags) Flags {
	return f | mask
}

// Clear returns f with mask cleared.
func (f Flags) Clear(mask Flags) Flags {
	return f &^ mask
}
