// SPDX-License-Identifier: GPL-3.0-or-later

// Package kernel defines the in-memory kernel object and its routing
// state: the mobile unit of computation that migrates between nodes,
// forms parent/child call trees, and carries enough state to be recovered
// after a peer is lost.
package kernel

import "time"

// Kernel is a unit of mobile computation. Zero value is not directly
// useful; construct with [New].
type Kernel struct {
	id uint64

	Parent    Ref
	Principal Ref

	Source      Endpoint
	Destination Endpoint

	SourceApp uint64
	TargetApp uint64

	Result Result
	Flags  Flags

	// Deadline is nonzero only for timer kernels (spec §3).
	Deadline time.Time

	// TypeID selects the concrete payload type on the receiving side for
	// polymorphic construction (spec §3, §6 kernel_frame.type_id).
	TypeID uint16

	// Payload is the type-specific body. wire.EncodeKernel/DecodeKernel
	// marshal it via the registered codec for TypeID.
	Payload any
}

// New returns an unidentified [*Kernel] (id 0).
func New() *Kernel {
	return &Kernel{}
}

// ID returns the kernel's identity. 0 means "not yet identified".
func (k *Kernel) ID() uint64 {
	if k == nil {
		return 0
	}
	return k.id
}

// SetID assigns k's identity. Per spec §3 invariant (i), a kernel placed
// in an upstream buffer must already be identifiable; callers assign an id
// before buffering, never after.
func (k *Kernel) SetID(id uint64) {
	k.id = id
}

// HasID reports whether k has been assigned a nonzero id.
func (k *Kernel) HasID() bool {
	return k.id != 0
}

// Phase derives k's routing phase from (Result, Principal, Parent) per
// spec §3.
func (k *Kernel) Phase() Phase {
	hasParent := !k.Parent.IsZero()
	hasPrincipal := !k.Principal.IsZero()
	switch {
	case k.Result == Undefined && !hasPrincipal && hasParent:
		return Upstream
	case k.Result != Undefined && hasPrincipal && hasParent:
		return Downstream
	case k.Result == Undefined && hasPrincipal && hasParent:
		return Somewhere
	default:
		return Everywhere
	}
}

// ReturnToParent sets Principal to Parent and stores the result code,
// turning an upstream kernel into a downstream reply addressed to its
// issuer.
func (k *Kernel) ReturnToParent(code Result) {
	k.Principal = k.Parent
	k.Result = code
}

// MarkAsDeleted recursively marks k and its parent chain as deleted,
// appending each kernel exactly once to sink so that a single deleter can
// release the whole chain when the graph is torn down on stop (spec
// §4.A). A local seen-set prevents double-appending when multiple
// children share an ancestor.
func (k *Kernel) MarkAsDeleted(sink *[]*Kernel) {
	seen := make(map[uint64]struct{})
	k.markAsDeleted(sink, seen)
}

func (k *Kernel) markAsDeleted(sink *[]*Kernel, seen map[uint64]struct{}) {
	if k == nil || k.Flags.Has(Deleted) {
		return
	}
	key := k.id
	if _, ok := seen[key]; ok && key != 0 {
		return
	}
	seen[key] = struct{}{}
	k.Flags = k.Flags.Set(Deleted)
	*sink = append(*sink, k)
	if parent, ok := k.Parent.Local(); ok {
		parent.markAsDeleted(sink, seen)
	}
}

// Equal implements identity-or-address equality (spec §4.A): kernels are
// compared by id when both are identifiable, by source address otherwise.
func (k *Kernel) Equal(other *Kernel) bool {
	if k == nil || other == nil {
		return k == other
	}
	if k.HasID() && other.HasID() {
		return k.id == other.id
	}
	return k.Source.Equal(other.Source)
}
