// SPDX-License-Identifier: GPL-3.0-or-later

package kernel

// Phase is a kernel's routing phase, derived from its (Result, Principal,
// Parent) triple rather than stored directly (spec §3).
type Phase uint8

const (
	// Upstream: result undefined, no principal, has parent. A request
	// moving toward a worker.
	Upstream Phase = iota
	// Downstream: result defined, has principal and parent. A reply
	// heading home.
	Downstream
	// Somewhere is point-to-point movement: result undefined, has both
	// principal and parent.
	Somewhere
	// Everywhere is a broadcast: has neither principal nor parent.
	Everywhere
)

// String implements [fmt.Stringer].
func (p Phase) String() string {
	switch p {
	case Upstream:
		return "upstream"
	case Downstream:
		return "downstream"
	case Somewhere:
		return "somewhere"
	case Everywhere:
		return "everywhere"
	default:
		return "unknown"
	}
}
