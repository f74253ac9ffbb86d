// SPDX-License-Identifier: GPL-3.0-or-later

package proto

import "github.com/igankevich/factory/kernel"

// recoveryClass classifies a buffered kernel for RecoverKernels per
// spec.md §4.D, using the same (Result, Principal, Parent) triple as
// [kernel.Kernel.Phase] but restated explicitly: recovery inspects exactly
// the three patterns the spec names, and anything else is malformed.
type recoveryClass uint8

const (
	recoverUpstream recoveryClass = iota
	recoverSomewhere
	recoverDownstream
	recoverMalformed
)

func classifyForRecovery(k *kernel.Kernel) recoveryClass {
	hasParent := !k.Parent.IsZero()
	hasPrincipal := !k.Principal.IsZero()
	switch {
	case k.Result == kernel.Undefined && !hasPrincipal && hasParent:
		return recoverUpstream
	case k.Result == kernel.Undefined && hasPrincipal && hasParent:
		return recoverSomewhere
	case k.Result != kernel.Undefined && hasParent:
		return recoverDownstream
	default:
		return recoverMalformed
	}
}

// RecoverKernels drains the upstream buffer — and, if includeDownstream is
// set, the downstream buffer too — dispatching every entry per spec.md
// §4.D:
//
//   - upstream-bound: re-submitted to the router for another connection.
//   - somewhere-bound: result set to EndpointNotConnected, source becomes
//     the old destination, principal becomes parent, delivered locally.
//   - downstream-bound with parent: delivered locally as-is.
//   - anything else: logged as malformed and dropped.
//
// The upstream buffer is always left empty on return (Property 4 of
// spec.md §8: every entry is either delivered locally or re-sent). The
// downstream buffer is only drained — and left empty — when
// includeDownstream is set; otherwise it is left untouched, since its
// entries are still legitimately owned pending delivery on this same
// connection.
func (e *Engine) RecoverKernels(includeDownstream bool) []*kernel.Kernel {
	var recovered []*kernel.Kernel
	recovered = e.recoverBuffer(e.Upstream, recovered)
	if includeDownstream {
		recovered = e.recoverBuffer(e.Downstream, recovered)
	}
	return recovered
}

func (e *Engine) recoverBuffer(buf *Buffer, recovered []*kernel.Kernel) []*kernel.Kernel {
	for _, k := range buf.Drain() {
		switch classifyForRecovery(k) {
		case recoverUpstream:
			if err := e.Router.RouteUpstream(k); err != nil {
				e.Logger.Warn("recovery: re-send failed", "id", k.ID(), "err", err)
				k.Result = kernel.NoUpstreamServersAvailable
				e.Router.RouteLocal(k)
			}
		case recoverSomewhere:
			k.Result = kernel.EndpointNotConnected
			k.Source = k.Destination
			k.Principal = k.Parent
			e.Router.RouteLocal(k)
		case recoverDownstream:
			e.Router.RouteLocal(k)
		default:
			e.Logger.Warn("recovery: dropping malformed kernel", "id", k.ID(), "err", errMalformedRecovery)
			continue
		}
		recovered = append(recovered, k)
	}
	return recovered
}
