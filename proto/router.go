// SPDX-License-Identifier: GPL-3.0-or-later

package proto

import "github.com/igankevich/factory/kernel"

// Router is the engine's view of the owning pipeline: where a kernel goes
// once the protocol engine has finished framing, buffering or recovering
// it. Concrete pipelines (transport.Pipeline, factory.Local) implement
// this to receive delivered kernels without the engine depending on their
// concrete types.
type Router interface {
	// RouteLocal dispatches a kernel that has reached its destination on
	// this node (a downstream reply, an arriving kernel whose principal
	// resolved, or a recovered kernel) to the local pipeline. A kernel
	// whose principal is not found is written back on the connection
	// instead.
	RouteLocal(k *kernel.Kernel)

	// RouteUpstream re-submits an upstream-bound kernel to the neighbour
	// selection algorithm, used when recovering a lost connection's
	// upstream buffer (spec §4.D recover_kernels).
	RouteUpstream(k *kernel.Kernel) error

	// Forward re-emits a transit packet — one addressed to an
	// application other than this engine's own — without parsing its
	// kernel body (spec §4.D / §6 "packet whose application_id does not
	// match the receiver's own id is forwarded verbatim").
	Forward(appID uint64, source kernel.Endpoint, payload []byte) error
}
