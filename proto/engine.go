// SPDX-License-Identifier: GPL-3.0-or-later

package proto

import (
	"errors"
	"io"

	"github.com/igankevich/factory/kernel"
	"github.com/igankevich/factory/logctx"
	"github.com/igankevich/factory/registry"
	"github.com/igankevich/factory/wire"
)

// Engine is the per-connection kernel protocol engine: it frames, buffers,
// dispatches and recovers kernels sent and received over a single
// connection (spec.md §4.D). One Engine is created per connection by the
// owning pipeline.
type Engine struct {
	// Upstream holds kernels sent upstream whose reply is still expected.
	Upstream *Buffer
	// Downstream holds downstream-bound kernels that carry their parent
	// and so remain owned by this engine until delivered or recovered.
	Downstream *Buffer

	// Registry resolves principal ids against locally registered kernels
	// on upstream arrival.
	Registry *registry.Registry

	// Types constructs the type-specific Body for an incoming kernel's
	// TypeID.
	Types *wire.TypeRegistry

	// Options controls which optional envelope fields this connection
	// negotiated (spec §4.B).
	Options wire.FrameOptions

	// SelfApplication is this engine's own application id. Packets whose
	// envelope ApplicationID differs are forwarded verbatim rather than
	// decoded as a kernel_frame.
	SelfApplication uint64

	// AssignID allocates a fresh id for a kernel that doesn't have one
	// yet. Set by the owning pipeline from its id range.
	AssignID func() uint64

	// Router delivers kernels once the engine has finished with them.
	Router Router

	Writer *wire.Writer
	Reader *wire.Reader

	Logger        logctx.SLogger
	ErrClassifier logctx.ErrClassifier
}

// New returns an [*Engine] for one connection, reading from r and writing
// to w through length-prefixed framing.
func New(r io.Reader, w io.Writer, router Router, reg *registry.Registry) *Engine {
	return &Engine{
		Upstream:        NewBuffer(),
		Downstream:      NewBuffer(),
		Registry:        reg,
		Types:           wire.NewTypeRegistry(),
		Router:          router,
		Writer:          wire.NewWriter(w),
		Reader:          wire.NewReader(r),
		Logger:          logctx.DefaultSLogger(),
		ErrClassifier:   logctx.DefaultErrClassifier,
		SelfApplication: 0,
	}
}

// Send implements the four-way dispatch of spec.md §4.D:
//
//   - upstream-bound or somewhere-bound: assign ids to k and its parent if
//     missing, write the packet, and retain k in the upstream buffer until
//     a reply (or recovery) releases it.
//   - downstream-bound carrying its parent: write the packet and retain k
//     in the downstream buffer, since the serialized form still needs a
//     local owner until delivery completes.
//   - plain downstream (no carried parent) or broadcast (moves_everywhere,
//     phase Everywhere): write the packet without retaining k at all; the
//     engine never owns it.
func (e *Engine) Send(k *kernel.Kernel) error {
	switch phase := k.Phase(); {
	case phase == kernel.Upstream || phase == kernel.Somewhere:
		if !k.HasID() {
			k.SetID(e.nextID())
		}
		if parent, ok := k.Parent.Local(); ok && !parent.HasID() {
			parent.SetID(e.nextID())
		}
		if err := e.write(k); err != nil {
			return err
		}
		e.Upstream.Push(k)
		return nil
	case phase == kernel.Downstream && k.Flags.Has(kernel.CarriesParent):
		if err := e.write(k); err != nil {
			return err
		}
		e.Downstream.Push(k)
		return nil
	default:
		return e.write(k)
	}
}

// WriteRaw re-frames and writes payload verbatim as a transit packet for
// appID, used by a Router.Forward implementation to relay a packet whose
// application_id didn't match this engine's own without decoding it as a
// kernel_frame (spec §4.D / §6 "forwarded verbatim").
func (e *Engine) WriteRaw(appID uint64, source kernel.Endpoint, payload []byte) error {
	g := e.Writer.BeginPacket()
	header := wire.EnvelopeHeader{ApplicationID: appID, Source: source}
	if err := wire.EncodeEnvelopeHeader(g, header, e.Options); err != nil {
		g.Fail(err)
		return g.Commit()
	}
	if _, err := g.Write(payload); err != nil {
		g.Fail(err)
		return g.Commit()
	}
	return g.Commit()
}

func (e *Engine) nextID() uint64 {
	if e.AssignID == nil {
		return 0
	}
	return e.AssignID()
}

func (e *Engine) write(k *kernel.Kernel) error {
	g := e.Writer.BeginPacket()
	header := wire.EnvelopeHeader{
		ApplicationID: k.TargetApp,
		Source:        k.Source,
		Destination:   k.Destination,
	}
	if err := wire.EncodeEnvelopeHeader(g, header, e.Options); err != nil {
		g.Fail(err)
		return g.Commit()
	}
	if err := wire.EncodeKernel(g, k); err != nil {
		g.Fail(err)
		return g.Commit()
	}
	return g.Commit()
}

// ReceiveKernels reads and dispatches packets until the stream ends or a
// framing-level error occurs. A malformed packet (bad envelope or
// kernel_frame body) is logged and skipped; the connection continues.
// Only an error in the length prefix itself, or one exceeding
// [wire.MaxPacketSize], tears down the connection (spec §4.B, §7).
func (e *Engine) ReceiveKernels() error {
	for {
		body, err := e.Reader.ReadPacket()
		if err != nil {
			return err
		}
		ferr := e.receiveOne(body)
		if _, derr := io.Copy(io.Discard, body); derr != nil && ferr == nil {
			return derr
		}
		if ferr != nil {
			e.Logger.Warn("malformed kernel packet", "err", ferr)
			continue
		}
	}
}

// receiveOne decodes and dispatches a single packet's payload per spec.md
// §4.D.
func (e *Engine) receiveOne(r io.Reader) error {
	header, err := wire.DecodeEnvelopeHeader(r, e.Options)
	if err != nil {
		return err
	}
	if header.ApplicationID != e.SelfApplication {
		payload, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		return e.Router.Forward(header.ApplicationID, header.Source, payload)
	}
	k, err := wire.DecodeKernel(r, e.Types)
	if err != nil {
		return err
	}
	if e.Options.PrependSrcDst {
		k.Source = header.Source
		k.Destination = header.Destination
	}
	if k.Result != kernel.Undefined {
		// Downstream reply: the parent stayed behind in our upstream
		// buffer when we first sent this kernel's upstream-bound
		// counterpart, so only the id travels on the wire.
		if stored, ok := e.Upstream.Pop(k.ID()); ok {
			k.Parent = stored.Parent
		}
	} else if pid := k.Principal.ID(); pid != 0 {
		resolved, ok := e.Registry.Resolve(k.Principal)
		if !ok {
			k.Result = kernel.NoPrincipalFound
			return e.write(k)
		}
		k.Principal = resolved
	}
	e.Router.RouteLocal(k)
	return nil
}

var errMalformedRecovery = errors.New("proto: malformed kernel during recovery")
