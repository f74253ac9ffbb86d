// SPDX-License-Identifier: GPL-3.0-or-later

// Package process transports kernels across a parent↔child process
// boundary over a pipe pair, and launches the child from a decoded
// [LaunchSpec] (spec.md §4.F).
package process

import (
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/igankevich/factory/kernel"
	"github.com/igankevich/factory/logctx"
	"github.com/igankevich/factory/proto"
	"github.com/igankevich/factory/wire"
)

// MainKernelType is the type id reserved for an application's "main"
// kernel (spec §4.F): when a kernel of this type arrives downstream, the
// application is considered complete.
const MainKernelType uint16 = 1

// Router is where a [Handler] delivers kernels received from the child
// and where it asks for kernels to send, mirroring [proto.Router]'s shape
// for this narrower pipe transport (no transit-forwarding concept across
// a pipe, so Forward is never called and is not part of this interface).
type Router interface {
	RouteLocal(k *kernel.Kernel)
}

// Handler owns the pipe pair to one child process and the protocol engine
// running over it. Unlike a network connection, a pipe transport never
// prepends source/destination endpoints (spec §4.F "minus the source/
// destination prefix"), so its [wire.FrameOptions] always has
// PrependSrcDst false.
type Handler struct {
	ApplicationID uint64

	toChild   io.WriteCloser
	fromChild io.ReadCloser

	Engine *proto.Engine
	Router Router

	Process *os.Process

	Logger logctx.SLogger

	mu   sync.Mutex
	done bool
	wait chan struct{}
}

// NewHandler wires a [Handler] over an already-started child's pipes. The
// caller is responsible for creating the os.Pipe() pairs and passing the
// parent-side ends here.
func NewHandler(appID uint64, toChild io.WriteCloser, fromChild io.ReadCloser, router Router) *Handler {
	h := &Handler{
		ApplicationID: appID,
		toChild:       toChild,
		fromChild:     fromChild,
		Router:        router,
		Logger:        logctx.DefaultSLogger(),
		wait:          make(chan struct{}),
	}
	h.Engine = &proto.Engine{
		Upstream:        proto.NewBuffer(),
		Downstream:      proto.NewBuffer(),
		Types:           wire.NewTypeRegistry(),
		Options:         wire.FrameOptions{},
		SelfApplication: appID,
		Router:          pipeRouter{h},
		Writer:          wire.NewWriter(toChild),
		Reader:          wire.NewReader(fromChild),
		Logger:          h.Logger,
		ErrClassifier:   logctx.DefaultErrClassifier,
	}
	return h
}

// pipeRouter adapts Handler to [proto.Router]: kernels delivered locally
// are tagged with the child's application id and handed to Handler.Router,
// and Forward/RouteUpstream have no meaning over a pipe transport.
type pipeRouter struct{ h *Handler }

func (r pipeRouter) RouteLocal(k *kernel.Kernel) {
	k.SourceApp = r.h.ApplicationID
	r.h.HandleDownstream(k)
	r.h.Router.RouteLocal(k)
}

func (pipeRouter) RouteUpstream(k *kernel.Kernel) error { return nil }

func (pipeRouter) Forward(appID uint64, source kernel.Endpoint, payload []byte) error {
	return nil
}

// Run reads kernels from the child until the pipe closes.
func (h *Handler) Run() error {
	return h.Engine.ReceiveKernels()
}

// Send transports k to the child.
func (h *Handler) Send(k *kernel.Kernel) error {
	return h.Engine.Send(k)
}

// HandleDownstream implements spec §4.F: a kernel of [MainKernelType]
// arriving downstream signals application completion and terminates the
// child's process group with SIGTERM.
func (h *Handler) HandleDownstream(k *kernel.Kernel) {
	if k.TypeID != MainKernelType {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	h.done = true
	close(h.wait)
	if h.Process != nil {
		_ = syscall.Kill(-h.Process.Pid, syscall.SIGTERM)
	}
}

// Wait blocks until the application's main kernel has returned.
func (h *Handler) Wait() <-chan struct{} {
	return h.wait
}

// Close closes both ends of the pipe pair owned by this handler.
func (h *Handler) Close() error {
	err1 := h.toChild.Close()
	err2 := h.fromChild.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
