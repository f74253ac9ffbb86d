// SPDX-License-Identifier: GPL-3.0-or-later

package factory

import (
	"runtime"
	"sync"

	"github.com/igankevich/factory/kernel"
	"github.com/igankevich/factory/logctx"
	"github.com/igankevich/factory/proto"
)

// KernelHandler runs a kernel's application-specific logic in place,
// typically ending with k.ReturnToParent to turn it into a reply (spec §3
// "the kernel completes and control returns to its parent").
type KernelHandler func(k *kernel.Kernel)

// Local is the fixed worker-pool pipeline of spec §4.I / §5: a small pool
// of goroutines (one per CPU by default) executing kernels handed to it
// through RouteLocal, the worker-thread half of the "mixed" scheduling
// model described in spec §5.
type Local struct {
	Workers    int
	PinWorkers bool
	Handlers   map[uint16]KernelHandler

	// ErrorPipeline receives a kernel Local finished but cannot deliver
	// itself — its parent is not a local pointer, meaning the kernel
	// originally arrived from (and must return to) another node. Wired
	// to the remote pipeline by [Factory], matching the teacher's
	// local.error_pipeline(&remote) (see basic_factory.cc).
	ErrorPipeline proto.Router

	// OnChildReturn, if set, is called instead of discarding a completed
	// kernel whose parent is a local pointer, letting the application
	// resume the parent's own logic. Left nil, a completed kernel with a
	// local parent is simply dropped once delivered — wiring a real
	// continuation is an application concern this package does not
	// prescribe.
	OnChildReturn func(parent, child *kernel.Kernel)

	Logger logctx.SLogger

	queue    chan *kernel.Kernel
	priority chan *kernel.Kernel
	wg       sync.WaitGroup
	stop     chan struct{}
}

// NewLocal returns a [*Local] with runtime.NumCPU() workers and a default
// discard logger, ready to have its Handlers populated before Start.
func NewLocal() *Local {
	return &Local{
		Workers:  runtime.NumCPU(),
		Handlers: make(map[uint16]KernelHandler),
		Logger:   logctx.DefaultSLogger(),
		queue:    make(chan *kernel.Kernel, 256),
		priority: make(chan *kernel.Kernel, 256),
		stop:     make(chan struct{}),
	}
}

// Start spawns the worker pool.
func (l *Local) Start() {
	n := l.Workers
	if n <= 0 {
		n = 1
	}
	l.wg.Add(n)
	for i := 0; i < n; i++ {
		go l.worker()
	}
}

// Stop signals every worker to exit once its current kernel (if any)
// finishes, and Wait blocks until they do.
func (l *Local) Stop() error {
	close(l.stop)
	return nil
}

// Wait blocks until every worker goroutine has exited.
func (l *Local) Wait() error {
	l.wg.Wait()
	return nil
}

func (l *Local) worker() {
	defer l.wg.Done()
	if l.PinWorkers {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	for {
		select {
		case <-l.stop:
			return
		default:
		}
		select {
		case k := <-l.priority:
			l.run(k)
		default:
			select {
			case k := <-l.priority:
				l.run(k)
			case k := <-l.queue:
				l.run(k)
			case <-l.stop:
				return
			}
		}
	}
}

func (l *Local) run(k *kernel.Kernel) {
	if handler, ok := l.Handlers[k.TypeID]; ok {
		l.runHandler(handler, k)
	}
	l.deliver(k)
}

// runHandler invokes handler with a recover guard: a panicking handler
// must not take the worker (and the process) down with it. Per spec §7,
// an uncaught exception converts the kernel's result to user_error and
// logs it; the kernel still reaches deliver afterward as if the handler
// had returned normally.
func (l *Local) runHandler(handler KernelHandler, k *kernel.Kernel) {
	defer func() {
		if r := recover(); r != nil {
			k.Result = kernel.UserError
			l.Logger.Error("factory: handler panicked", "type_id", k.TypeID, "panic", r)
		}
	}()
	handler(k)
}

// deliver routes a kernel that has just finished local execution: back to
// a local parent's continuation if one exists in this process, or out to
// ErrorPipeline when the parent (or the kernel's own destination, for a
// plain routing kernel) lives elsewhere.
func (l *Local) deliver(k *kernel.Kernel) {
	if parent, ok := k.Parent.Local(); ok {
		if l.OnChildReturn != nil {
			l.OnChildReturn(parent, k)
		}
		return
	}
	if k.Parent.IsZero() && k.Phase() == kernel.Everywhere {
		return
	}
	if l.ErrorPipeline == nil {
		l.Logger.Warn("factory: completed kernel has nowhere to go", "type_id", k.TypeID)
		return
	}
	if err := l.ErrorPipeline.RouteUpstream(k); err != nil {
		l.Logger.Warn("factory: failed to route completed kernel onward", "error", err)
	}
}

// RouteLocal implements [transport.LocalRouter] and [process.Router]:
// queues k for execution, front-of-queue when Priority is set (SPEC_FULL.md
// §17, supplemented from original_source's priority kernels).
func (l *Local) RouteLocal(k *kernel.Kernel) {
	if k.Flags.Has(kernel.Priority) {
		l.priority <- k
		return
	}
	l.queue <- k
}
