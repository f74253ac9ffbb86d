// SPDX-License-Identifier: GPL-3.0-or-later

package factory

import (
	"container/heap"
	"sync"
	"time"

	"github.com/igankevich/factory/kernel"
	"github.com/igankevich/factory/logctx"
)

// TimerPipeline holds kernels with a nonzero Deadline, delivering each to
// Router.RouteLocal once its deadline elapses (spec §3's "scheduling
// deadline (for timer kernels)", supplemented from original_source's
// dedicated ppl timer_server — the distilled spec names the field but
// never wires a component to act on it).
type TimerPipeline struct {
	Router interface {
		RouteLocal(k *kernel.Kernel)
	}
	Tick time.Duration

	Logger logctx.SLogger

	mu   sync.Mutex
	heap timerHeap
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewTimerPipeline returns a [*TimerPipeline] delivering to router and
// polling every 10ms (the Tick field, which may be changed before Start).
func NewTimerPipeline(router interface {
	RouteLocal(k *kernel.Kernel)
}) *TimerPipeline {
	return &TimerPipeline{
		Router: router,
		Tick:   10 * time.Millisecond,
		Logger: logctx.DefaultSLogger(),
		stop:   make(chan struct{}),
	}
}

// Add schedules k for delivery at k.Deadline. k.Deadline must be nonzero.
func (t *TimerPipeline) Add(k *kernel.Kernel) {
	t.mu.Lock()
	heap.Push(&t.heap, k)
	t.mu.Unlock()
}

// Start runs the polling loop until Stop is called.
func (t *TimerPipeline) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				t.drainAll()
				return
			case <-ticker.C:
				t.deliverDue()
			}
		}
	}()
}

// Stop halts the polling loop and delivers every remaining kernel
// immediately, matching spec §5's shutdown drain-pass contract (pending
// timers do not simply vanish on shutdown).
func (t *TimerPipeline) Stop() error {
	close(t.stop)
	t.wg.Wait()
	return nil
}

func (t *TimerPipeline) deliverDue() {
	now := time.Now()
	for {
		t.mu.Lock()
		if t.heap.Len() == 0 || t.heap[0].Deadline.After(now) {
			t.mu.Unlock()
			return
		}
		k := heap.Pop(&t.heap).(*kernel.Kernel)
		t.mu.Unlock()
		t.Router.RouteLocal(k)
	}
}

func (t *TimerPipeline) drainAll() {
	t.mu.Lock()
	pending := make([]*kernel.Kernel, t.heap.Len())
	for i := range pending {
		pending[i] = heap.Pop(&t.heap).(*kernel.Kernel)
	}
	t.mu.Unlock()
	for _, k := range pending {
		t.Router.RouteLocal(k)
	}
}

// timerHeap is a container/heap ordering kernels by Deadline, ascending.
type timerHeap []*kernel.Kernel

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].Deadline.Before(h[j].Deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)         { *h = append(*h, x.(*kernel.Kernel)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
