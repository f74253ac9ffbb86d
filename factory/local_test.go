// SPDX-License-Identifier: GPL-3.0-or-later

package factory_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/igankevich/factory/factory"
	"github.com/igankevich/factory/kernel"
)

type recordingRouter struct {
	mu       sync.Mutex
	upped    []*kernel.Kernel
	forwards int
}

func (r *recordingRouter) RouteLocal(k *kernel.Kernel) {}

func (r *recordingRouter) RouteUpstream(k *kernel.Kernel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upped = append(r.upped, k)
	return nil
}

func (r *recordingRouter) Forward(appID uint64, source kernel.Endpoint, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forwards++
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestLocalRunsHandlerAndRoutesCompletedKernelOnward(t *testing.T) {
	l := factory.NewLocal()
	l.Workers = 1
	router := &recordingRouter{}
	l.ErrorPipeline = router
	l.Handlers[7] = func(k *kernel.Kernel) {
		k.ReturnToParent(kernel.Success)
	}
	l.Start()
	defer l.Stop()

	k := kernel.New()
	k.TypeID = 7
	k.Parent = kernel.IDRef(99) // not a local pointer: must leave the node
	l.RouteLocal(k)

	waitFor(t, func() bool {
		router.mu.Lock()
		defer router.mu.Unlock()
		return len(router.upped) == 1
	})
}

func TestLocalDeliversToLocalParentContinuation(t *testing.T) {
	l := factory.NewLocal()
	l.Workers = 1
	var gotParent, gotChild *kernel.Kernel
	var mu sync.Mutex
	l.OnChildReturn = func(parent, child *kernel.Kernel) {
		mu.Lock()
		defer mu.Unlock()
		gotParent, gotChild = parent, child
	}
	l.Start()
	defer l.Stop()

	parent := kernel.New()
	parent.SetID(1)
	k := kernel.New()
	k.Parent = kernel.LocalRef(parent)
	l.RouteLocal(k)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotChild != nil
	})
	require.Same(t, parent, gotParent)
	require.Same(t, k, gotChild)
}

func TestLocalPriorityKernelsJumpTheQueue(t *testing.T) {
	l := factory.NewLocal()
	l.Workers = 1
	var order []int
	var mu sync.Mutex
	gate := make(chan struct{})
	started := make(chan struct{})
	record := func(k *kernel.Kernel) {
		mu.Lock()
		order = append(order, int(k.TypeID))
		mu.Unlock()
	}
	l.Handlers[0] = func(k *kernel.Kernel) {
		close(started)
		<-gate // hold the only worker while normal/priority both queue up
	}
	l.Handlers[1] = record
	l.Handlers[2] = record
	l.Start()
	defer l.Stop()

	blocker := kernel.New()
	l.RouteLocal(blocker)
	<-started

	normal := kernel.New()
	normal.TypeID = 1
	priority := kernel.New()
	priority.TypeID = 2
	priority.Flags = kernel.Priority
	l.RouteLocal(normal)
	l.RouteLocal(priority)
	close(gate)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})
	require.Equal(t, []int{2, 1}, order, "priority-flagged kernel must run before the normal one queued ahead of it")
}
