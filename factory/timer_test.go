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

type capturingLocal struct {
	mu        sync.Mutex
	delivered []*kernel.Kernel
}

func (c *capturingLocal) RouteLocal(k *kernel.Kernel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered = append(c.delivered, k)
}

func TestTimerPipelineDeliversOnDeadline(t *testing.T) {
	local := &capturingLocal{}
	tp := factory.NewTimerPipeline(local)
	tp.Tick = time.Millisecond
	tp.Start()
	defer tp.Stop()

	k := kernel.New()
	k.Deadline = time.Now().Add(5 * time.Millisecond)
	tp.Add(k)

	waitFor(t, func() bool {
		local.mu.Lock()
		defer local.mu.Unlock()
		return len(local.delivered) == 1
	})
}

func TestTimerPipelineDeliversOrderedByDeadline(t *testing.T) {
	local := &capturingLocal{}
	tp := factory.NewTimerPipeline(local)
	tp.Tick = time.Millisecond

	late := kernel.New()
	late.TypeID = 2
	late.Deadline = time.Now().Add(20 * time.Millisecond)
	early := kernel.New()
	early.TypeID = 1
	early.Deadline = time.Now().Add(5 * time.Millisecond)
	tp.Add(late)
	tp.Add(early)

	tp.Start()
	defer tp.Stop()

	waitFor(t, func() bool {
		local.mu.Lock()
		defer local.mu.Unlock()
		return len(local.delivered) == 2
	})
	require.Equal(t, uint16(1), local.delivered[0].TypeID)
	require.Equal(t, uint16(2), local.delivered[1].TypeID)
}

func TestTimerPipelineStopDrainsPending(t *testing.T) {
	local := &capturingLocal{}
	tp := factory.NewTimerPipeline(local)
	tp.Tick = time.Hour // never fires on its own

	k := kernel.New()
	k.Deadline = time.Now().Add(time.Hour)
	tp.Add(k)
	tp.Start()

	require.NoError(t, tp.Stop())
	require.Len(t, local.delivered, 1, "Stop must deliver kernels still pending rather than drop them")
}
