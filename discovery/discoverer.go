// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/igankevich/factory/logctx"
)

// WeightObserver receives a peer's current MaxWeight whenever it changes,
// letting the factory package wire discovery's weight propagation into
// transport.Client.MaxWeight (component G → component E, spec §2).
type WeightObserver func(peer netip.AddrPort, maxWeight int)

// Discoverer is the Go translation of spec §4.G's "master_discoverer
// kernel": a goroutine-backed object running election and weight
// maintenance for one interface's [Hierarchy].
type Discoverer struct {
	ScanInterval time.Duration
	Scanner      Scanner
	Port         uint16
	TotalNodes   func() int

	// Fanout caps the number of subordinates this node accepts, per
	// spec.md §6's `fanout=<int>` flag (default 2, set by the caller).
	Fanout int

	OnWeightChange WeightObserver

	Logger logctx.SLogger

	mu     sync.Mutex
	h      Hierarchy
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDiscoverer returns a [*Discoverer] for one interface.
func NewDiscoverer(iface netip.Addr, listen netip.AddrPort) *Discoverer {
	return &Discoverer{
		ScanInterval: 30 * time.Second,
		TotalNodes:   func() int { return 1 },
		Fanout:       2,
		Logger:       logctx.DefaultSLogger(),
		h:            Hierarchy{Interface: iface, Listen: listen},
	}
}

// Hierarchy returns a snapshot copy of the discoverer's current view.
func (d *Discoverer) Hierarchy() Hierarchy {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := make([]*Node, len(d.h.Subordinates))
	copy(subs, d.h.Subordinates)
	cp := d.h
	cp.Subordinates = subs
	return cp
}

// Start runs the periodic scan loop until ctx is canceled or Stop is
// called.
func (d *Discoverer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.ScanInterval)
		defer ticker.Stop()
		d.scanOnce()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.scanOnce()
			}
		}
	}()
}

// Stop cancels the scan loop and waits for it to exit.
func (d *Discoverer) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// ScanOnce runs one election/weight-recompute pass synchronously, without
// waiting for the next ticker interval. Start's loop calls this
// internally; tests call it directly for determinism.
func (d *Discoverer) ScanOnce() {
	d.scanOnce()
}

func (d *Discoverer) scanOnce() {
	d.mu.Lock()
	hasSuperior := d.h.Superior != nil
	d.mu.Unlock()
	if hasSuperior {
		d.recomputeAndNotify()
		return
	}
	if addr, ok := d.Scanner.FindSuperior(d.Port); ok {
		d.mu.Lock()
		d.h.Superior = &Node{Addr: addr}
		d.mu.Unlock()
	}
	d.recomputeAndNotify()
}

// OnAddClient triggers re-election when a new connection appears: a
// superior-less node immediately re-scans rather than waiting for the
// next tick (spec §4.G re-election trigger).
func (d *Discoverer) OnAddClient(peer netip.AddrPort) {
	d.mu.Lock()
	d.h.AddSubordinate(peer)
	hasSuperior := d.h.Superior != nil
	d.mu.Unlock()
	if !hasSuperior {
		d.scanOnce()
	} else {
		d.recomputeAndNotify()
	}
}

// OnRemoveClient drops peer from the subordinate set and, if it was our
// superior, clears it so the next scan looks for a replacement.
func (d *Discoverer) OnRemoveClient(peer netip.AddrPort) {
	d.mu.Lock()
	d.h.RemoveSubordinate(peer)
	if d.h.Superior != nil && d.h.Superior.Addr == peer {
		d.h.Superior = nil
	}
	d.mu.Unlock()
	d.recomputeAndNotify()
}

// HandleProbe implements spec §4.G's probe-acceptance side: the sender
// (p.NewPrincipal) is registered as a subordinate if this node has room
// left under its fanout, and the bool result reports whether it was
// accepted — the signal the scanner's Prober plumbs back to the sender so
// it can try the next candidate on rejection.
//
// Design Notes: the prose also describes a receiver adopting the probe's
// sender as the receiver's own superior when unset — applied literally
// that would let a higher-address node become superior of a lower one,
// contradicting Property 6's "root is the lowest address" invariant. This
// implementation resolves that ambiguity by never assigning a superior
// from an inbound probe: a node's own superior is only ever set by its
// own scan, which by construction only considers lower addresses.
func (d *Discoverer) HandleProbe(p Probe) bool {
	d.mu.Lock()
	if _, exists := d.h.SubordinateFor(p.NewPrincipal); !exists && len(d.h.Subordinates) >= d.Fanout {
		d.mu.Unlock()
		return false
	}
	d.h.AddSubordinate(p.NewPrincipal)
	d.mu.Unlock()
	d.recomputeAndNotify()
	return true
}

// HandleWeightReport updates the reported subtree weight for subordinate
// peer, used by [RecomputeWeights] the next time it runs.
func (d *Discoverer) HandleWeightReport(peer netip.AddrPort, weight int) {
	d.mu.Lock()
	if n, ok := d.h.SubordinateFor(peer); ok {
		n.Weight = weight
	}
	d.mu.Unlock()
	d.recomputeAndNotify()
}

func (d *Discoverer) recomputeAndNotify() {
	d.mu.Lock()
	total := 1
	if d.TotalNodes != nil {
		total = d.TotalNodes()
	}
	RecomputeWeights(&d.h, total)
	var superior *Node
	if d.h.Superior != nil {
		cp := *d.h.Superior
		superior = &cp
	}
	subs := make([]*Node, len(d.h.Subordinates))
	copy(subs, d.h.Subordinates)
	observer := d.OnWeightChange
	d.mu.Unlock()

	if observer == nil {
		return
	}
	if superior != nil {
		observer(superior.Addr, superior.Weight)
	}
	for _, n := range subs {
		observer(n.Addr, n.Weight)
	}
}

// Probe implements [Prober] by delegating to the caller-supplied dialer;
// a bare Discoverer has no network access of its own, so ProbeFunc must
// be set by the embedding netmaster.Master.
type ProbeFunc func(addr netip.AddrPort) bool

// Probe implements [Prober].
func (f ProbeFunc) Probe(addr netip.AddrPort) bool { return f(addr) }
