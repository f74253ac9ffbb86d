// SPDX-License-Identifier: GPL-3.0-or-later

// Package netmaster owns the set of [discovery.Discoverer] instances a
// node runs, one per eligible network interface, keeping that set in sync
// as interfaces come and go (spec.md §4.H, component H).
package netmaster

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/igankevich/factory/discovery"
	"github.com/igankevich/factory/kernel"
	"github.com/igankevich/factory/logctx"
)

// HierarchyKernelType identifies a kernel carrying a [discovery.Probe] or
// weight report as its payload, the wire counterpart of direct in-process
// discoverer calls (spec §4.G messages riding the kernel transport between
// nodes that aren't directly reachable by a bare UDP/TCP probe).
const HierarchyKernelType uint16 = 2

// WeightReport is the [HierarchyKernelType] payload used to propagate a
// subtree weight up to a superior (spec §4.G weight propagation).
type WeightReport struct {
	Peer   netip.AddrPort
	Weight int
}

// Interfaces abstracts interface enumeration so tests can substitute a
// fixed set instead of depending on the host's actual network
// configuration.
type Interfaces interface {
	Interfaces() ([]net.Interface, error)
	Addrs(iface net.Interface) ([]netip.Addr, error)
}

// SystemInterfaces implements [Interfaces] against the real host network
// stack.
type SystemInterfaces struct{}

// Interfaces lists the host's network interfaces via [net.Interfaces].
func (SystemInterfaces) Interfaces() ([]net.Interface, error) {
	return net.Interfaces()
}

// Addrs returns iface's unicast addresses as [netip.Addr] values.
func (SystemInterfaces) Addrs(iface net.Interface) ([]netip.Addr, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok {
			continue
		}
		out = append(out, addr.Unmap())
	}
	return out, nil
}

// eligible reports whether an interface/address pair is a candidate for
// discovery: up, not loopback, not link-local. net.Interface.Flags and
// netip.Addr's classification methods already cover this portably, so no
// per-OS syscall split is needed here — unlike errclass, which classifies
// opaque syscall.Errno values the standard library doesn't categorize for
// us.
func eligible(iface net.Interface, addr netip.Addr) bool {
	if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
		return false
	}
	return !addr.IsLoopback() && !addr.IsLinkLocalUnicast() && !addr.IsLinkLocalMulticast()
}

// DiscovererFactory builds a [*discovery.Discoverer] for one eligible
// interface address, letting the caller wire Port, Fanout, Scanner and
// OnWeightChange without netmaster needing to know discovery's full
// configuration surface.
type DiscovererFactory func(iface netip.Addr, listen netip.AddrPort) *discovery.Discoverer

// Master polls the host's network interfaces on a fixed interval and keeps
// one running [*discovery.Discoverer] per eligible interface address,
// starting new ones and stopping ones whose interface disappeared (spec
// §4.H).
type Master struct {
	Interfaces   Interfaces
	Port         uint16
	PollInterval time.Duration
	NewDiscoverer DiscovererFactory
	Logger       logctx.SLogger

	mu          sync.Mutex
	discoverers map[netip.Addr]*discovery.Discoverer
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewMaster returns a [*Master] with teacher-style defaults: a 30s poll
// interval and system interface enumeration.
func NewMaster(newDiscoverer DiscovererFactory, port uint16) *Master {
	return &Master{
		Interfaces:    SystemInterfaces{},
		Port:          port,
		PollInterval:  30 * time.Second,
		NewDiscoverer: newDiscoverer,
		Logger:        logctx.DefaultSLogger(),
		discoverers:   make(map[netip.Addr]*discovery.Discoverer),
	}
}

// Start runs the periodic interface-poll loop until ctx is canceled or
// Stop is called.
func (m *Master) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.PollInterval)
		defer ticker.Stop()
		m.PollOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				m.stopAll()
				return
			case <-ticker.C:
				m.PollOnce(ctx)
			}
		}
	}()
}

// Stop cancels the poll loop, waits for it to exit, and stops every
// discoverer it owns.
func (m *Master) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// PollOnce enumerates interfaces synchronously, starting discoverers for
// newly eligible addresses and stopping ones whose address disappeared.
// Start's loop calls this internally; tests call it directly.
func (m *Master) PollOnce(ctx context.Context) {
	ifaces, err := m.Interfaces.Interfaces()
	if err != nil {
		m.Logger.Warn("netmaster: list interfaces failed", "error", err)
		return
	}

	current := make(map[netip.Addr]struct{})
	for _, iface := range ifaces {
		addrs, err := m.Interfaces.Addrs(iface)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if !eligible(iface, addr) {
				continue
			}
			current[addr] = struct{}{}
			m.ensureDiscoverer(ctx, addr)
		}
	}
	m.pruneDiscoverers(current)
}

func (m *Master) ensureDiscoverer(ctx context.Context, addr netip.Addr) {
	m.mu.Lock()
	if _, ok := m.discoverers[addr]; ok {
		m.mu.Unlock()
		return
	}
	d := m.NewDiscoverer(addr, netip.AddrPortFrom(addr, m.Port))
	m.discoverers[addr] = d
	m.mu.Unlock()
	d.Start(ctx)
}

func (m *Master) pruneDiscoverers(current map[netip.Addr]struct{}) {
	m.mu.Lock()
	var stale []*discovery.Discoverer
	for addr, d := range m.discoverers {
		if _, ok := current[addr]; !ok {
			stale = append(stale, d)
			delete(m.discoverers, addr)
		}
	}
	m.mu.Unlock()
	for _, d := range stale {
		d.Stop()
	}
}

func (m *Master) stopAll() {
	m.mu.Lock()
	all := make([]*discovery.Discoverer, 0, len(m.discoverers))
	for addr, d := range m.discoverers {
		all = append(all, d)
		delete(m.discoverers, addr)
	}
	m.mu.Unlock()
	for _, d := range all {
		d.Stop()
	}
}

// discovererFor returns the discoverer owning iface, if any is running.
func (m *Master) discovererFor(iface netip.Addr) (*discovery.Discoverer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.discoverers[iface]
	return d, ok
}

// RouteProbe dispatches an inbound probe to the discoverer running on
// p.Interface, reporting whether it was accepted.
func (m *Master) RouteProbe(p discovery.Probe) (bool, error) {
	d, ok := m.discovererFor(p.Interface)
	if !ok {
		return false, fmt.Errorf("netmaster: no discoverer for interface %s", p.Interface)
	}
	return d.HandleProbe(p), nil
}

// RouteHierarchyKernel decodes a [HierarchyKernelType] kernel's payload and
// applies it to the discoverer owning the kernel's destination interface
// address (spec §4.G messages carried over the kernel transport instead of
// a direct probe).
func (m *Master) RouteHierarchyKernel(k *kernel.Kernel) error {
	if k.TypeID != HierarchyKernelType {
		return fmt.Errorf("netmaster: unexpected kernel type %d", k.TypeID)
	}
	addr := k.Destination.AddrPort.Addr()
	d, ok := m.discovererFor(addr)
	if !ok {
		return fmt.Errorf("netmaster: no discoverer for interface %s", addr)
	}
	switch payload := k.Payload.(type) {
	case discovery.Probe:
		d.HandleProbe(payload)
	case WeightReport:
		d.HandleWeightReport(payload.Peer, payload.Weight)
	default:
		return fmt.Errorf("netmaster: unrecognized hierarchy payload %T", k.Payload)
	}
	return nil
}
