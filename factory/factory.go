// SPDX-License-Identifier: GPL-3.0-or-later

package factory

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/igankevich/factory/discovery"
	"github.com/igankevich/factory/kernel"
	"github.com/igankevich/factory/logctx"
	"github.com/igankevich/factory/netmaster"
	"github.com/igankevich/factory/process"
	"github.com/igankevich/factory/registry"
	"github.com/igankevich/factory/transport"
)

// Factory composes the local worker pool, the socket pipeline, any
// process-handler pipelines, a timer pipeline, and network discovery into
// one running node (spec §4.I), wired the way basic_factory.cc wires its
// C++ counterpart:
//
//	local.error_pipeline  = remote
//	remote.native_pipeline = local
//	remote.foreign_pipeline = remote (via Factory.Forward)
type Factory struct {
	Local     *Local
	Remote    *transport.Pipeline
	Processes []*process.Handler
	Timer     *TimerPipeline
	Master    *netmaster.Master
	Registry  *registry.Registry

	Config *Config
	Logger logctx.SLogger

	mu     sync.Mutex
	routes map[uint64]*transport.Client // SelfApplication -> route, for Forward
	logs   map[string]*TransactionLog
}

// drainPassInterval is the pause between Stop's drain-pass checks.
const drainPassInterval = 20 * time.Millisecond

// New composes a [*Factory] from cfg. Callers still need to register
// kernel types (f.Local.Handlers), add listeners/clients to f.Remote, and
// optionally set f.Master before calling Start.
func New(cfg *Config) *Factory {
	if cfg == nil {
		cfg = NewConfig()
	}
	reg := registry.New()
	local := NewLocal()
	local.Workers = cfg.Workers
	local.PinWorkers = cfg.PinWorkers
	local.Logger = cfg.Logger

	remote := transport.NewPipeline(local, reg)
	remote.Logger = cfg.Logger
	remote.ErrClassifier = cfg.ErrClassifier

	f := &Factory{
		Local:    local,
		Remote:   remote,
		Registry: reg,
		Config:   cfg,
		Logger:   cfg.Logger,
		routes:   make(map[uint64]*transport.Client),
		logs:     make(map[string]*TransactionLog),
	}
	local.ErrorPipeline = f
	f.Timer = NewTimerPipeline(local)
	return f
}

// RouteLocal implements [proto.Router] by delegating to the remote
// pipeline's own local-delivery path.
func (f *Factory) RouteLocal(k *kernel.Kernel) {
	f.Remote.RouteLocal(k)
}

// RouteUpstream implements [proto.Router], the target of
// Local.ErrorPipeline: a kernel Local couldn't finish delivering locally
// is handed to the remote pipeline's general "send onward" path.
func (f *Factory) RouteUpstream(k *kernel.Kernel) error {
	return f.Remote.RouteUpstream(k)
}

// RegisterRoute records that packets for appID should forward to c,
// populated as connections to other applications are established. This
// is the lookup Forward needs and that a bare *transport.Pipeline has no
// place to keep (see transport.Pipeline.Forward's doc comment).
func (f *Factory) RegisterRoute(appID uint64, c *transport.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[appID] = c
}

// Forward implements [proto.Router] for transit packets: relay verbatim
// to whichever connection owns appID (spec §4.D "forwarded verbatim"),
// the role basic_factory.cc gives remote.foreign_pipeline(&remote).
func (f *Factory) Forward(appID uint64, source kernel.Endpoint, payload []byte) error {
	f.mu.Lock()
	c, ok := f.routes[appID]
	f.mu.Unlock()
	if !ok || c.Engine == nil {
		return fmt.Errorf("factory: no route for application %d", appID)
	}
	return c.Engine.WriteRaw(appID, source, payload)
}

// Start brings the composed pipelines up in dependency order: local
// first (so arriving kernels have somewhere to execute), then process
// pipelines, then the timer, then discovery (spec §4.I). The remote
// pipeline runs no goroutine of its own and has nothing to start.
func (f *Factory) Start(ctx context.Context) error {
	f.Local.Start()
	for _, proc := range f.Processes {
		go func(p *process.Handler) {
			if err := p.Run(); err != nil {
				f.Logger.Warn("factory: process pipeline ended", "error", err)
			}
		}(proc)
	}
	f.Timer.Start()
	if f.Master != nil {
		f.Master.Start(ctx)
	}
	return nil
}

// Stop tears pipelines down in reverse dependency order, bounded by
// Config.DrainPasses rounds of giving each pipeline a chance to flush
// in-flight kernels (spec §5's shutdown drain-pass contract).
func (f *Factory) Stop() error {
	if f.Master != nil {
		f.Master.Stop()
	}
	passes := f.Config.DrainPasses
	if passes <= 0 {
		passes = 1
	}
	for i := 0; i < passes; i++ {
		if f.Registry.Len() == 0 {
			break
		}
		time.Sleep(drainPassInterval)
	}
	if err := f.Timer.Stop(); err != nil {
		return err
	}
	for _, proc := range f.Processes {
		if err := proc.Close(); err != nil {
			f.Logger.Warn("factory: closing process pipeline failed", "error", err)
		}
	}
	return f.Local.Stop()
}

// Wait blocks until the local worker pool has drained, matching spec
// §4.I's Start/Stop/Wait trio.
func (f *Factory) Wait() error {
	return f.Local.Wait()
}

// AddDiscoverer sets up interface-scoped discovery, constructing f.Master
// on first use (Start starts it), and wires each discoverer's weight
// reports into the matching remote client's MaxWeight (component G →
// component E, spec §2) unless the discoverer already has an
// OnWeightChange observer. The master polls at
// Config.NetworkInterfaceUpdateInterval when that is positive.
func (f *Factory) AddDiscoverer(newDiscoverer netmaster.DiscovererFactory, port uint16) {
	if f.Master == nil {
		observer := f.WireWeightObserver()
		f.Master = netmaster.NewMaster(func(iface netip.Addr, listen netip.AddrPort) *discovery.Discoverer {
			d := newDiscoverer(iface, listen)
			if d.OnWeightChange == nil {
				d.OnWeightChange = observer
			}
			return d
		}, port)
		f.Master.Logger = f.Logger
		if f.Config.NetworkInterfaceUpdateInterval > 0 {
			f.Master.PollInterval = f.Config.NetworkInterfaceUpdateInterval
		}
	}
}

// WireWeightObserver returns a [discovery.WeightObserver] that updates the
// MaxWeight of whichever remote client is connected to peer, the concrete
// glue discovery's doc comment describes but leaves to the composing
// package to wire.
func (f *Factory) WireWeightObserver() discovery.WeightObserver {
	return func(peer netip.AddrPort, maxWeight int) {
		if c, ok := f.Remote.ClientFor(kernel.InetEndpoint(peer)); ok {
			c.MaxWeight = maxWeight
		}
	}
}
