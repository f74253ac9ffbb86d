// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"sort"
	"sync"

	"github.com/igankevich/factory/kernel"
	"github.com/igankevich/factory/logctx"
	"github.com/igankevich/factory/registry"
)

// ErrNoRoute is returned by RouteDestination (and so by RouteUpstream for
// a Downstream kernel) when no client exists for a destination.
var ErrNoRoute = errors.New("transport: no route to destination")

// LocalRouter is the worker pool a Pipeline hands kernels to when
// SelectNeighbour decides "local" (spec §4.E step 1/2).
type LocalRouter interface {
	RouteLocal(k *kernel.Kernel)
}

// Route is the outcome of neighbour selection: either a specific client or
// the local worker pool.
type Route struct {
	Client *Client
	Local  bool
}

// Pipeline is the single dispatcher owning a node's client and server
// tables (spec §4.E). Every mutating method takes the pipeline lock,
// reproducing the single-writer invariant of spec §5 without a literal
// event-loop/epoll translation: the lock plays the role the spec's single
// I/O thread plays by construction.
type Pipeline struct {
	mu      sync.Mutex
	clients []*Client // kept sorted by Client.Addr.Compare (spec's "ordered map")
	servers []*Server

	unixIDs *kernel.IDRange

	Registry *registry.Registry
	Local    LocalRouter

	Logger        logctx.SLogger
	ErrClassifier logctx.ErrClassifier
}

// NewPipeline returns an empty [*Pipeline] routing local deliveries to
// local and resolving principals against reg.
func NewPipeline(local LocalRouter, reg *registry.Registry) *Pipeline {
	return &Pipeline{
		unixIDs:       kernel.NewIDRange(1, 1<<32),
		Registry:      reg,
		Local:         local,
		Logger:        logctx.DefaultSLogger(),
		ErrClassifier: logctx.DefaultErrClassifier,
	}
}

// AddClient inserts c into the ordered client table, keeping
// [Client.Addr] ordering (spec §4.E "ordered map socket_address →
// client").
func (p *Pipeline) AddClient(c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.insertClientLocked(c)
}

func (p *Pipeline) insertClientLocked(c *Client) {
	i := sort.Search(len(p.clients), func(i int) bool {
		return p.clients[i].Addr.Compare(c.Addr) >= 0
	})
	p.clients = append(p.clients, nil)
	copy(p.clients[i+1:], p.clients[i:])
	p.clients[i] = c
}

// RemoveClient drops c from the client table.
func (p *Pipeline) RemoveClient(c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.clients {
		if existing == c {
			p.clients = append(p.clients[:i], p.clients[i+1:]...)
			return
		}
	}
}

// ClientFor returns the client connected to addr, if any.
func (p *Pipeline) ClientFor(addr kernel.Endpoint) (*Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		if c.Addr.Equal(addr) {
			return c, true
		}
	}
	return nil, false
}

// AddServer registers a listening socket covering subnet.
func (p *Pipeline) AddServer(s *Server) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.servers = append(p.servers, s)
}

// SelectNeighbour implements the three-step neighbour selection algorithm
// of spec §4.E verbatim for upstream kernels with no fixed destination.
// source excludes the client the kernel arrived from, if any.
func (p *Pipeline) SelectNeighbour(k *kernel.Kernel, allowLocal bool, source *Client) Route {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := p.startedClientsLocked()
	if len(started) == 0 {
		return Route{Local: true}
	}

	allFull := true
	for _, c := range started {
		if !c.IsFull() {
			allFull = false
			break
		}
	}
	if allFull {
		for _, c := range started {
			c.Weight = 0
		}
		if allowLocal && !k.Flags.Has(kernel.CarriesParent) {
			return Route{Local: true}
		}
	}

	for _, c := range started {
		if c == source || c.IsFull() {
			continue
		}
		c.Weight++
		return Route{Client: c}
	}
	return Route{Local: allowLocal}
}

func (p *Pipeline) startedClientsLocked() []*Client {
	out := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		if c.State == Started {
			out = append(out, c)
		}
	}
	return out
}

// RouteDestination implements the downstream/point-to-point/
// upstream-with-fixed-destination branch of spec §4.E: look up the client
// for dst, returning [ErrNoRoute] if none has been established yet (a
// real pipeline would dial it; that policy lives in the caller, which can
// retry after establishing a connection).
func (p *Pipeline) RouteDestination(dst kernel.Endpoint) (*Client, error) {
	c, ok := p.ClientFor(dst)
	if !ok {
		return nil, ErrNoRoute
	}
	return c, nil
}

// Broadcast returns every started client except source, for the
// Everywhere phase (spec §4.E "Broadcast: iterate all clients except the
// source").
func (p *Pipeline) Broadcast(source *Client) []*Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		if c.State == Started && c != source {
			out = append(out, c)
		}
	}
	return out
}

// Accept implements the incumbent-eviction rule of spec §4.E: if a client
// is already registered under addr, the one with the lower bind port
// wins. The deposed connection's buffers are drained via
// RecoverKernels(true): its upstream-bound kernels are resubmitted through
// RouteUpstream, which re-runs neighbour selection and so may place them
// on the replacement, on another client, or in the local pool.
func (p *Pipeline) Accept(addr kernel.Endpoint, bindPort uint16, candidate *Client) (*Client, error) {
	p.mu.Lock()
	var incumbent *Client
	for _, c := range p.clients {
		if c.Addr.Equal(addr) {
			incumbent = c
			break
		}
	}
	if incumbent == nil {
		p.insertClientLocked(candidate)
		p.mu.Unlock()
		return candidate, nil
	}
	if incumbent.BindPort <= bindPort {
		p.mu.Unlock()
		return incumbent, ErrIncumbentWins
	}
	for i, c := range p.clients {
		if c == incumbent {
			p.clients[i] = candidate
			break
		}
	}
	p.mu.Unlock()

	if incumbent.Engine != nil {
		for _, k := range incumbent.Engine.RecoverKernels(true) {
			_ = k // already dispatched to RouteLocal/RouteUpstream by RecoverKernels
		}
	}
	return candidate, nil
}

// ErrIncumbentWins is returned by Accept when an existing connection's
// bind port beats the candidate's, per spec §4.E's eviction rule.
var ErrIncumbentWins = errors.New("transport: incumbent connection has lower bind port")

// AssignID implements spec §4.E's id-issuance rule: the server whose
// interface subnet contains dst's address supplies the id; if none
// matches, the first registered server does; a Unix-domain destination
// draws from the pipeline-wide unix counter instead.
func (p *Pipeline) AssignID(dst kernel.Endpoint) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if dst.Family == kernel.FamilyUnix {
		return p.unixIDs.Next()
	}
	if len(p.servers) == 0 {
		return p.unixIDs.Next()
	}
	addr := dst.AddrPort.Addr()
	for _, s := range p.servers {
		if s.Subnet.IsValid() && s.Subnet.Contains(addr) {
			return s.IDRange.Next()
		}
	}
	return p.servers[0].IDRange.Next()
}

// RouteLocal implements [proto.Router] by delivering to the local worker
// pool.
func (p *Pipeline) RouteLocal(k *kernel.Kernel) {
	p.Local.RouteLocal(k)
}

// RouteUpstream implements [proto.Router]'s general "send this kernel
// onward, I can't finish it here" hook: used both by recovery (always
// Upstream-phase kernels) and by factory.Local's ErrorPipeline wiring
// (any phase a locally executed kernel can come out in). Dispatch follows
// k.Phase(): Upstream/Somewhere re-run neighbour selection; Downstream
// addresses the client matching k.Destination directly, since a reply's
// destination is already fixed; Everywhere broadcasts to every started
// client.
func (p *Pipeline) RouteUpstream(k *kernel.Kernel) error {
	switch k.Phase() {
	case kernel.Downstream:
		client, err := p.RouteDestination(k.Destination)
		if err != nil {
			return err
		}
		return client.Engine.Send(k)
	case kernel.Everywhere:
		for _, c := range p.Broadcast(nil) {
			if err := c.Engine.Send(k); err != nil {
				p.Logger.Warn("transport: broadcast send failed", "client", c.Addr, "error", err)
			}
		}
		return nil
	default:
		route := p.SelectNeighbour(k, true, nil)
		if route.Local {
			p.Local.RouteLocal(k)
			return nil
		}
		return route.Client.Engine.Send(k)
	}
}

// Forward implements [proto.Router] for transit packets addressed to an
// application other than this node's own: spec §4.D/§6 require forwarding
// verbatim, but a bare *Pipeline* has no transit table of its own — the
// owning factory.Factory composes one. Embedders that need transit
// forwarding should wrap Pipeline and override Router with their own type.
func (p *Pipeline) Forward(appID uint64, source kernel.Endpoint, payload []byte) error {
	return errForwardUnsupported
}

var errForwardUnsupported = errors.New("transport: this pipeline does not forward transit packets")
