// SPDX-License-Identifier: GPL-3.0-or-later

package discovery_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/igankevich/factory/discovery"
)

// wireProbe links one discoverer's outbound scan directly to another's
// HandleProbe, standing in for the network round trip a real deployment
// would make (netmaster.Master owns that wiring in production).
func wireProbe(self netip.AddrPort, peer *discovery.Discoverer) discovery.ProbeFunc {
	return func(target netip.AddrPort) bool {
		return peer.HandleProbe(discovery.Probe{NewPrincipal: self})
	}
}

func addrPort(s string, port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr(s), port)
}

// TestTwoNodeElection reproduces spec.md's two-node seed scenario: the
// lower address (10.0.0.1) has nothing below it and stays root; the
// higher address (10.0.0.2) finds and adopts it as superior.
func TestTwoNodeElection(t *testing.T) {
	const port = 9000
	addr1 := netip.MustParseAddr("10.0.0.1")
	addr2 := netip.MustParseAddr("10.0.0.2")
	peers := []netip.Addr{addr1, addr2}

	d1 := discovery.NewDiscoverer(addr1, addrPort("10.0.0.1", port))
	d2 := discovery.NewDiscoverer(addr2, addrPort("10.0.0.2", port))
	d1.TotalNodes = func() int { return 2 }
	d2.TotalNodes = func() int { return 2 }

	d1.Scanner = discovery.Scanner{Self: addr1, Peers: peers, Prober: wireProbe(addrPort("10.0.0.1", port), d2)}
	d2.Scanner = discovery.Scanner{Self: addr2, Peers: peers, Prober: wireProbe(addrPort("10.0.0.2", port), d1)}
	d1.Port = port
	d2.Port = port

	d1.ScanOnce()
	d2.ScanOnce()

	h1 := d1.Hierarchy()
	h2 := d2.Hierarchy()

	require.Nil(t, h1.Superior, "lowest address must remain root")
	require.Len(t, h1.Subordinates, 1)
	require.Equal(t, addrPort("10.0.0.2", port), h1.Subordinates[0].Addr)

	require.NotNil(t, h2.Superior)
	require.Equal(t, addrPort("10.0.0.1", port), h2.Superior.Addr)
	require.Empty(t, h2.Subordinates)
}

// TestFanoutRejectsBeyondCapacity checks that a node already holding
// Fanout subordinates refuses a new probe rather than growing unbounded.
func TestFanoutRejectsBeyondCapacity(t *testing.T) {
	const port = 9000
	root := netip.MustParseAddr("10.0.0.1")
	d := discovery.NewDiscoverer(root, addrPort("10.0.0.1", port))
	d.Fanout = 1

	accepted := d.HandleProbe(discovery.Probe{NewPrincipal: addrPort("10.0.0.2", port)})
	require.True(t, accepted)

	rejected := d.HandleProbe(discovery.Probe{NewPrincipal: addrPort("10.0.0.3", port)})
	require.False(t, rejected)

	// Re-probing from an already-accepted subordinate is idempotent, not a
	// second slot being consumed.
	again := d.HandleProbe(discovery.Probe{NewPrincipal: addrPort("10.0.0.2", port)})
	require.True(t, again)

	h := d.Hierarchy()
	require.Len(t, h.Subordinates, 1)
}

// TestRecomputeWeightsPropagation checks the subtree/superior weight
// formulas directly against a small fixed hierarchy.
func TestRecomputeWeightsPropagation(t *testing.T) {
	h := discovery.Hierarchy{
		Superior: &discovery.Node{Addr: addrPort("10.0.0.1", 9000)},
		Subordinates: []*discovery.Node{
			{Addr: addrPort("10.0.0.3", 9000), Weight: 2},
			{Addr: addrPort("10.0.0.4", 9000), Weight: 1},
		},
	}
	subtree, superior := discovery.RecomputeWeights(&h, 8)
	require.Equal(t, 1+2+1, subtree)
	require.Equal(t, 8-subtree, superior)
	require.Equal(t, superior, h.Superior.Weight)
}

// TestOnAddRemoveClient checks that subordinate tracking follows client
// add/remove notifications.
func TestOnAddRemoveClient(t *testing.T) {
	self := netip.MustParseAddr("10.0.0.5")
	d := discovery.NewDiscoverer(self, addrPort("10.0.0.5", 9000))
	peer := addrPort("10.0.0.1", 9000)

	d.OnAddClient(peer)
	h := d.Hierarchy()
	require.Len(t, h.Subordinates, 1)

	d.OnRemoveClient(peer)
	h = d.Hierarchy()
	require.Empty(t, h.Subordinates)
}
