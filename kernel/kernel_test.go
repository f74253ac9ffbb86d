// SPDX-License-Identifier: GPL-3.0-or-later

package kernel_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/igankevich/factory/kernel"
)

func mustAddrPort(s string) netip.AddrPort {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		panic(err)
	}
	return ap
}

func TestPhaseUpstream(t *testing.T) {
	parent := kernel.New()
	parent.SetID(1)
	k := kernel.New()
	k.SetID(2)
	k.Parent = kernel.LocalRef(parent)
	require.Equal(t, kernel.Upstream, k.Phase())
}

func TestPhaseDownstream(t *testing.T) {
	parent := kernel.New()
	parent.SetID(1)
	k := kernel.New()
	k.SetID(2)
	k.Parent = kernel.LocalRef(parent)
	k.Principal = kernel.LocalRef(parent)
	k.Result = kernel.Success
	require.Equal(t, kernel.Downstream, k.Phase())
}

func TestPhaseSomewhere(t *testing.T) {
	parent := kernel.New()
	target := kernel.New()
	k := kernel.New()
	k.Parent = kernel.LocalRef(parent)
	k.Principal = kernel.LocalRef(target)
	require.Equal(t, kernel.Somewhere, k.Phase())
}

func TestPhaseEverywhere(t *testing.T) {
	k := kernel.New()
	require.Equal(t, kernel.Everywhere, k.Phase())
}

func TestReturnToParent(t *testing.T) {
	parent := kernel.New()
	parent.SetID(7)
	k := kernel.New()
	k.SetID(9)
	k.Parent = kernel.LocalRef(parent)
	k.ReturnToParent(kernel.EndpointNotConnected)
	require.Equal(t, kernel.EndpointNotConnected, k.Result)
	require.True(t, k.Principal.IsLocal())
	got, ok := k.Principal.Local()
	require.True(t, ok)
	require.Same(t, parent, got)
}

func TestMarkAsDeletedWalksParentChainOnce(t *testing.T) {
	grandparent := kernel.New()
	grandparent.SetID(1)
	parent := kernel.New()
	parent.SetID(2)
	parent.Parent = kernel.LocalRef(grandparent)
	childA := kernel.New()
	childA.SetID(3)
	childA.Parent = kernel.LocalRef(parent)
	childB := kernel.New()
	childB.SetID(4)
	childB.Parent = kernel.LocalRef(parent)

	var sink []*kernel.Kernel
	childA.MarkAsDeleted(&sink)
	childB.MarkAsDeleted(&sink)

	// childA pulls in parent and grandparent; childB's walk stops as soon
	// as it reaches the already-deleted parent, so the shared ancestors
	// are appended exactly once across both calls.
	require.Len(t, sink, 4)
	require.Contains(t, sink, childA)
	require.Contains(t, sink, parent)
	require.Contains(t, sink, grandparent)
	require.Contains(t, sink, childB)
}

func TestEqualByID(t *testing.T) {
	a := kernel.New()
	a.SetID(5)
	b := kernel.New()
	b.SetID(5)
	require.True(t, a.Equal(b))
}

func TestEqualByAddressWhenUnidentified(t *testing.T) {
	a := kernel.New()
	a.Source = kernel.InetEndpoint(mustAddrPort("10.0.0.1:9"))
	b := kernel.New()
	b.Source = kernel.InetEndpoint(mustAddrPort("10.0.0.1:9"))
	require.True(t, a.Equal(b))
}
