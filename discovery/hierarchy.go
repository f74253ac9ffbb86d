// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery implements hierarchical cluster discovery: scanner-
// driven superior election, the subordinate set, and weight propagation
// (spec.md §4.G).
package discovery

import "net/netip"

// Node is one edge in a [Hierarchy]: a peer address and the weight
// reported along that edge (the size of the subtree rooted there).
type Node struct {
	Addr   netip.AddrPort
	Weight int
}

// Hierarchy is one interface's view of the cluster tree (spec §4.G "the
// node's view of the tree").
type Hierarchy struct {
	Interface    netip.Addr
	Listen       netip.AddrPort
	Superior     *Node
	Subordinates []*Node
}

// SubordinateFor returns the subordinate node at addr, if any.
func (h *Hierarchy) SubordinateFor(addr netip.AddrPort) (*Node, bool) {
	for _, n := range h.Subordinates {
		if n.Addr == addr {
			return n, true
		}
	}
	return nil, false
}

// AddSubordinate registers addr as a subordinate with initial weight 1
// (a leaf until it reports a larger subtree of its own), or returns the
// existing node if already present.
func (h *Hierarchy) AddSubordinate(addr netip.AddrPort) *Node {
	if n, ok := h.SubordinateFor(addr); ok {
		return n
	}
	n := &Node{Addr: addr, Weight: 1}
	h.Subordinates = append(h.Subordinates, n)
	return n
}

// RemoveSubordinate drops addr from the subordinate set.
func (h *Hierarchy) RemoveSubordinate(addr netip.AddrPort) {
	for i, n := range h.Subordinates {
		if n.Addr == addr {
			h.Subordinates = append(h.Subordinates[:i], h.Subordinates[i+1:]...)
			return
		}
	}
}

// RecomputeWeights implements spec §4.G's weight formulas:
//
//	subordinate (subtree) weight = 1 + Σ(subordinate's subordinates)
//	superior-link weight         = total_nodes_observed − weight(this subtree)
//
// Each [Node.Weight] in h.Subordinates already holds that subordinate's
// own subtree weight as last reported by it (see [Discoverer.HandleWeightReport]),
// so this is a direct sum rather than a recursive walk — propagation
// happens over time via the periodic scan ticker, not in one call.
func RecomputeWeights(h *Hierarchy, totalNodes int) (subtreeWeight, superiorWeight int) {
	subtreeWeight = 1
	for _, n := range h.Subordinates {
		subtreeWeight += n.Weight
	}
	superiorWeight = totalNodes - subtreeWeight
	if h.Superior != nil {
		h.Superior.Weight = superiorWeight
	}
	return subtreeWeight, superiorWeight
}
