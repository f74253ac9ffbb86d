// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"net/netip"
	"sort"
)

// Prober sends a lightweight probe to addr and reports whether it was
// accepted (spec §4.G "sending a lightweight probe; the first peer that
// successfully accepts the probe becomes the tentative superior").
type Prober interface {
	Probe(addr netip.AddrPort) bool
}

// Scanner enumerates the candidate peers strictly below a node's own
// address within an interface's network, and walks them from highest to
// lowest looking for a superior (spec §4.G verbatim). Peers is the set of
// addresses known to participate in this interface's network — supplied
// by whatever membership mechanism the deployment uses (a static seed
// list, or addresses learned from prior probes), not derived by
// enumerating the whole subnet.
type Scanner struct {
	Self   netip.Addr
	Peers  []netip.Addr
	Prober Prober
}

// Candidates returns every peer address strictly less than s.Self, sorted
// from highest to lowest — the order the scanner probes in.
func (s Scanner) Candidates() []netip.Addr {
	out := make([]netip.Addr, 0, len(s.Peers))
	for _, addr := range s.Peers {
		if addr.Compare(s.Self) < 0 {
			out = append(out, addr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Compare(out[j]) > 0
	})
	return out
}

// FindSuperior walks candidates from highest to lowest, probing each at
// port, and returns the first to accept.
func (s Scanner) FindSuperior(port uint16) (netip.AddrPort, bool) {
	for _, addr := range s.Candidates() {
		target := netip.AddrPortFrom(addr, port)
		if s.Prober.Probe(target) {
			return target, true
		}
	}
	return netip.AddrPort{}, false
}
