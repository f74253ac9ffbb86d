// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import "net/netip"

// Probe carries an election message between peers (spec §4.G): the
// interface address it concerns, what the sender currently regards as its
// superior, and the sender's own address — "please consider me as your
// subordinate under this superior".
type Probe struct {
	Interface    netip.Addr
	OldPrincipal netip.AddrPort
	NewPrincipal netip.AddrPort
}
