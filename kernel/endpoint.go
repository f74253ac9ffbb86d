// SPDX-License-Identifier: GPL-3.0-or-later

package kernel

import (
	"fmt"
	"net/netip"
)

// Family identifies the address family of an [Endpoint], matching the
// wire grammar of spec.md §6.
type Family uint8

const (
	FamilyUnspecified Family = iota
	FamilyInet
	FamilyInet6
	FamilyUnix
)

// Endpoint is a kernel source or destination address: either an
// [netip.AddrPort] (AF_INET/AF_INET6) or a Unix domain socket path.
type Endpoint struct {
	Family  Family
	AddrPort netip.AddrPort
	Path    string
}

// UnspecifiedEndpoint is the zero-value endpoint: no source/destination.
var UnspecifiedEndpoint = Endpoint{}

// InetEndpoint builds an [Endpoint] from an [netip.AddrPort].
func InetEndpoint(ap netip.AddrPort) Endpoint {
	fam := FamilyInet
	if ap.Addr().Is6() && !ap.Addr().Is4In6() {
		fam = FamilyInet6
	}
	return Endpoint{Family: fam, AddrPort: ap}
}

// UnixEndpoint builds a Unix domain socket [Endpoint].
func UnixEndpoint(path string) Endpoint {
	return Endpoint{Family: FamilyUnix, Path: path}
}

// IsZero reports whether e carries no address at all.
func (e Endpoint) IsZero() bool {
	return e.Family == FamilyUnspecified
}

// String implements [fmt.Stringer].
func (e Endpoint) String() string {
	switch e.Family {
	case FamilyUnix:
		return "unix:" + e.Path
	case FamilyInet, FamilyInet6:
		return e.AddrPort.String()
	default:
		return "<unspecified>"
	}
}

// Equal reports whether e and other denote the same endpoint.
func (e Endpoint) Equal(other Endpoint) bool {
	if e.Family != other.Family {
		return false
	}
	if e.Family == FamilyUnix {
		return e.Path == other.Path
	}
	return e.AddrPort == other.AddrPort
}

// Compare provides a deterministic total order over endpoints, used by
// transport to keep the client table in deterministic iteration order
// (spec §4.E "ties are broken by map iteration order, which is
// deterministic on socket address").
func (e Endpoint) Compare(other Endpoint) int {
	if e.Family != other.Family {
		if e.Family < other.Family {
			return -1
		}
		return 1
	}
	if e.Family == FamilyUnix {
		switch {
		case e.Path < other.Path:
			return -1
		case e.Path > other.Path:
			return 1
		default:
			return 0
		}
	}
	return e.AddrPort.Addr().Compare(other.AddrPort.Addr())*2 + compareUint16(e.AddrPort.Port(), other.AddrPort.Port())
}

func compareUint16(a, b uint16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// GoString aids debugging output in tests.
func (e Endpoint) GoString() string {
	return fmt.Sprintf("Endpoint{%s}", e.String())
}
