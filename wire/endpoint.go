// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"io"
	"net/netip"

	"github.com/igankevich/factory/kernel"
)

// Address families on the wire, per spec.md §6's endpoint grammar.
const (
	afUnspecified = 0
	afInet        = 1
	afInet6       = 2
	afUnix        = 3
)

// EncodeEndpoint writes e per the `endpoint` grammar of spec.md §6:
//
//	endpoint := u8 family || (family==AF_INET ? u32_be ipv4 u16_be port
//	                       :  family==AF_INET6 ? u8[16] ipv6 u16_be port
//	                       :  family==AF_UNIX ? u8 path_len || path[path_len])
func EncodeEndpoint(w io.Writer, e kernel.Endpoint) error {
	switch e.Family {
	case kernel.FamilyInet:
		if err := WriteUint8(w, afInet); err != nil {
			return err
		}
		addr4 := e.AddrPort.Addr().As4()
		if _, err := w.Write(addr4[:]); err != nil {
			return err
		}
		return WriteUint16(w, e.AddrPort.Port())
	case kernel.FamilyInet6:
		if err := WriteUint8(w, afInet6); err != nil {
			return err
		}
		addr16 := e.AddrPort.Addr().As16()
		if _, err := w.Write(addr16[:]); err != nil {
			return err
		}
		return WriteUint16(w, e.AddrPort.Port())
	case kernel.FamilyUnix:
		if err := WriteUint8(w, afUnix); err != nil {
			return err
		}
		return WritePathBytes(w, e.Path)
	default:
		return WriteUint8(w, afUnspecified)
	}
}

// DecodeEndpoint reads an endpoint per the grammar documented on
// [EncodeEndpoint].
func DecodeEndpoint(r io.Reader) (kernel.Endpoint, error) {
	family, err := ReadUint8(r)
	if err != nil {
		return kernel.Endpoint{}, err
	}
	switch family {
	case afInet:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return kernel.Endpoint{}, err
		}
		port, err := ReadUint16(r)
		if err != nil {
			return kernel.Endpoint{}, err
		}
		return kernel.InetEndpoint(netip.AddrPortFrom(netip.AddrFrom4(b), port)), nil
	case afInet6:
		var b [16]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return kernel.Endpoint{}, err
		}
		port, err := ReadUint16(r)
		if err != nil {
			return kernel.Endpoint{}, err
		}
		return kernel.InetEndpoint(netip.AddrPortFrom(netip.AddrFrom16(b), port)), nil
	case afUnix:
		path, err := ReadPathBytes(r)
		if err != nil {
			return kernel.Endpoint{}, err
		}
		return kernel.UnixEndpoint(path), nil
	default:
		return kernel.UnspecifiedEndpoint, nil
	}
}
