// SPDX-License-Identifier: GPL-3.0-or-later

// Package wire implements the length-prefixed packet framing and typed
// object codec described in spec.md §4.B and §6: a 4-byte big-endian
// length followed by a recursively-encoded payload, with a transactional
// guard so a partially-written packet never reaches the peer.
package wire

import "errors"

// ErrShortPacket names a packet whose declared length cannot be satisfied
// by the remaining bytes on the stream. No function in this package
// returns it: a payload that ends early surfaces as io.EOF or
// io.ErrUnexpectedEOF from the read that ran short.
var ErrShortPacket = errors.New("wire: short packet")

// ErrUnknownType is returned when decoding a kernel frame whose type id
// has no registered constructor in the active [TypeRegistry].
var ErrUnknownType = errors.New("wire: unknown kernel type id")

// ErrPacketTooLarge guards against a corrupt or hostile length prefix
// before the reader allocates a buffer for it.
var ErrPacketTooLarge = errors.New("wire: packet exceeds maximum size")

// MaxPacketSize bounds the length prefix accepted by [Reader.ReadPacket].
const MaxPacketSize = 64 << 20

// ErrPathTooLong is returned when encoding a Unix domain socket path that
// cannot fit in the wire grammar's u8 length prefix.
var ErrPathTooLong = errors.New("wire: unix path exceeds 255 bytes")
