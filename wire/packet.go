// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Writer frames an output stream as a sequence of length-prefixed
// packets (spec §4.B).
type Writer struct {
	w io.Writer
}

// NewWriter returns a [*Writer] writing framed packets to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// BeginPacket starts a new packet. The returned [*PacketGuard] buffers the
// payload in memory; nothing reaches the underlying stream until
// [PacketGuard.Commit] succeeds. This is the "transactional packet guard"
// of spec §4.B: a packet is committed only when the payload has been
// written completely, and partial writes are retracted by simply
// discarding the in-memory buffer instead of touching the stream.
func (pw *Writer) BeginPacket() *PacketGuard {
	return &PacketGuard{w: pw.w, buf: new(bytes.Buffer)}
}

// PacketGuard accumulates one packet's payload and commits or discards it
// as a unit.
type PacketGuard struct {
	w   io.Writer
	buf *bytes.Buffer
	err error
}

// Write implements [io.Writer], buffering into the pending packet.
func (g *PacketGuard) Write(p []byte) (int, error) {
	if g.err != nil {
		return 0, g.err
	}
	return g.buf.Write(p)
}

// Fail records an encoding error, causing Commit to discard the packet.
// Subsequent writes are rejected with the recorded error.
func (g *PacketGuard) Fail(err error) {
	if g.err == nil {
		g.err = err
	}
}

// Err returns the first error recorded via Fail, if any.
func (g *PacketGuard) Err() error {
	return g.err
}

// Commit writes the packet's length prefix followed by its buffered
// payload to the underlying stream. If the payload was marked failed via
// Fail, Commit discards the packet (preserving the stream, per spec §4.B
// "errors during encoding discard the packet in progress but preserve the
// stream") and returns the recorded error without writing anything.
func (g *PacketGuard) Commit() error {
	if g.err != nil {
		return g.err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(g.buf.Len()))
	if _, err := g.w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := g.w.Write(g.buf.Bytes())
	return err
}

// Discard abandons the packet without writing anything to the stream.
func (g *PacketGuard) Discard() {
	g.buf.Reset()
	g.err = errDiscarded
}

var errDiscarded = &discardedError{}

type discardedError struct{}

func (*discardedError) Error() string { return "wire: packet discarded" }

// Reader reads length-prefixed packets from a stream (spec §4.B).
type Reader struct {
	r io.Reader
}

// NewReader returns a [*Reader] reading framed packets from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadPacket reads the next packet's length prefix and returns an
// [io.Reader] bounded to exactly that many bytes. The caller must fully
// consume the returned reader (via [io.Copy] to [io.Discard], or simply
// by letting a higher-level Decode function run to completion) before
// calling ReadPacket again; [Reader] does this automatically when used
// through [Reader.ReadPacketFunc].
func (r *Reader) ReadPacket() (io.Reader, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r.r, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}
	return io.LimitReader(r.r, int64(n)), nil
}

// ReadPacketFunc reads one packet and invokes fn with a reader bounded to
// its payload. Whatever fn leaves unread is discarded afterward, per spec
// §4.B "on exception it discards the packet's remaining bytes" / §7
// "malformed packet [...] is skipped; the connection continues".
func (r *Reader) ReadPacketFunc(fn func(io.Reader) error) error {
	body, err := r.ReadPacket()
	if err != nil {
		return err
	}
	limited := body.(*io.LimitedReader)
	ferr := fn(limited)
	if _, derr := io.Copy(io.Discard, limited); derr != nil && ferr == nil {
		ferr = derr
	}
	return ferr
}
