// SPDX-License-Identifier: GPL-3.0-or-later

package wire_test

import (
	"bytes"
	"fmt"
	"io"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/igankevich/factory/kernel"
	"github.com/igankevich/factory/wire"
)

// stringBody is a minimal [wire.Body] used to exercise polymorphic
// construction via [wire.TypeRegistry].
type stringBody struct {
	Value string
}

func (b *stringBody) Encode(w io.Writer) error {
	return wire.WriteString(w, b.Value)
}

func (b *stringBody) Decode(r io.Reader) error {
	s, err := wire.ReadString(r)
	if err != nil {
		return err
	}
	b.Value = s
	return nil
}

func TestEndpointRoundTripInet(t *testing.T) {
	var buf bytes.Buffer
	ep := kernel.InetEndpoint(netip.MustParseAddrPort("10.0.0.2:7000"))
	require.NoError(t, wire.EncodeEndpoint(&buf, ep))
	got, err := wire.DecodeEndpoint(&buf)
	require.NoError(t, err)
	require.True(t, ep.Equal(got))
}

func TestEndpointRoundTripInet6(t *testing.T) {
	var buf bytes.Buffer
	ep := kernel.InetEndpoint(netip.MustParseAddrPort("[fe80::1]:53"))
	require.NoError(t, wire.EncodeEndpoint(&buf, ep))
	got, err := wire.DecodeEndpoint(&buf)
	require.NoError(t, err)
	require.True(t, ep.Equal(got))
}

func TestEndpointRoundTripUnix(t *testing.T) {
	var buf bytes.Buffer
	ep := kernel.UnixEndpoint("/run/factory.sock")
	require.NoError(t, wire.EncodeEndpoint(&buf, ep))
	got, err := wire.DecodeEndpoint(&buf)
	require.NoError(t, err)
	require.True(t, ep.Equal(got))
}

func TestApplicationRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	app := kernel.Application{ID: 42, ExecPath: "/usr/bin/autoreg"}
	require.NoError(t, wire.EncodeApplication(&buf, app))
	got, err := wire.DecodeApplication(&buf)
	require.NoError(t, err)
	require.Equal(t, app.ID, got.ID)
	require.Equal(t, app.ExecPath, got.ExecPath)
}

// TestKernelRoundTrip is Testable Property 1 from spec.md §8: for any
// kernel k, decode(encode(k)) equals k in every header field and type id,
// and preserves flags bit-for-bit.
func TestKernelRoundTrip(t *testing.T) {
	reg := wire.NewTypeRegistry()
	reg.Register(5, func() wire.Body { return &stringBody{} })

	k := kernel.New()
	k.SetID(123)
	k.TypeID = 5
	k.Result = kernel.Success
	k.Flags = kernel.CarriesParent | kernel.Priority
	k.Parent = kernel.IDRef(11)
	k.Principal = kernel.IDRef(22)
	k.SourceApp = 1
	k.TargetApp = 2
	k.Deadline = time.Unix(1700000000, 123456000).UTC()
	k.Payload = &stringBody{Value: "payload"}

	var buf bytes.Buffer
	require.NoError(t, wire.EncodeKernel(&buf, k))

	got, err := wire.DecodeKernel(&buf, reg)
	require.NoError(t, err)

	require.Equal(t, k.ID(), got.ID())
	require.Equal(t, k.TypeID, got.TypeID)
	require.Equal(t, k.Result, got.Result)
	require.Equal(t, k.Flags, got.Flags)
	require.Equal(t, k.Parent.ID(), got.Parent.ID())
	require.Equal(t, k.Principal.ID(), got.Principal.ID())
	require.Equal(t, k.SourceApp, got.SourceApp)
	require.Equal(t, k.TargetApp, got.TargetApp)
	require.True(t, k.Deadline.Equal(got.Deadline))
	require.Equal(t, k.Payload.(*stringBody).Value, got.Payload.(*stringBody).Value)
}

func TestDecodeKernelUnregisteredTypeErrors(t *testing.T) {
	k := kernel.New()
	k.TypeID = 99
	var buf bytes.Buffer
	require.NoError(t, wire.EncodeKernel(&buf, k))

	reg := wire.NewTypeRegistry()
	_, err := wire.DecodeKernel(&buf, reg)
	require.ErrorIs(t, err, wire.ErrUnknownType)
}

func TestPacketGuardDiscardLeavesStreamUntouched(t *testing.T) {
	var stream bytes.Buffer
	pw := wire.NewWriter(&stream)

	g := pw.BeginPacket()
	require.NoError(t, wire.WriteString(g, "partial"))
	g.Discard()
	require.Error(t, g.Commit())
	require.Zero(t, stream.Len())

	g2 := pw.BeginPacket()
	require.NoError(t, wire.WriteString(g2, "full"))
	require.NoError(t, g2.Commit())
	require.NotZero(t, stream.Len())
}

func TestPacketGuardFailDiscardsButPreservesStream(t *testing.T) {
	var stream bytes.Buffer
	pw := wire.NewWriter(&stream)

	g := pw.BeginPacket()
	require.NoError(t, wire.WriteString(g, "oops"))
	g.Fail(io.ErrClosedPipe)
	require.ErrorIs(t, g.Commit(), io.ErrClosedPipe)
	require.Zero(t, stream.Len(), "a failed packet must never reach the stream")
}

func TestReaderSkipsRemainderOnDecodeError(t *testing.T) {
	var stream bytes.Buffer
	pw := wire.NewWriter(&stream)

	// First packet: malformed body (claims a string longer than present).
	g := pw.BeginPacket()
	require.NoError(t, wire.WriteUint16(g, 999)) // bogus length prefix for a string
	require.NoError(t, g.Commit())

	// Second packet: a well-formed string, to prove the reader recovered.
	g2 := pw.BeginPacket()
	require.NoError(t, wire.WriteString(g2, "next"))
	require.NoError(t, g2.Commit())

	pr := wire.NewReader(&stream)

	var firstErr error
	err := pr.ReadPacketFunc(func(r io.Reader) error {
		_, firstErr = wire.ReadString(r)
		return firstErr
	})
	require.Error(t, err)

	var second string
	err = pr.ReadPacketFunc(func(r io.Reader) error {
		s, err := wire.ReadString(r)
		second = s
		return err
	})
	require.NoError(t, err)
	require.Equal(t, "next", second)
}

func ExampleEncodeKernel() {
	k := kernel.New()
	k.SetID(7)
	k.Result = kernel.Success

	var buf bytes.Buffer
	_ = wire.EncodeKernel(&buf, k)

	got, _ := wire.DecodeKernel(&buf, nil)
	fmt.Println(got.ID(), got.Result)
	// Output: 7 success
}
