// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"io"

	"github.com/igankevich/factory/kernel"
)

// FrameOptions controls which optional header fields appear on a
// connection's packets. These are negotiated once at connection setup,
// not per packet (spec §4.B).
type FrameOptions struct {
	// PrependApplication enables the optional application_record field.
	PrependApplication bool
	// PrependSrcDst enables the optional source/destination endpoints.
	PrependSrcDst bool
}

// EnvelopeHeader is everything in a packet's payload that precedes the
// kernel_frame: the optional application record, the mandatory
// application id, and the optional source/destination endpoints (spec
// §6's `payload` grammar, excluding kernel_frame itself).
type EnvelopeHeader struct {
	ApplicationRecord *kernel.Application
	ApplicationID     uint64
	Source            kernel.Endpoint
	Destination       kernel.Endpoint
}

// EncodeEnvelopeHeader writes the envelope header preceding a kernel_frame.
func EncodeEnvelopeHeader(w io.Writer, h EnvelopeHeader, opts FrameOptions) error {
	if opts.PrependApplication {
		rec := kernel.Application{ID: h.ApplicationID}
		if h.ApplicationRecord != nil {
			rec = *h.ApplicationRecord
		}
		if err := EncodeApplication(w, rec); err != nil {
			return err
		}
	}
	if err := WriteUint32(w, uint32(h.ApplicationID)); err != nil {
		return err
	}
	if opts.PrependSrcDst {
		if err := EncodeEndpoint(w, h.Source); err != nil {
			return err
		}
		if err := EncodeEndpoint(w, h.Destination); err != nil {
			return err
		}
	}
	return nil
}

// DecodeEnvelopeHeader reads the envelope header preceding a kernel_frame,
// leaving r positioned at the start of the kernel_frame bytes.
func DecodeEnvelopeHeader(r io.Reader, opts FrameOptions) (EnvelopeHeader, error) {
	var h EnvelopeHeader
	if opts.PrependApplication {
		rec, err := DecodeApplication(r)
		if err != nil {
			return h, err
		}
		h.ApplicationRecord = &rec
	}
	appID, err := ReadUint32(r)
	if err != nil {
		return h, err
	}
	h.ApplicationID = uint64(appID)
	if opts.PrependSrcDst {
		if h.Source, err = DecodeEndpoint(r); err != nil {
			return h, err
		}
		if h.Destination, err = DecodeEndpoint(r); err != nil {
			return h, err
		}
	}
	return h, nil
}

// Body is a type-specific kernel payload, constructed polymorphically on
// the receiving side via [TypeRegistry] keyed by TypeID (spec §3, §6).
type Body interface {
	Encode(w io.Writer) error
	Decode(r io.Reader) error
}

// TypeRegistry maps a kernel's wire TypeID to a constructor for its
// [Body]. TypeID 0 means "no application payload" (bare routing kernel,
// e.g. the replies the protocol engine manufactures for NoPrincipalFound)
// and is never registered.
type TypeRegistry struct {
	ctors map[uint16]func() Body
}

// NewTypeRegistry returns an empty [*TypeRegistry].
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{ctors: make(map[uint16]func() Body)}
}

// Register associates id with a constructor for its [Body].
func (reg *TypeRegistry) Register(id uint16, ctor func() Body) {
	reg.ctors[id] = ctor
}

// New constructs a zero [Body] for id, or (nil, false) if unregistered.
func (reg *TypeRegistry) New(id uint16) (Body, bool) {
	ctor, ok := reg.ctors[id]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// EncodeKernel writes k's kernel_frame per spec.md §6:
//
//	kernel_frame := u16_be type_id
//	                u16_be result
//	                u64_be id
//	                u8 flags
//	                u64_be parent_id_or_pointer
//	                u64_be principal_id_or_pointer
//	                u64_be source_app
//	                u64_be target_app
//	                u8 has_deadline [|| u64_be deadline_unix_nano]
//	                ...type-specific payload...
//
// Parent and principal always serialize as bare ids: once serialized the
// direct pointers become ids (spec §3 invariant iii), so resolution is
// the receiver's job via the instance registry, never the codec's.
func EncodeKernel(w io.Writer, k *kernel.Kernel) error {
	if err := WriteUint16(w, k.TypeID); err != nil {
		return err
	}
	if err := WriteUint16(w, uint16(k.Result)); err != nil {
		return err
	}
	if err := WriteUint64(w, k.ID()); err != nil {
		return err
	}
	if err := WriteUint8(w, uint8(k.Flags)); err != nil {
		return err
	}
	if err := WriteUint64(w, k.Parent.ID()); err != nil {
		return err
	}
	if err := WriteUint64(w, k.Principal.ID()); err != nil {
		return err
	}
	if err := WriteUint64(w, k.SourceApp); err != nil {
		return err
	}
	if err := WriteUint64(w, k.TargetApp); err != nil {
		return err
	}
	hasDeadline := uint8(0)
	if !k.Deadline.IsZero() {
		hasDeadline = 1
	}
	if err := WriteUint8(w, hasDeadline); err != nil {
		return err
	}
	if hasDeadline == 1 {
		if err := WriteUint64(w, uint64(k.Deadline.UnixNano())); err != nil {
			return err
		}
	}
	if body, ok := k.Payload.(Body); ok {
		return body.Encode(w)
	}
	return nil
}

// DecodeKernel reads a kernel_frame per [EncodeKernel]. If k.TypeID has a
// registered [Body] constructor in reg, the type-specific payload is
// decoded into a fresh Body and attached as Payload; reg may be nil, in
// which case no body is decoded (the caller only wanted routing fields).
//
// Parent/Principal are returned as ID refs; resolving them against a live
// kernel requires package registry.
func DecodeKernel(r io.Reader, reg *TypeRegistry) (*kernel.Kernel, error) {
	typeID, err := ReadUint16(r)
	if err != nil {
		return nil, err
	}
	result, err := ReadUint16(r)
	if err != nil {
		return nil, err
	}
	id, err := ReadUint64(r)
	if err != nil {
		return nil, err
	}
	flags, err := ReadUint8(r)
	if err != nil {
		return nil, err
	}
	parentID, err := ReadUint64(r)
	if err != nil {
		return nil, err
	}
	principalID, err := ReadUint64(r)
	if err != nil {
		return nil, err
	}
	sourceApp, err := ReadUint64(r)
	if err != nil {
		return nil, err
	}
	targetApp, err := ReadUint64(r)
	if err != nil {
		return nil, err
	}
	hasDeadline, err := ReadUint8(r)
	if err != nil {
		return nil, err
	}
	k := kernel.New()
	k.SetID(id)
	k.TypeID = typeID
	k.Result = kernel.Result(result)
	k.Flags = kernel.Flags(flags)
	if parentID != 0 {
		k.Parent = kernel.IDRef(parentID)
	}
	if principalID != 0 {
		k.Principal = kernel.IDRef(principalID)
	}
	k.SourceApp = sourceApp
	k.TargetApp = targetApp
	if hasDeadline == 1 {
		nanos, err := ReadUint64(r)
		if err != nil {
			return nil, err
		}
		k.Deadline = deadlineFromUnixNano(nanos)
	}
	if reg != nil {
		if body, ok := reg.New(typeID); ok {
			if err := body.Decode(r); err != nil {
				return nil, err
			}
			k.Payload = body
		} else if typeID != 0 {
			return nil, ErrUnknownType
		}
	}
	return k, nil
}
