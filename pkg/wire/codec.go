// Package wire implements the length-framed binary Request/Response codec
// exchanged between server and client. Each message is encoded with
// google.golang.org/protobuf/encoding/protowire's low-level varint/bytes
// primitives directly (no generated stubs), field-tagged by the numbers
// documented alongside each type below.
//
// A decoded Packet carries only its raw fields (id, timestamps, addresses,
// transport, session tag, payload): the receiver re-derives Contents by
// calling pkg/packet.Classify on the payload, since decoders are pure
// functions shared by both ends and re-deriving them avoids a second wire
// schema mirroring every decoded record shape.
package wire

import (
	"fmt"
	"net/netip"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/netpix/netpix/pkg/capture"
	"github.com/netpix/netpix/pkg/packet"
)

// Kind discriminates which Request/Response variant a frame carries.
type Kind int

// Response kinds (spec §4.6: Response::{Packet, Sources, Sdp, PacketsStats}).
const (
	KindPacket Kind = iota + 1
	KindSources
	KindSdp
	KindPacketsStats
)

// Request kinds (spec §4.6: Request::{FetchAll, ChangeSource, ParseSdp,
// Reparse, PacketsStats}).
const (
	KindFetchAll Kind = iota + 100
	KindChangeSource
	KindParseSdp
	KindReparse
	KindRequestStats
)

const (
	fieldKind            = protowire.Number(1)
	fieldPacketID        = protowire.Number(2)
	fieldTimestampNanos  = protowire.Number(3)
	fieldCreationNanos   = protowire.Number(4)
	fieldLength          = protowire.Number(5)
	fieldSourceAddr      = protowire.Number(6)
	fieldDestAddr        = protowire.Number(7)
	fieldTransport       = protowire.Number(8)
	fieldSession         = protowire.Number(9)
	fieldPayload         = protowire.Number(10)
	fieldSynthetic       = protowire.Number(11)
	fieldSourceKeyKind   = protowire.Number(12)
	fieldSourceKeyName   = protowire.Number(13)
	fieldSourceKeyPromisc = protowire.Number(14)
	fieldDischarged      = protowire.Number(15)
	fieldOverwritten     = protowire.Number(16)
	fieldStreamSSRC      = protowire.Number(17)
	fieldSdpText         = protowire.Number(18)
	fieldReparseProto    = protowire.Number(19)
	fieldSourcesList     = protowire.Number(20)
)

// Response is the server-to-client message envelope.
type Response struct {
	Kind Kind

	Packet  *packet.Packet
	Sources []capture.SourceKey

	StreamSSRC uint32
	SdpText    string

	Discharged  uint64
	Overwritten uint64
}

// Encode serializes r using protowire field writes.
func (r Response) Encode() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Kind))

	switch r.Kind {
	case KindPacket:
		if r.Packet == nil {
			return nil, fmt.Errorf("wire: KindPacket response missing Packet")
		}
		b = appendPacket(b, *r.Packet)
	case KindSources:
		for _, src := range r.Sources {
			b = protowire.AppendTag(b, fieldSourcesList, protowire.BytesType)
			b = protowire.AppendBytes(b, encodeSourceKey(src))
		}
	case KindSdp:
		b = protowire.AppendTag(b, fieldStreamSSRC, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.StreamSSRC))
		b = protowire.AppendTag(b, fieldSdpText, protowire.BytesType)
		b = protowire.AppendString(b, r.SdpText)
	case KindPacketsStats:
		b = protowire.AppendTag(b, fieldDischarged, protowire.VarintType)
		b = protowire.AppendVarint(b, r.Discharged)
		b = protowire.AppendTag(b, fieldOverwritten, protowire.VarintType)
		b = protowire.AppendVarint(b, r.Overwritten)
	default:
		return nil, fmt.Errorf("wire: unknown response kind %d", r.Kind)
	}
	return b, nil
}

// DecodeResponse parses a frame produced by Response.Encode.
func DecodeResponse(b []byte) (Response, error) {
	var r Response
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Response{}, fmt.Errorf("wire: invalid tag")
		}
		b = b[n:]

		switch num {
		case fieldKind:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Response{}, fmt.Errorf("wire: invalid kind")
			}
			r.Kind = Kind(v)
			b = b[n:]
		case fieldSourcesList:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Response{}, fmt.Errorf("wire: invalid source entry")
			}
			key, err := decodeSourceKey(v)
			if err != nil {
				return Response{}, err
			}
			r.Sources = append(r.Sources, key)
			b = b[n:]
		case fieldStreamSSRC:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Response{}, fmt.Errorf("wire: invalid stream ssrc")
			}
			r.StreamSSRC = uint32(v)
			b = b[n:]
		case fieldSdpText:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Response{}, fmt.Errorf("wire: invalid sdp text")
			}
			r.SdpText = string(v)
			b = b[n:]
		case fieldDischarged:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Response{}, fmt.Errorf("wire: invalid discharged count")
			}
			r.Discharged = v
			b = b[n:]
		case fieldOverwritten:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Response{}, fmt.Errorf("wire: invalid overwritten count")
			}
			r.Overwritten = v
			b = b[n:]
		default:
			p, err := consumePacketField(num, typ, b, &r)
			if err != nil {
				return Response{}, err
			}
			b = p
		}
	}
	return r, nil
}

// consumePacketField handles the Packet-shaped fields shared by the
// KindPacket variant, keeping DecodeResponse's main switch from sprawling.
func consumePacketField(num protowire.Number, typ protowire.Type, b []byte, r *Response) ([]byte, error) {
	if r.Packet == nil {
		r.Packet = &packet.Packet{}
	}
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return nil, fmt.Errorf("wire: invalid field %d", num)
	}
	field := b[:n]
	rest := b[n:]

	switch num {
	case fieldPacketID:
		v, _ := protowire.ConsumeVarint(field)
		r.Packet.ID = v
	case fieldTimestampNanos:
		v, _ := protowire.ConsumeVarint(field)
		r.Packet.Timestamp = time.Duration(v)
	case fieldCreationNanos:
		v, _ := protowire.ConsumeVarint(field)
		r.Packet.CreationTime = time.Unix(0, int64(v))
	case fieldLength:
		v, _ := protowire.ConsumeVarint(field)
		r.Packet.Length = uint32(v)
	case fieldSourceAddr:
		v, _ := protowire.ConsumeBytes(field)
		addr, err := netip.ParseAddrPort(string(v))
		if err == nil {
			r.Packet.SourceAddr = addr
		}
	case fieldDestAddr:
		v, _ := protowire.ConsumeBytes(field)
		addr, err := netip.ParseAddrPort(string(v))
		if err == nil {
			r.Packet.DestinationAddr = addr
		}
	case fieldTransport:
		v, _ := protowire.ConsumeVarint(field)
		r.Packet.Transport = packet.TransportProtocol(v)
	case fieldSession:
		v, _ := protowire.ConsumeVarint(field)
		r.Packet.Session = packet.SessionProtocol(v)
	case fieldPayload:
		v, _ := protowire.ConsumeBytes(field)
		r.Packet.Payload = append([]byte(nil), v...)
		_, contents := packet.Classify(r.Packet.Payload)
		r.Packet.Contents = contents
	case fieldSynthetic:
		v, _ := protowire.ConsumeVarint(field)
		r.Packet.Synthetic = v != 0
	default:
		return nil, fmt.Errorf("wire: unknown field %d", num)
	}
	return rest, nil
}

func appendPacket(b []byte, p packet.Packet) []byte {
	b = protowire.AppendTag(b, fieldPacketID, protowire.VarintType)
	b = protowire.AppendVarint(b, p.ID)
	b = protowire.AppendTag(b, fieldTimestampNanos, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Timestamp))
	b = protowire.AppendTag(b, fieldCreationNanos, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.CreationTime.UnixNano()))
	b = protowire.AppendTag(b, fieldLength, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Length))
	b = protowire.AppendTag(b, fieldSourceAddr, protowire.BytesType)
	b = protowire.AppendString(b, p.SourceAddr.String())
	b = protowire.AppendTag(b, fieldDestAddr, protowire.BytesType)
	b = protowire.AppendString(b, p.DestinationAddr.String())
	b = protowire.AppendTag(b, fieldTransport, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Transport))
	b = protowire.AppendTag(b, fieldSession, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Session))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, p.Payload)
	if p.Synthetic {
		b = protowire.AppendTag(b, fieldSynthetic, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func encodeSourceKey(key capture.SourceKey) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSourceKeyKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(key.Kind))
	b = protowire.AppendTag(b, fieldSourceKeyName, protowire.BytesType)
	b = protowire.AppendString(b, key.Name)
	if key.Promisc {
		b = protowire.AppendTag(b, fieldSourceKeyPromisc, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func decodeSourceKey(b []byte) (capture.SourceKey, error) {
	var key capture.SourceKey
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return capture.SourceKey{}, fmt.Errorf("wire: invalid source key tag")
		}
		b = b[n:]
		fn := protowire.ConsumeFieldValue(num, typ, b)
		if fn < 0 {
			return capture.SourceKey{}, fmt.Errorf("wire: invalid source key field")
		}
		field := b[:fn]
		b = b[fn:]

		switch num {
		case fieldSourceKeyKind:
			v, _ := protowire.ConsumeVarint(field)
			key.Kind = capture.SourceKind(v)
		case fieldSourceKeyName:
			v, _ := protowire.ConsumeBytes(field)
			key.Name = string(v)
		case fieldSourceKeyPromisc:
			v, _ := protowire.ConsumeVarint(field)
			key.Promisc = v != 0
		}
	}
	return key, nil
}

// Request is the client-to-server message envelope.
type Request struct {
	Kind Kind

	Source capture.SourceKey

	StreamSSRC uint32
	SdpText    string

	ReparsePacketID uint64
	ReparseProtocol packet.SessionProtocol

	Discharged  uint64
	Overwritten uint64
}

// Encode serializes q using protowire field writes.
func (q Request) Encode() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(q.Kind))

	switch q.Kind {
	case KindFetchAll:
	case KindChangeSource:
		b = protowire.AppendTag(b, fieldSourcesList, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeSourceKey(q.Source))
	case KindParseSdp:
		b = protowire.AppendTag(b, fieldStreamSSRC, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(q.StreamSSRC))
		b = protowire.AppendTag(b, fieldSdpText, protowire.BytesType)
		b = protowire.AppendString(b, q.SdpText)
	case KindReparse:
		b = protowire.AppendTag(b, fieldPacketID, protowire.VarintType)
		b = protowire.AppendVarint(b, q.ReparsePacketID)
		b = protowire.AppendTag(b, fieldReparseProto, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(q.ReparseProtocol))
	case KindRequestStats:
		b = protowire.AppendTag(b, fieldDischarged, protowire.VarintType)
		b = protowire.AppendVarint(b, q.Discharged)
		b = protowire.AppendTag(b, fieldOverwritten, protowire.VarintType)
		b = protowire.AppendVarint(b, q.Overwritten)
	default:
		return nil, fmt.Errorf("wire: unknown request kind %d", q.Kind)
	}
	return b, nil
}

// DecodeRequest parses a frame produced by Request.Encode.
func DecodeRequest(b []byte) (Request, error) {
	var q Request
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Request{}, fmt.Errorf("wire: invalid tag")
		}
		b = b[n:]
		fn := protowire.ConsumeFieldValue(num, typ, b)
		if fn < 0 {
			return Request{}, fmt.Errorf("wire: invalid field %d", num)
		}
		field := b[:fn]
		b = b[fn:]

		switch num {
		case fieldKind:
			v, _ := protowire.ConsumeVarint(field)
			q.Kind = Kind(v)
		case fieldSourcesList:
			v, _ := protowire.ConsumeBytes(field)
			key, err := decodeSourceKey(v)
			if err != nil {
				return Request{}, err
			}
			q.Source = key
		case fieldStreamSSRC:
			v, _ := protowire.ConsumeVarint(field)
			q.StreamSSRC = uint32(v)
		case fieldSdpText:
			v, _ := protowire.ConsumeBytes(field)
			q.SdpText = string(v)
		case fieldPacketID:
			v, _ := protowire.ConsumeVarint(field)
			q.ReparsePacketID = v
		case fieldReparseProto:
			v, _ := protowire.ConsumeVarint(field)
			q.ReparseProtocol = packet.SessionProtocol(v)
		case fieldDischarged:
			v, _ := protowire.ConsumeVarint(field)
			q.Discharged = v
		case fieldOverwritten:
			v, _ := protowire.ConsumeVarint(field)
			q.Overwritten = v
		}
	}
	return q, nil
}
