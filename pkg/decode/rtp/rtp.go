// Package rtp decodes RTP headers using pion/rtp and resolves payload types
// against the RFC 3551 static table.
package rtp

import (
	pionrtp "github.com/pion/rtp"
)

// PayloadType describes a resolved RTP payload type: its numeric id plus,
// when known, the media clock rate needed for jitter calculation.
type PayloadType struct {
	ID        uint8
	Name      string
	ClockRate *uint32
}

// staticTable is the RFC 3551 static payload type assignment. Dynamic types
// (96-127) and reserved/unassigned entries are left out and resolved to
// {ID, "dynamic", nil} unless SDP negotiation (pkg/session) supplies a
// clock rate.
var staticTable = map[uint8]PayloadType{
	0:  {0, "PCMU", u32p(8000)},
	3:  {3, "GSM", u32p(8000)},
	4:  {4, "G723", u32p(8000)},
	5:  {5, "DVI4", u32p(8000)},
	6:  {6, "DVI4", u32p(16000)},
	7:  {7, "LPC", u32p(8000)},
	8:  {8, "PCMA", u32p(8000)},
	9:  {9, "G722", u32p(8000)},
	10: {10, "L16-stereo", u32p(44100)},
	11: {11, "L16-mono", u32p(44100)},
	12: {12, "QCELP", u32p(8000)},
	13: {13, "CN", u32p(8000)},
	14: {14, "MPA", u32p(90000)},
	15: {15, "G728", u32p(8000)},
	16: {16, "DVI4", u32p(11025)},
	17: {17, "DVI4", u32p(22050)},
	18: {18, "G729", u32p(8000)},
	25: {25, "CelB", u32p(90000)},
	26: {26, "JPEG", u32p(90000)},
	28: {28, "nv", u32p(90000)},
	31: {31, "H261", u32p(90000)},
	32: {32, "MPV", u32p(90000)},
	33: {33, "MP2T", u32p(90000)},
	34: {34, "H263", u32p(90000)},
}

func u32p(v uint32) *uint32 { return &v }

// ResolvePayloadType returns the static table entry for id, or a "dynamic"
// placeholder if id is in the dynamic range or otherwise unassigned.
func ResolvePayloadType(id uint8) PayloadType {
	if pt, ok := staticTable[id]; ok {
		return pt
	}
	return PayloadType{ID: id, Name: "dynamic"}
}

// Record is netpix's decoded RTP header, independent of pion's own type so
// it can be embedded directly in the canonical Packet record.
type Record struct {
	Version        uint8
	Padding        bool
	Extension      bool
	Marker         bool
	PayloadType    PayloadType
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32
	PayloadLength  int
}

// Decode parses an RTP header from raw, applying spec's rejection rule:
// version must be 2 and the payload type must not collide with RTCP's
// reserved 72-79 range.
func Decode(raw []byte) (Record, bool) {
	var p pionrtp.Packet
	if err := p.Unmarshal(raw); err != nil {
		return Record{}, false
	}
	if p.Version != 2 {
		return Record{}, false
	}
	if p.PayloadType >= 72 && p.PayloadType <= 79 {
		return Record{}, false
	}

	return Record{
		Version:        p.Version,
		Padding:        p.Padding,
		Extension:      p.Extension,
		Marker:         p.Marker,
		PayloadType:    ResolvePayloadType(p.PayloadType),
		SequenceNumber: p.SequenceNumber,
		Timestamp:      p.Timestamp,
		SSRC:            p.SSRC,
		CSRC:            append([]uint32(nil), p.CSRC...),
		PayloadLength:   len(p.Payload),
	}, true
}

// LooksLikeRTP applies the same heuristic the original classifier uses
// before committing to a full decode: version 2, payload type not in the
// RTCP range, and a non-zero SSRC (an all-zero SSRC is far more likely to be
// coincidental noise than a real stream).
func LooksLikeRTP(raw []byte) bool {
	if len(raw) < 12 {
		return false
	}
	version := raw[0] >> 6
	if version != 2 {
		return false
	}
	pt := raw[1] & 0x7F
	if pt >= 72 && pt <= 79 {
		return false
	}
	ssrc := uint32(raw[8])<<24 | uint32(raw[9])<<16 | uint32(raw[10])<<8 | uint32(raw[11])
	return ssrc != 0
}
