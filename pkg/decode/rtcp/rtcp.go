// Package rtcp decodes RTCP compound packets using pion/rtcp and re-exposes
// them as netpix's own tagged union, matching the shape the original
// implementation gets from wrapping the Rust `rtcp` crate.
package rtcp

import (
	pionrtcp "github.com/pion/rtcp"
)

// Kind tags which concrete RTCP record a Packet holds.
type Kind int

const (
	KindSenderReport Kind = iota
	KindReceiverReport
	KindSourceDescription
	KindGoodbye
	KindPictureLossIndication
	KindFullIntraRequest
	KindReceiverEstimatedMaximumBitrate
	KindSliceLossIndication
	KindRapidResynchronizationRequest
	KindTransportLayerCC
	KindTransportLayerNack
	KindApplicationDefined
	KindPayloadSpecificFeedback
	KindExtendedReport
	KindOther
)

// ReceptionReport mirrors pion/rtcp.ReceptionReport's fields netpix surfaces.
type ReceptionReport struct {
	SSRC               uint32
	FractionLost       uint8
	TotalLost          uint32
	LastSequenceNumber uint32
	Jitter             uint32
}

// SenderReport is RTCP's SR record (RFC 3550 §6.4.1).
type SenderReport struct {
	SSRC        uint32
	NTPTime     uint64
	RTPTime     uint32
	PacketCount uint32
	OctetCount  uint32
	Reports     []ReceptionReport
}

// ReceiverReport is RTCP's RR record (RFC 3550 §6.4.2).
type ReceiverReport struct {
	SSRC    uint32
	Reports []ReceptionReport
}

// SdesItem is one CNAME/NAME/... item within a SourceDescription chunk.
type SdesItem struct {
	Type SdesType
	Text string
}

// SdesType enumerates RTCP SDES item types (RFC 3550 §6.5).
type SdesType uint8

const (
	SdesCNAME SdesType = 1
	SdesNAME  SdesType = 2
	SdesEMAIL SdesType = 3
	SdesPHONE SdesType = 4
	SdesLOC   SdesType = 5
	SdesTOOL  SdesType = 6
	SdesNOTE  SdesType = 7
	SdesPRIV  SdesType = 8
)

// SourceDescriptionChunk ties an SSRC to its SDES items.
type SourceDescriptionChunk struct {
	Source uint32
	Items  []SdesItem
}

// SourceDescription is RTCP's SDES record.
type SourceDescription struct {
	Chunks []SourceDescriptionChunk
}

// Goodbye is RTCP's BYE record.
type Goodbye struct {
	Sources []uint32
	Reason  string
}

// PictureLossIndication is a payload-specific PLI feedback record.
type PictureLossIndication struct {
	SenderSSRC, MediaSSRC uint32
}

// FullIntraRequest is a payload-specific FIR feedback record.
type FullIntraRequest struct {
	SenderSSRC, MediaSSRC uint32
}

// ReceiverEstimatedMaximumBitrate is the REMB feedback record.
type ReceiverEstimatedMaximumBitrate struct {
	SenderSSRC uint32
	Bitrate    float32
	SSRCs      []uint32
}

// SliceLossIndication is a payload-specific SLI feedback record.
type SliceLossIndication struct {
	SenderSSRC, MediaSSRC uint32
}

// RapidResynchronizationRequest is a transport-layer RRR feedback record.
type RapidResynchronizationRequest struct {
	SenderSSRC, MediaSSRC uint32
}

// TransportLayerCC is the transport-wide congestion control feedback record.
type TransportLayerCC struct {
	SenderSSRC, MediaSSRC uint32
	PacketCount           uint16
}

// TransportLayerNack is the generic NACK feedback record.
type TransportLayerNack struct {
	SenderSSRC, MediaSSRC uint32
	Nacks                 int
}

// Packet is one netpix-decoded RTCP record within a compound packet. Exactly
// one of the typed fields is non-nil, selected by Kind; Other carries the
// pion/rtcp payload type for records netpix doesn't model in detail
// (ApplicationDefined, generic PayloadSpecificFeedback, ExtendedReport).
type Packet struct {
	Kind Kind

	SenderReport                    *SenderReport
	ReceiverReport                  *ReceiverReport
	SourceDescription               *SourceDescription
	Goodbye                         *Goodbye
	PictureLossIndication           *PictureLossIndication
	FullIntraRequest                *FullIntraRequest
	ReceiverEstimatedMaximumBitrate *ReceiverEstimatedMaximumBitrate
	SliceLossIndication             *SliceLossIndication
	RapidResynchronizationRequest   *RapidResynchronizationRequest
	TransportLayerCC                *TransportLayerCC
	TransportLayerNack              *TransportLayerNack

	OtherPayloadType uint8
}

// Compound is a full RTCP compound packet: one or more Packet records back
// to back in a single UDP datagram.
type Compound []Packet

// Decode unmarshals raw as an RTCP compound packet. The first record must be
// one of SenderReport, ReceiverReport, Goodbye, PayloadSpecificFeedback (PLI/
// FIR/REMB/SLI), matching the original classifier's acceptance rule — any
// other leading record means raw is not RTCP.
func Decode(raw []byte) (Compound, bool) {
	packets, err := pionrtcp.Unmarshal(raw)
	if err != nil || len(packets) == 0 {
		return nil, false
	}
	if !isAcceptableLeader(packets[0]) {
		return nil, false
	}

	out := make(Compound, 0, len(packets))
	for _, p := range packets {
		out = append(out, wrap(p))
	}
	return out, true
}

func isAcceptableLeader(p pionrtcp.Packet) bool {
	switch p.(type) {
	case *pionrtcp.SenderReport,
		*pionrtcp.ReceiverReport,
		*pionrtcp.Goodbye,
		*pionrtcp.PictureLossIndication,
		*pionrtcp.FullIntraRequest,
		*pionrtcp.ReceiverEstimatedMaximumBitrate,
		*pionrtcp.SliceLossIndication:
		return true
	default:
		return false
	}
}

func wrap(p pionrtcp.Packet) Packet {
	switch v := p.(type) {
	case *pionrtcp.SenderReport:
		return Packet{Kind: KindSenderReport, SenderReport: &SenderReport{
			SSRC: v.SSRC, NTPTime: v.NTPTime, RTPTime: v.RTPTime,
			PacketCount: v.PacketCount, OctetCount: v.OctetCount,
			Reports: wrapReports(v.Reports),
		}}
	case *pionrtcp.ReceiverReport:
		return Packet{Kind: KindReceiverReport, ReceiverReport: &ReceiverReport{
			SSRC: v.SSRC, Reports: wrapReports(v.Reports),
		}}
	case *pionrtcp.SourceDescription:
		sd := &SourceDescription{}
		for _, c := range v.Chunks {
			chunk := SourceDescriptionChunk{Source: c.Source}
			for _, it := range c.Items {
				chunk.Items = append(chunk.Items, SdesItem{Type: SdesType(it.Type), Text: it.Text})
			}
			sd.Chunks = append(sd.Chunks, chunk)
		}
		return Packet{Kind: KindSourceDescription, SourceDescription: sd}
	case *pionrtcp.Goodbye:
		return Packet{Kind: KindGoodbye, Goodbye: &Goodbye{Sources: v.Sources, Reason: v.Reason}}
	case *pionrtcp.PictureLossIndication:
		return Packet{Kind: KindPictureLossIndication, PictureLossIndication: &PictureLossIndication{
			SenderSSRC: v.SenderSSRC, MediaSSRC: v.MediaSSRC,
		}}
	case *pionrtcp.FullIntraRequest:
		var media uint32
		if len(v.FIR) > 0 {
			media = v.FIR[0].SSRC
		}
		return Packet{Kind: KindFullIntraRequest, FullIntraRequest: &FullIntraRequest{
			SenderSSRC: v.SenderSSRC, MediaSSRC: media,
		}}
	case *pionrtcp.ReceiverEstimatedMaximumBitrate:
		return Packet{Kind: KindReceiverEstimatedMaximumBitrate, ReceiverEstimatedMaximumBitrate: &ReceiverEstimatedMaximumBitrate{
			SenderSSRC: v.SenderSSRC, Bitrate: v.Bitrate, SSRCs: v.SSRCs,
		}}
	case *pionrtcp.SliceLossIndication:
		return Packet{Kind: KindSliceLossIndication, SliceLossIndication: &SliceLossIndication{
			SenderSSRC: v.SenderSSRC, MediaSSRC: v.MediaSSRC,
		}}
	case *pionrtcp.RapidResynchronizationRequest:
		return Packet{Kind: KindRapidResynchronizationRequest, RapidResynchronizationRequest: &RapidResynchronizationRequest{
			SenderSSRC: v.SenderSSRC, MediaSSRC: v.MediaSSRC,
		}}
	case *pionrtcp.TransportLayerCC:
		return Packet{Kind: KindTransportLayerCC, TransportLayerCC: &TransportLayerCC{
			SenderSSRC: v.SenderSSRC, MediaSSRC: v.MediaSSRC, PacketCount: v.PacketStatusCount,
		}}
	case *pionrtcp.TransportLayerNack:
		return Packet{Kind: KindTransportLayerNack, TransportLayerNack: &TransportLayerNack{
			SenderSSRC: v.SenderSSRC, MediaSSRC: v.MediaSSRC, Nacks: len(v.Nacks),
		}}
	default:
		return Packet{Kind: KindOther, OtherPayloadType: rtcpPayloadType(p)}
	}
}

func wrapReports(reports []pionrtcp.ReceptionReport) []ReceptionReport {
	out := make([]ReceptionReport, 0, len(reports))
	for _, r := range reports {
		out = append(out, ReceptionReport{
			SSRC: r.SSRC, FractionLost: r.FractionLost, TotalLost: r.TotalLost,
			LastSequenceNumber: r.LastSequenceNumber, Jitter: r.Jitter,
		})
	}
	return out
}

// rtcpPayloadType tries to recover the record's 8-bit packet type for
// unmodeled kinds; pion doesn't expose a uniform accessor, so apps and
// extended reports are tagged generically.
func rtcpPayloadType(p pionrtcp.Packet) uint8 {
	switch p.(type) {
	case *pionrtcp.ExtendedReport:
		return 207
	case *pionrtcp.RawPacket:
		return 0
	default:
		return 0
	}
}
