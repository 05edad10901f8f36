package mpegts

import "fmt"

// Stream ids whose PES header is NOT followed by the extended optional
// fields (ISO/IEC 13818-1 Table 2-21).
const (
	streamIDProgramStreamMap     = 0xBC
	streamIDPaddingStream        = 0xBE
	streamIDPrivateStream2       = 0xBF
	streamIDECM                  = 0xF0
	streamIDEMM                  = 0xF1
	streamIDProgramStreamDirectory = 0xFF
	streamIDDSMCC                = 0xF2
	streamIDH2221TypeE           = 0xF8
)

// PESHeader is a decoded Packetized Elementary Stream header.
type PESHeader struct {
	StreamID         uint8
	PacketLength     uint16
	OptionalFields   *PESOptionalFields
}

// PESOptionalFields is the extended PES header (ISO/IEC 13818-1 §2.4.3.7).
type PESOptionalFields struct {
	PTSDTSFlags       uint8 // 0=none, 2=PTS only, 3=PTS+DTS
	PTS               *uint64
	DTS               *uint64
	ESCRFlag          bool
	ESCRBase          uint64
	ESCRExtension     uint16
	ESRateFlag        bool
	ESRate            uint32
	AdditionalCopyInfoFlag bool
	AdditionalCopyInfo     uint8
	PESCRCFlag        bool
	PreviousPESPacketCRC uint16
}

const (
	onlyPTSMarker    = 0b0010
	ptsAndDTSMarker1 = 0b0011
	ptsAndDTSMarker2 = 0b0001
)

// DecodePESHeader decodes a PES header. buf must start immediately after the
// 3-byte start code (00 00 01).
func DecodePESHeader(buf []byte) (PESHeader, bool) {
	if len(buf) < 3 {
		return PESHeader{}, false
	}
	streamID := buf[0]
	packetLength := uint16(buf[1])<<8 | uint16(buf[2])

	if !hasExtendedHeader(streamID) {
		return PESHeader{StreamID: streamID, PacketLength: packetLength}, true
	}

	if len(buf) < 3+3 {
		return PESHeader{}, false
	}
	flagBytes := buf[3:6]
	ptsDTSFlags := (flagBytes[1] >> 6) & 0x03
	escrFlag := flagBytes[1]&0x20 != 0
	esRateFlag := flagBytes[1]&0x10 != 0
	dsmTrickModeFlag := flagBytes[1]&0x08 != 0
	additionalCopyInfoFlag := flagBytes[1]&0x04 != 0
	pesCRCFlag := flagBytes[1]&0x02 != 0
	pesExtensionFlag := flagBytes[1]&0x01 != 0
	headerDataLength := int(flagBytes[2])

	idx := 6
	end := idx + headerDataLength
	if end > len(buf) {
		return PESHeader{}, false
	}

	opt := &PESOptionalFields{PTSDTSFlags: ptsDTSFlags, ESCRFlag: escrFlag, ESRateFlag: esRateFlag,
		AdditionalCopyInfoFlag: additionalCopyInfoFlag, PESCRCFlag: pesCRCFlag}

	switch ptsDTSFlags {
	case 2: // PTS only
		if idx+5 > end {
			return PESHeader{}, false
		}
		pts, ok := decodeMarkedTimestamp(buf[idx:idx+5], onlyPTSMarker)
		if !ok {
			return PESHeader{}, false
		}
		opt.PTS = &pts
		idx += 5
	case 3: // PTS + DTS
		if idx+10 > end {
			return PESHeader{}, false
		}
		pts, ok := decodeMarkedTimestamp(buf[idx:idx+5], ptsAndDTSMarker1)
		if !ok {
			return PESHeader{}, false
		}
		dts, ok := decodeMarkedTimestamp(buf[idx+5:idx+10], ptsAndDTSMarker2)
		if !ok {
			return PESHeader{}, false
		}
		if dts > pts {
			return PESHeader{}, false // DTS > PTS is invalid per spec
		}
		opt.PTS = &pts
		opt.DTS = &dts
		idx += 10
	case 1:
		return PESHeader{}, false // DTS without PTS is invalid
	}

	if escrFlag {
		if idx+6 > end {
			return PESHeader{}, false
		}
		base, ext, ok := decodeESCR(buf[idx : idx+6])
		if !ok {
			return PESHeader{}, false
		}
		opt.ESCRBase = base
		opt.ESCRExtension = ext
		idx += 6
	}

	if esRateFlag {
		if idx+3 > end {
			return PESHeader{}, false
		}
		rate, ok := decodeESRate(buf[idx : idx+3])
		if !ok {
			return PESHeader{}, false
		}
		opt.ESRate = rate
		idx += 3
	}

	if dsmTrickModeFlag {
		if idx+1 > end {
			return PESHeader{}, false
		}
		idx++
	}

	if additionalCopyInfoFlag {
		if idx+1 > end {
			return PESHeader{}, false
		}
		if buf[idx]&0x80 == 0 {
			return PESHeader{}, false
		}
		opt.AdditionalCopyInfo = (buf[idx] & 0x7F) >> 1
		idx++
	}

	if pesCRCFlag {
		if idx+2 > end {
			return PESHeader{}, false
		}
		opt.PreviousPESPacketCRC = uint16(buf[idx])<<8 | uint16(buf[idx+1])
		idx += 2
	}

	_ = pesExtensionFlag // extension sub-field data isn't modeled further

	return PESHeader{StreamID: streamID, PacketLength: packetLength, OptionalFields: opt}, true
}

func hasExtendedHeader(streamID uint8) bool {
	switch streamID {
	case streamIDProgramStreamMap, streamIDPaddingStream, streamIDPrivateStream2,
		streamIDECM, streamIDEMM, streamIDProgramStreamDirectory, streamIDDSMCC, streamIDH2221TypeE:
		return false
	default:
		return true
	}
}

// decodeMarkedTimestamp decodes a 5-byte, 33-bit PTS/DTS field, validating
// the three fixed marker bits: the top nibble of byte 0 must equal
// topMarker, and bits 0 of bytes 2 and 4 must both be 1.
func decodeMarkedTimestamp(b []byte, topMarker uint8) (uint64, bool) {
	if b[0]>>4 != topMarker {
		return 0, false
	}
	if b[2]&0x01 == 0 || b[4]&0x01 == 0 {
		return 0, false
	}
	value := uint64(b[0]&0x0E)<<29 |
		uint64(b[1])<<22 |
		uint64(b[2]&0xFE)<<14 |
		uint64(b[3])<<7 |
		uint64(b[4]&0xFE)>>1
	return value, true
}

// decodeESCR decodes a 6-byte ESCR field: 33-bit base + 9-bit extension with
// four marker bits.
func decodeESCR(b []byte) (uint64, uint16, bool) {
	if b[0]&0x04 == 0 || b[2]&0x04 == 0 || b[4]&0x04 == 0 || b[5]&0x01 == 0 {
		return 0, 0, false
	}
	base := uint64(b[0]&0x38)<<27 |
		uint64(b[0]&0x03)<<28 |
		uint64(b[1])<<20 |
		uint64(b[2]&0xF8)<<12 |
		uint64(b[2]&0x03)<<13 |
		uint64(b[3])<<5 |
		uint64(b[4]&0xF8)>>3
	ext := uint16(b[4]&0x03)<<7 | uint16(b[5])>>1
	return base, ext, true
}

// decodeESRate decodes a 3-byte, 22-bit ES_rate field with two marker bits.
func decodeESRate(b []byte) (uint32, bool) {
	if b[0]&0x80 == 0 || b[2]&0x01 == 0 {
		return 0, false
	}
	rate := uint32(b[0]&0x7F)<<15 | uint32(b[1])<<7 | uint32(b[2])>>1
	return rate, true
}

func (h PESHeader) String() string {
	return fmt.Sprintf("PES{stream_id=0x%02X length=%d}", h.StreamID, h.PacketLength)
}
