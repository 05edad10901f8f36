package mpegts

// StreamType is the 8-bit stream_type field from a PMT's elementary stream
// loop (ISO/IEC 13818-1 Table 2-34), condensed to the categories netpix's
// filters and UI actually distinguish.
type StreamType uint8

const (
	StreamTypeReserved       StreamType = 0x00
	StreamTypeVideo111722    StreamType = 0x01
	StreamTypeVideo138182    StreamType = 0x02
	StreamTypeAudio111723    StreamType = 0x03
	StreamTypeAudio138183    StreamType = 0x04
	StreamTypePrivateSection StreamType = 0x05
	StreamTypePrivateData    StreamType = 0x06
	StreamTypeMHEGPackets    StreamType = 0x07
	StreamTypeH222AnnexA     StreamType = 0x08
	StreamTypeH2221Auxiliary StreamType = 0x09
	StreamTypeAudioADTS      StreamType = 0x0F
	StreamTypeVideoH264      StreamType = 0x1B
	StreamTypeAudioLATM      StreamType = 0x11
	StreamTypeVideoHEVC      StreamType = 0x24
	StreamTypeIPMPStream     StreamType = 0x7F
	StreamTypeReservedRange  StreamType = 0xFE // 0x30..0x7E, user-private above
	StreamTypeUserPrivate    StreamType = 0xFF
)

// ResolveStreamType maps a raw stream_type byte to the condensed StreamType enum.
func ResolveStreamType(v uint8) StreamType {
	switch {
	case v == 0x00:
		return StreamTypeReserved
	case v == 0x01:
		return StreamTypeVideo111722
	case v == 0x02:
		return StreamTypeVideo138182
	case v == 0x03:
		return StreamTypeAudio111723
	case v == 0x04:
		return StreamTypeAudio138183
	case v == 0x05:
		return StreamTypePrivateSection
	case v == 0x06:
		return StreamTypePrivateData
	case v == 0x07:
		return StreamTypeMHEGPackets
	case v == 0x08:
		return StreamTypeH222AnnexA
	case v == 0x09:
		return StreamTypeH2221Auxiliary
	case v == 0x0F:
		return StreamTypeAudioADTS
	case v == 0x11:
		return StreamTypeAudioLATM
	case v == 0x1B:
		return StreamTypeVideoH264
	case v == 0x24:
		return StreamTypeVideoHEVC
	case v == 0x7F:
		return StreamTypeIPMPStream
	case v >= 0x30 && v <= 0x7E:
		return StreamTypeReservedRange
	default: // 0x80..0xFF and any other unassigned value
		return StreamTypeUserPrivate
	}
}

// Category is the coarse Audio/Video/Other classification the filter and UI
// consult.
type Category int

const (
	CategoryOther Category = iota
	CategoryAudio
	CategoryVideo
)

// Category returns st's coarse media category.
func (st StreamType) Category() Category {
	switch st {
	case StreamTypeVideo111722, StreamTypeVideo138182, StreamTypeVideoH264, StreamTypeVideoHEVC:
		return CategoryVideo
	case StreamTypeAudio111723, StreamTypeAudio138183, StreamTypeAudioADTS, StreamTypeAudioLATM:
		return CategoryAudio
	default:
		return CategoryOther
	}
}
