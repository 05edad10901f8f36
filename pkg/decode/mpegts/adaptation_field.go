package mpegts

// AdaptationField is the variable-length field that may precede (or replace)
// a fragment's payload, per ISO/IEC 13818-1 §2.4.3.5.
type AdaptationField struct {
	Length int

	Discontinuity       bool
	RandomAccess        bool
	ElementaryStreamPriority bool
	PCRFlag             bool
	OPCRFlag            bool
	SplicingPointFlag   bool
	TransportPrivateDataFlag bool
	ExtensionFlag       bool

	PCR  *ClockReference
	OPCR *ClockReference

	SpliceCountdown *int8

	TransportPrivateData []byte

	Extension *AdaptationFieldExtension

	StuffingBytes int
}

// ClockReference is a 33-bit base + 9-bit extension 42-bit PCR/OPCR value.
type ClockReference struct {
	Base      uint64 // 33 bits, 90kHz
	Extension uint16 // 9 bits, 27MHz
}

// AdaptationFieldExtension is the nested extension sub-field.
type AdaptationFieldExtension struct {
	Length int

	LTWFlag          bool
	PiecewiseRateFlag bool
	SeamlessSpliceFlag bool

	LTWOffset       *uint16
	PiecewiseRate   *uint32
	SpliceType      *uint8
	DTSNextAccessUnit *uint64
}

// decodeAdaptationField reads an adaptation field starting at buf[0] (the
// length byte). It returns the field, the number of bytes consumed
// (1 + Length), and whether decoding succeeded.
func decodeAdaptationField(buf []byte) (AdaptationField, int, bool) {
	if len(buf) < 1 {
		return AdaptationField{}, 0, false
	}
	length := int(buf[0])
	if length == 0 {
		return AdaptationField{Length: 0}, 1, true
	}
	if 1+length > len(buf) {
		return AdaptationField{}, 0, false
	}

	body := buf[1 : 1+length]
	field := AdaptationField{Length: length}

	if len(body) < 1 {
		return AdaptationField{}, 0, false
	}
	flags := body[0]
	field.Discontinuity = flags&0x80 != 0
	field.RandomAccess = flags&0x40 != 0
	field.ElementaryStreamPriority = flags&0x20 != 0
	field.PCRFlag = flags&0x10 != 0
	field.OPCRFlag = flags&0x08 != 0
	field.SplicingPointFlag = flags&0x04 != 0
	field.TransportPrivateDataFlag = flags&0x02 != 0
	field.ExtensionFlag = flags&0x01 != 0

	idx := 1

	if field.PCRFlag {
		if idx+6 > len(body) {
			return AdaptationField{}, 0, false
		}
		pcr := decodeClockReference(body[idx : idx+6])
		field.PCR = &pcr
		idx += 6
	}

	if field.OPCRFlag {
		if idx+6 > len(body) {
			return AdaptationField{}, 0, false
		}
		opcr := decodeClockReference(body[idx : idx+6])
		field.OPCR = &opcr
		idx += 6
	}

	if field.SplicingPointFlag {
		if idx+1 > len(body) {
			return AdaptationField{}, 0, false
		}
		v := int8(body[idx])
		field.SpliceCountdown = &v
		idx++
	}

	if field.TransportPrivateDataFlag {
		if idx+1 > len(body) {
			return AdaptationField{}, 0, false
		}
		tpdLen := int(body[idx])
		idx++
		if idx+tpdLen > len(body) {
			return AdaptationField{}, 0, false
		}
		field.TransportPrivateData = append([]byte(nil), body[idx:idx+tpdLen]...)
		idx += tpdLen
	}

	if field.ExtensionFlag {
		if idx+1 > len(body) {
			return AdaptationField{}, 0, false
		}
		extLen := int(body[idx])
		if idx+1+extLen > len(body) {
			return AdaptationField{}, 0, false
		}
		ext, ok := decodeAdaptationFieldExtension(body[idx : idx+1+extLen])
		if !ok {
			return AdaptationField{}, 0, false
		}
		field.Extension = &ext
		idx += 1 + extLen
	}

	stuffing := 0
	for idx < len(body) && body[idx] == paddingByte {
		stuffing++
		idx++
	}
	field.StuffingBytes = stuffing

	return field, 1 + length, true
}

// decodeClockReference reads a 6-byte PCR/OPCR: 33-bit base followed by 6
// reserved bits and a 9-bit extension.
func decodeClockReference(b []byte) ClockReference {
	raw := uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
	base := (raw >> 15) & 0x1FFFFFFFF
	extension := uint16(raw & 0x1FF)
	return ClockReference{Base: base, Extension: extension}
}

func decodeAdaptationFieldExtension(buf []byte) (AdaptationFieldExtension, bool) {
	length := int(buf[0])
	body := buf[1 : 1+length]
	if len(body) < 1 {
		return AdaptationFieldExtension{}, false
	}

	ext := AdaptationFieldExtension{Length: length}
	flags := body[0]
	ext.LTWFlag = flags&0x80 != 0
	ext.PiecewiseRateFlag = flags&0x40 != 0
	ext.SeamlessSpliceFlag = flags&0x20 != 0

	idx := 1
	if ext.LTWFlag {
		if idx+2 > len(body) {
			return AdaptationFieldExtension{}, false
		}
		v := uint16(body[idx])<<8 | uint16(body[idx+1])
		v &= 0x7FFF
		ext.LTWOffset = &v
		idx += 2
	}
	if ext.PiecewiseRateFlag {
		if idx+3 > len(body) {
			return AdaptationFieldExtension{}, false
		}
		v := uint32(body[idx]&0x3F)<<16 | uint32(body[idx+1])<<8 | uint32(body[idx+2])
		ext.PiecewiseRate = &v
		idx += 3
	}
	if ext.SeamlessSpliceFlag {
		if idx+5 > len(body) {
			return AdaptationFieldExtension{}, false
		}
		spliceType := body[idx] >> 4
		ext.SpliceType = &spliceType
		dts := decodeTimestamp33(body[idx : idx+5])
		ext.DTSNextAccessUnit = &dts
		idx += 5
	}

	return ext, true
}

// decodeTimestamp33 decodes a 5-byte, 33-bit marker-bit-interleaved
// timestamp, the same layout used by PES PTS/DTS and the seamless-splice
// DTS_next_AU field.
func decodeTimestamp33(b []byte) uint64 {
	return uint64(b[0]&0x0E)<<29 |
		uint64(b[1])<<22 |
		uint64(b[2]&0xFE)<<14 |
		uint64(b[3])<<7 |
		uint64(b[4]&0xFE)>>1
}
