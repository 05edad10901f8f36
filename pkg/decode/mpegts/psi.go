package mpegts

import "fmt"

// MaxSectionLength is the largest legal PSI section_length value
// (ISO/IEC 13818-1 §2.4.4.4): the 12-bit field encodes the number of bytes
// following it, capped at 1021 so a section never exceeds 1024 bytes.
const MaxSectionLength = 1021

// HeaderAfterSectionLengthSize is the number of bytes of fixed fields that
// follow the section_length field and are counted within it
// (transport_stream_id or program_number, version/current_next,
// section_number, last_section_number). The trailing 4-byte CRC_32 is also
// counted within section_length but is not part of this constant.
const HeaderAfterSectionLengthSize = 5

// psiHeader is the common fields shared by PAT and PMT sections.
type psiHeader struct {
	TableID               uint8
	SectionSyntaxIndicator bool
	SectionLength         uint16
}

// stripPointerField removes the pointer_field byte (and the bytes it skips)
// from a PSI-carrying fragment payload when PUSI is set. Only a single
// pointer field is handled — continuation across further TS packets isn't
// attempted, matching the original decoder's scope.
func stripPointerField(payload []byte, pusi bool) ([]byte, bool) {
	if !pusi {
		return payload, true
	}
	if len(payload) < 1 {
		return nil, false
	}
	pointer := int(payload[0])
	if 1+pointer > len(payload) {
		return nil, false
	}
	return payload[1+pointer:], true
}

func decodePSIHeader(buf []byte) (psiHeader, []byte, bool) {
	if len(buf) < 3 {
		return psiHeader{}, nil, false
	}
	tableID := buf[0]
	ssi := buf[1]&0x80 != 0
	sectionLength := uint16(buf[1]&0x0F)<<8 | uint16(buf[2])
	if sectionLength < HeaderAfterSectionLengthSize || sectionLength > MaxSectionLength {
		return psiHeader{}, nil, false
	}
	if 3+int(sectionLength) > len(buf) {
		return psiHeader{}, nil, false
	}
	return psiHeader{TableID: tableID, SectionSyntaxIndicator: ssi, SectionLength: sectionLength},
		buf[3 : 3+int(sectionLength)], true
}

// ProgramAssociationTable is a fully reassembled PAT.
type ProgramAssociationTable struct {
	TransportStreamID uint16
	VersionNumber     uint8
	CurrentNext       bool
	SectionNumber     uint8
	LastSectionNumber uint8
	Programs          map[uint16]uint16 // program_number -> PID (network PID for program 0)
	CRC32             uint32
}

// DecodePAT decodes a single (non-fragmented) PAT section's payload, pointer
// field already stripped.
func DecodePAT(payload []byte) (ProgramAssociationTable, bool) {
	hdr, rest, ok := decodePSIHeader(payload)
	if !ok || hdr.TableID != 0x00 {
		return ProgramAssociationTable{}, false
	}
	if len(rest) < HeaderAfterSectionLengthSize+4 {
		return ProgramAssociationTable{}, false
	}

	tsid := uint16(rest[0])<<8 | uint16(rest[1])
	version := (rest[2] >> 1) & 0x1F
	currentNext := rest[2]&0x01 != 0
	sectionNumber := rest[3]
	lastSectionNumber := rest[4]

	body := rest[5 : len(rest)-4]
	crcBytes := rest[len(rest)-4:]
	crc := uint32(crcBytes[0])<<24 | uint32(crcBytes[1])<<16 | uint32(crcBytes[2])<<8 | uint32(crcBytes[3])

	programs := make(map[uint16]uint16)
	for i := 0; i+4 <= len(body); i += 4 {
		programNumber := uint16(body[i])<<8 | uint16(body[i+1])
		pid := uint16(body[i+2]&pidMaskUpper)<<8 | uint16(body[i+3])
		programs[programNumber] = pid
	}

	return ProgramAssociationTable{
		TransportStreamID: tsid,
		VersionNumber:     version,
		CurrentNext:       currentNext,
		SectionNumber:     sectionNumber,
		LastSectionNumber: lastSectionNumber,
		Programs:          programs,
		CRC32:             crc,
	}, true
}

// ProgramMapTable is a fully reassembled PMT.
type ProgramMapTable struct {
	ProgramNumber     uint16
	VersionNumber     uint8
	CurrentNext       bool
	SectionNumber     uint8
	LastSectionNumber uint8
	PCRPid            uint16
	Descriptors       []Descriptor
	Streams           []ElementaryStream
	CRC32             uint32
}

// ElementaryStream is one entry in a PMT's stream loop.
type ElementaryStream struct {
	StreamType  StreamType
	PID         uint16
	Descriptors []Descriptor
}

// DecodePMT decodes a single PMT section's payload, pointer field already
// stripped.
func DecodePMT(payload []byte) (ProgramMapTable, bool) {
	hdr, rest, ok := decodePSIHeader(payload)
	if !ok || hdr.TableID != 0x02 {
		return ProgramMapTable{}, false
	}
	if len(rest) < 9 {
		return ProgramMapTable{}, false
	}

	programNumber := uint16(rest[0])<<8 | uint16(rest[1])
	version := (rest[2] >> 1) & 0x1F
	currentNext := rest[2]&0x01 != 0
	sectionNumber := rest[3]
	lastSectionNumber := rest[4]
	pcrPID := uint16(rest[5]&pidMaskUpper)<<8 | uint16(rest[6])
	programInfoLength := int(uint16(rest[7]&0x0F)<<8 | uint16(rest[8]))

	idx := 9
	if idx+programInfoLength > len(rest)-4 {
		return ProgramMapTable{}, false
	}
	descriptors := DecodeDescriptors(rest[idx : idx+programInfoLength])
	idx += programInfoLength

	crcStart := len(rest) - 4
	var streams []ElementaryStream
	for idx+5 <= crcStart {
		streamType := StreamType(rest[idx])
		elementaryPID := uint16(rest[idx+1]&pidMaskUpper)<<8 | uint16(rest[idx+2])
		esInfoLength := int(uint16(rest[idx+3]&0x0F)<<8 | uint16(rest[idx+4]))
		idx += 5
		if idx+esInfoLength > crcStart {
			return ProgramMapTable{}, false
		}
		streams = append(streams, ElementaryStream{
			StreamType:  streamType,
			PID:         elementaryPID,
			Descriptors: DecodeDescriptors(rest[idx : idx+esInfoLength]),
		})
		idx += esInfoLength
	}

	crcBytes := rest[crcStart:]
	crc := uint32(crcBytes[0])<<24 | uint32(crcBytes[1])<<16 | uint32(crcBytes[2])<<8 | uint32(crcBytes[3])

	return ProgramMapTable{
		ProgramNumber:     programNumber,
		VersionNumber:     version,
		CurrentNext:       currentNext,
		SectionNumber:     sectionNumber,
		LastSectionNumber: lastSectionNumber,
		PCRPid:            pcrPID,
		Descriptors:       descriptors,
		Streams:           streams,
		CRC32:             crc,
	}, true
}

// Buffer reassembles a PAT or PMT across multiple TS fragments, keyed by
// PID, holding sections ordered by section_number until last_section_number
// is observed and every section in between has arrived.
type Buffer struct {
	pid               uint16
	sections          map[uint8][]byte
	lastSectionNumber uint8
	haveLast          bool
}

// NewBuffer creates an empty reassembly buffer for the given PID.
func NewBuffer(pid uint16) *Buffer {
	return &Buffer{pid: pid, sections: make(map[uint8][]byte)}
}

// Add feeds one fragment's (pointer-stripped) payload into the buffer.
func (b *Buffer) Add(payload []byte) error {
	hdr, rest, ok := decodePSIHeader(payload)
	if !ok {
		return fmt.Errorf("mpegts: invalid PSI header on PID %d", b.pid)
	}
	_ = hdr
	if len(rest) < 5 {
		return fmt.Errorf("mpegts: PSI section too short on PID %d", b.pid)
	}
	sectionNumber := rest[3]
	lastSectionNumber := rest[4]
	b.sections[sectionNumber] = payload
	b.lastSectionNumber = lastSectionNumber
	b.haveLast = true
	return nil
}

// Complete reports whether every section from 0 to LastSectionNumber has
// been seen.
func (b *Buffer) Complete() bool {
	if !b.haveLast {
		return false
	}
	for i := uint8(0); i <= b.lastSectionNumber; i++ {
		if _, ok := b.sections[i]; !ok {
			return false
		}
		if i == 255 {
			break
		}
	}
	return true
}

// Reset clears the buffer, used on a PID reassignment or table version bump.
func (b *Buffer) Reset() {
	b.sections = make(map[uint8][]byte)
	b.haveLast = false
}

// Section0 returns section 0's raw bytes, sufficient for the common
// single-section PAT/PMT case.
func (b *Buffer) Section0() ([]byte, bool) {
	s, ok := b.sections[0]
	return s, ok
}

// Sections returns every reassembled section's raw bytes in order, from
// section_number 0 through LastSectionNumber. Only valid once Complete.
func (b *Buffer) Sections() ([][]byte, bool) {
	if !b.Complete() {
		return nil, false
	}
	sections := make([][]byte, 0, int(b.lastSectionNumber)+1)
	for i := uint8(0); ; i++ {
		s, ok := b.sections[i]
		if !ok {
			return nil, false
		}
		sections = append(sections, s)
		if i == b.lastSectionNumber || i == 255 {
			break
		}
	}
	return sections, true
}

// DecodePATSections decodes every section of a (possibly multi-fragment)
// PAT, in section_number order, and merges their program entries into one
// table. Header fields are taken from section 0.
func DecodePATSections(sections [][]byte) (ProgramAssociationTable, bool) {
	if len(sections) == 0 {
		return ProgramAssociationTable{}, false
	}
	merged := ProgramAssociationTable{Programs: make(map[uint16]uint16)}
	for i, section := range sections {
		pat, ok := DecodePAT(section)
		if !ok {
			return ProgramAssociationTable{}, false
		}
		if i == 0 {
			merged.TransportStreamID = pat.TransportStreamID
			merged.VersionNumber = pat.VersionNumber
			merged.CurrentNext = pat.CurrentNext
			merged.SectionNumber = pat.SectionNumber
			merged.LastSectionNumber = pat.LastSectionNumber
		}
		for program, pid := range pat.Programs {
			merged.Programs[program] = pid
		}
		merged.CRC32 = pat.CRC32
	}
	return merged, true
}

// DecodePMTSections decodes every section of a (possibly multi-fragment)
// PMT, in section_number order, and merges their stream-loop entries into
// one table. Program-level fields and descriptors are taken from section 0,
// since the program_info loop is only ever carried there.
func DecodePMTSections(sections [][]byte) (ProgramMapTable, bool) {
	if len(sections) == 0 {
		return ProgramMapTable{}, false
	}
	var merged ProgramMapTable
	for i, section := range sections {
		pmt, ok := DecodePMT(section)
		if !ok {
			return ProgramMapTable{}, false
		}
		if i == 0 {
			merged.ProgramNumber = pmt.ProgramNumber
			merged.VersionNumber = pmt.VersionNumber
			merged.CurrentNext = pmt.CurrentNext
			merged.SectionNumber = pmt.SectionNumber
			merged.LastSectionNumber = pmt.LastSectionNumber
			merged.PCRPid = pmt.PCRPid
			merged.Descriptors = pmt.Descriptors
		}
		merged.Streams = append(merged.Streams, pmt.Streams...)
		merged.CRC32 = pmt.CRC32
	}
	return merged, true
}
