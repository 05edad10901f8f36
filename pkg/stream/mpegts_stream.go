package stream

import (
	"net/netip"

	"github.com/netpix/netpix/pkg/decode/mpegts"
	"github.com/netpix/netpix/pkg/packet"
)

// MpegtsKey identifies a transport stream by its 4-tuple plus the
// transport_stream_id carried in its PAT.
type MpegtsKey struct {
	Source      netip.AddrPort
	Destination netip.AddrPort
	Transport   packet.TransportProtocol
	TSID        uint16
}

// SubstreamKey identifies one elementary substream within a transport
// stream: the owning PAT's program, the TSID, and the stream's declared
// type, matching the original aggregator's substream identity.
type SubstreamKey struct {
	TSID          uint16
	ProgramNumber uint16
	StreamType    mpegts.StreamType
}

// MpegtsSubstream is one elementary stream within a transport stream, named
// by the PMT entry that describes it.
type MpegtsSubstream struct {
	Key           SubstreamKey
	Alias         string
	PMTPid        uint16
	ElementaryPid uint16
	Descriptors   []mpegts.Descriptor
	Processed     map[uint64]struct{}
}

func newMpegtsSubstream(key SubstreamKey, alias string, pmtPid, elementaryPid uint16, descriptors []mpegts.Descriptor) *MpegtsSubstream {
	return &MpegtsSubstream{
		Key:           key,
		Alias:         alias,
		PMTPid:        pmtPid,
		ElementaryPid: elementaryPid,
		Descriptors:   descriptors,
		Processed:     make(map[uint64]struct{}),
	}
}

// markProcessed reports whether id had already been folded into this
// substream, recording it if not (de-duplicates across historical replay).
func (m *MpegtsSubstream) markProcessed(id uint64) bool {
	if _, ok := m.Processed[id]; ok {
		return true
	}
	m.Processed[id] = struct{}{}
	return false
}

// MpegtsStream owns a transport stream's reassembled PAT, the per-PID PMT
// reassembly buffers it implies, and the substreams derived from them.
type MpegtsStream struct {
	Key   MpegtsKey
	Alias string

	PAT       *mpegts.ProgramAssociationTable
	patBuffer *mpegts.Buffer

	pmtBuffers map[uint16]*mpegts.Buffer
	pmts       map[uint16]*mpegts.ProgramMapTable

	Substreams map[SubstreamKey]*MpegtsSubstream
	nextAlias  int
}

// NewMpegtsStream creates an empty transport stream, keyed before its TSID
// is even known (TSID arrives only once the PAT reassembles).
func NewMpegtsStream(key MpegtsKey, alias string) *MpegtsStream {
	return &MpegtsStream{
		Key:        key,
		Alias:      alias,
		patBuffer:  mpegts.NewBuffer(0),
		pmtBuffers: make(map[uint16]*mpegts.Buffer),
		pmts:       make(map[uint16]*mpegts.ProgramMapTable),
		Substreams: make(map[SubstreamKey]*MpegtsSubstream),
	}
}

// AddPacket folds every fragment of a decoded transport-stream packet into
// the PAT/PMT reassembly buffers and, once a PMT completes, the substreams
// it names.
func (m *MpegtsStream) AddPacket(id uint64, pkt *mpegts.Packet) {
	for _, frag := range pkt.Fragments {
		switch frag.Header.PID.Kind {
		case mpegts.PIDProgramAssociation:
			m.feedPAT(frag)
		default:
			m.feedPMT(frag)
		}
	}

	for pmtPid, buf := range m.pmtBuffers {
		if _, have := m.pmts[pmtPid]; have {
			continue
		}
		sections, ok := buf.Sections()
		if !ok {
			continue
		}
		pmt, ok := mpegts.DecodePMTSections(sections)
		if !ok {
			continue
		}
		m.pmts[pmtPid] = &pmt
		m.registerSubstreams(id, pmtPid, pmt)
	}
}

func (m *MpegtsStream) feedPAT(frag mpegts.Fragment) {
	if m.PAT != nil {
		return
	}
	payload, ok := stripPointer(frag)
	if !ok {
		return
	}
	if err := m.patBuffer.Add(payload); err != nil {
		return
	}
	if !m.patBuffer.Complete() {
		return
	}
	sections, ok := m.patBuffer.Sections()
	if !ok {
		return
	}
	pat, ok := mpegts.DecodePATSections(sections)
	if !ok {
		return
	}
	m.PAT = &pat
	m.Key.TSID = pat.TransportStreamID

	for _, pid := range pat.Programs {
		if _, have := m.pmtBuffers[pid]; !have {
			m.pmtBuffers[pid] = mpegts.NewBuffer(pid)
		}
	}
}

func (m *MpegtsStream) feedPMT(frag mpegts.Fragment) {
	buf, tracked := m.pmtBuffers[frag.Header.PID.Value]
	if !tracked {
		return
	}
	payload, ok := stripPointer(frag)
	if !ok {
		return
	}
	_ = buf.Add(payload)
}

func (m *MpegtsStream) registerSubstreams(id uint64, pmtPid uint16, pmt mpegts.ProgramMapTable) {
	for _, es := range pmt.Streams {
		key := SubstreamKey{TSID: m.Key.TSID, ProgramNumber: pmt.ProgramNumber, StreamType: es.StreamType}
		sub, ok := m.Substreams[key]
		if !ok {
			sub = newMpegtsSubstream(key, NextAlias(m.nextAlias), pmtPid, es.PID, es.Descriptors)
			m.nextAlias++
			m.Substreams[key] = sub
		}
		sub.markProcessed(id)
	}
}

// stripPointer strips a PSI fragment's leading pointer_field, present only
// when PUSI marks this fragment as starting a new section.
func stripPointer(frag mpegts.Fragment) ([]byte, bool) {
	payload := frag.Payload
	if !frag.Header.PUSI {
		return payload, len(payload) > 0
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
