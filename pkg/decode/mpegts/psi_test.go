package mpegts_test

import (
	"testing"

	"github.com/netpix/netpix/pkg/decode/mpegts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePAT(t *testing.T) {
	rest := []byte{
		0x00, 0x01, // transport_stream_id = 1
		0xC3,       // reserved(11) version(00001) current_next(1)
		0x00,       // section_number
		0x00,       // last_section_number
		0x00, 0x01, 0xE1, 0x00, // program_number=1, PID=256
		0x00, 0x00, 0x00, 0x00, // CRC32 (unchecked)
	}
	sectionLength := len(rest)
	payload := append([]byte{0x00, 0x80 | byte(sectionLength>>8), byte(sectionLength)}, rest...)

	pat, ok := mpegts.DecodePAT(payload)
	require.True(t, ok)
	assert.Equal(t, uint16(1), pat.TransportStreamID)
	assert.Equal(t, uint16(256), pat.Programs[1])
}

func TestDecodePATRejectsBadTable(t *testing.T) {
	payload := []byte{0x02, 0x80, 0x05, 0, 0, 0, 0, 0}
	_, ok := mpegts.DecodePAT(payload)
	assert.False(t, ok)
}

func TestDecodePMT(t *testing.T) {
	streamEntry := []byte{0x1B, 0xE1, 0x00, 0x00, 0x00} // H264, PID=256, ES info len=0
	rest := []byte{
		0x00, 0x01, // program_number = 1
		0xC3, // version/current_next
		0x00, // section_number
		0x00, // last_section_number
		0xE1, 0x00, // PCR PID = 256
		0x00, 0x00, // program_info_length = 0
	}
	rest = append(rest, streamEntry...)
	rest = append(rest, 0x00, 0x00, 0x00, 0x00) // CRC

	sectionLength := len(rest)
	payload := append([]byte{0x02, 0x80 | byte(sectionLength>>8), byte(sectionLength)}, rest...)

	pmt, ok := mpegts.DecodePMT(payload)
	require.True(t, ok)
	assert.Equal(t, uint16(1), pmt.ProgramNumber)
	assert.Equal(t, uint16(256), pmt.PCRPid)
	require.Len(t, pmt.Streams, 1)
	assert.Equal(t, mpegts.StreamTypeVideoH264, pmt.Streams[0].StreamType)
	assert.Equal(t, uint16(256), pmt.Streams[0].PID)
}

func TestBufferCompletesSingleSection(t *testing.T) {
	rest := []byte{0x00, 0x01, 0xC3, 0x00, 0x00, 0x00, 0x01, 0xE1, 0x00, 0, 0, 0, 0}
	payload := append([]byte{0x00, 0x80, byte(len(rest))}, rest...)

	buf := mpegts.NewBuffer(0)
	require.NoError(t, buf.Add(payload))
	assert.True(t, buf.Complete())

	section, ok := buf.Section0()
	require.True(t, ok)
	pat, ok := mpegts.DecodePAT(section)
	require.True(t, ok)
	assert.Equal(t, uint16(1), pat.TransportStreamID)
}

func patSection(tsid uint16, sectionNumber, lastSectionNumber uint8, programs ...[2]uint16) []byte {
	rest := []byte{byte(tsid >> 8), byte(tsid), 0xC3, sectionNumber, lastSectionNumber}
	for _, p := range programs {
		rest = append(rest, byte(p[0]>>8), byte(p[0]), 0xE0|byte(p[1]>>8), byte(p[1]))
	}
	rest = append(rest, 0, 0, 0, 0) // CRC32 (unchecked)
	sectionLength := len(rest)
	return append([]byte{0x00, 0x80 | byte(sectionLength>>8), byte(sectionLength)}, rest...)
}

func TestBufferReassemblesMultiSectionPAT(t *testing.T) {
	buf := mpegts.NewBuffer(0)
	require.NoError(t, buf.Add(patSection(7, 0, 1, [2]uint16{1, 256})))
	assert.False(t, buf.Complete())
	require.NoError(t, buf.Add(patSection(7, 1, 1, [2]uint16{2, 512})))
	require.True(t, buf.Complete())

	sections, ok := buf.Sections()
	require.True(t, ok)
	require.Len(t, sections, 2)

	pat, ok := mpegts.DecodePATSections(sections)
	require.True(t, ok)
	assert.Equal(t, uint16(7), pat.TransportStreamID)
	require.Len(t, pat.Programs, 2)
	assert.Equal(t, uint16(256), pat.Programs[1])
	assert.Equal(t, uint16(512), pat.Programs[2])
}
