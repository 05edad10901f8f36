package mpegts_test

import (
	"testing"

	"github.com/netpix/netpix/pkg/decode/mpegts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeOne(t *testing.T, tag mpegts.DescriptorTag, body []byte) mpegts.Descriptor {
	t.Helper()
	buf := append([]byte{byte(tag), byte(len(body))}, body...)
	descs := mpegts.DecodeDescriptors(buf)
	require.Len(t, descs, 1)
	return descs[0]
}

func TestDecodeDescriptorHierarchy(t *testing.T) {
	d := decodeOne(t, mpegts.TagHierarchy, []byte{0xA0, 0x03, 0x05, 0x8A})

	require.NotNil(t, d.NoViewScalability)
	require.NotNil(t, d.NoSpatialScalability)
	assert.True(t, *d.NoViewScalability)
	assert.False(t, *d.NoTemporalScalability)
	assert.True(t, *d.NoSpatialScalability)
	assert.False(t, *d.NoQualityScalability)
	require.NotNil(t, d.HierarchyType)
	assert.Equal(t, uint8(3), *d.HierarchyType)
	require.NotNil(t, d.HierarchyLayerIndex)
	assert.Equal(t, uint8(5), *d.HierarchyLayerIndex)
	require.NotNil(t, d.TRefPresent)
	assert.True(t, *d.TRefPresent)
	require.NotNil(t, d.HierarchyEmbeddedLayerIndex)
	assert.Equal(t, uint8(10), *d.HierarchyEmbeddedLayerIndex)
	require.NotNil(t, d.HierarchyChannel)
	assert.Equal(t, uint8(10), *d.HierarchyChannel)
}

func TestDecodeDescriptorAvcVideo(t *testing.T) {
	d := decodeOne(t, mpegts.TagAvcVideo, []byte{0x4D, 0x40, 0x28, 0x40})

	require.NotNil(t, d.ProfileIDC)
	assert.Equal(t, uint8(77), *d.ProfileIDC)
	assert.False(t, *d.ConstraintSet0)
	assert.True(t, *d.ConstraintSet1)
	assert.False(t, *d.ConstraintSet2)
	assert.False(t, *d.ConstraintSet3)
	assert.False(t, *d.ConstraintSet4)
	assert.False(t, *d.ConstraintSet5)
	require.NotNil(t, d.AVCCompatibleFlags)
	assert.Equal(t, uint8(0), *d.AVCCompatibleFlags)
	require.NotNil(t, d.LevelIDC)
	assert.Equal(t, uint8(40), *d.LevelIDC)
	require.NotNil(t, d.AVCStillPresent)
	assert.False(t, *d.AVCStillPresent)
	require.NotNil(t, d.AVC24HourPicture)
	assert.True(t, *d.AVC24HourPicture)
	require.NotNil(t, d.FramePackingSEINotPresent)
	assert.False(t, *d.FramePackingSEINotPresent)
}

func TestDecodeDescriptorMultiplexBufferUtilization(t *testing.T) {
	// bound_valid_flag=true, ltw_offset_lower_bound=180, ltw_offset_upper_bound=360
	val := uint32(1)<<31 | uint32(180)<<16 | uint32(360)
	body := []byte{byte(val >> 24), byte(val >> 16), byte(val >> 8), byte(val)}

	d := decodeOne(t, mpegts.TagMultiplexBufferUtilization, body)

	require.NotNil(t, d.BoundValidFlag)
	assert.True(t, *d.BoundValidFlag)
	require.NotNil(t, d.LTWOffsetLowerBound)
	assert.Equal(t, uint16(180), *d.LTWOffsetLowerBound)
	require.NotNil(t, d.LTWOffsetUpperBound)
	assert.Equal(t, uint16(360), *d.LTWOffsetUpperBound)
}

func TestDecodeDescriptorContentLabellingTimeBase(t *testing.T) {
	// metadata_application_format=0x1234, record_flag=0, indicator=1,
	// content_time_base_value=0, metadata_time_base_value=0.
	body := append([]byte{0x12, 0x34, 0x08}, make([]byte, 9)...)

	d := decodeOne(t, mpegts.TagContentLabelling, body)

	require.NotNil(t, d.MetadataApplicationFormat)
	assert.Equal(t, uint16(0x1234), *d.MetadataApplicationFormat)
	require.NotNil(t, d.ContentTimeBaseIndicator)
	assert.Equal(t, uint8(1), *d.ContentTimeBaseIndicator)
	require.NotNil(t, d.ContentTimeBaseValue)
	assert.Equal(t, uint64(0), *d.ContentTimeBaseValue)
	require.NotNil(t, d.MetadataTimeBaseValue)
	assert.Equal(t, uint64(0), *d.MetadataTimeBaseValue)
}

func TestDecodeDescriptorContentLabellingReservedIndicator(t *testing.T) {
	// record_flag=0, indicator=3, content_time_base_data_length=2, then
	// 2 skipped bytes, then 2 bytes of private_data.
	body := []byte{0x00, 0x00, 0x18, 0x02, 0xAA, 0xBB, 0xCC, 0xDD}

	d := decodeOne(t, mpegts.TagContentLabelling, body)

	require.NotNil(t, d.ContentTimeBaseIndicator)
	assert.Equal(t, uint8(3), *d.ContentTimeBaseIndicator)
	require.NotNil(t, d.ContentTimeBaseDataLength)
	assert.Equal(t, uint8(2), *d.ContentTimeBaseDataLength)
	assert.Equal(t, []byte{0xCC, 0xDD}, d.ContentLabellingPrivateData)
}

func TestDecodeDescriptorUserPrivate(t *testing.T) {
	d := decodeOne(t, mpegts.DescriptorTag(0x80), []byte{0x01, 0x02})
	assert.True(t, d.UserPrivate)
	assert.Equal(t, []byte{0x01, 0x02}, d.Body)
}

func TestDecodeDescriptorExtension(t *testing.T) {
	d := decodeOne(t, mpegts.TagExtension, []byte{0x07, 0xAA})
	require.NotNil(t, d.ExtensionTag)
	assert.Equal(t, uint8(0x07), *d.ExtensionTag)
}
