package mpegts

import "github.com/netpix/netpix/pkg/bitreader"

// DescriptorTag is the 8-bit tag of a PSI descriptor (ISO/IEC 13818-1 §2.6).
type DescriptorTag uint8

const (
	TagVideoStream                DescriptorTag = 2
	TagAudioStream                DescriptorTag = 3
	TagHierarchy                  DescriptorTag = 4
	TagRegistration               DescriptorTag = 5
	TagDataStreamAlignment        DescriptorTag = 6
	TagTargetBackgroundGrid       DescriptorTag = 7
	TagVideoWindow                DescriptorTag = 8
	TagCA                         DescriptorTag = 9
	TagIso639Language             DescriptorTag = 10
	TagSystemClock                DescriptorTag = 11
	TagMultiplexBufferUtilization DescriptorTag = 12
	TagCopyright                  DescriptorTag = 13
	TagMaximumBitrate             DescriptorTag = 14
	TagPrivateDataIndicator       DescriptorTag = 15
	TagStd                        DescriptorTag = 17
	TagAvcVideo                   DescriptorTag = 40
	TagContentLabelling           DescriptorTag = 0x24
	TagExtension                  DescriptorTag = 0x3F
)

// Descriptor is one decoded (tag, length, body) triple from a descriptor
// loop. Typed fields are populated only for the tag they belong to; Body
// always holds the raw value bytes regardless of whether a typed decode
// succeeded.
type Descriptor struct {
	Tag  DescriptorTag
	Body []byte

	// UserPrivate marks tags in the 0x40-0xFF user-private range, which have
	// no typed layout by definition — only Body applies.
	UserPrivate bool

	// VideoStream
	MultipleFrameRate *bool
	FrameRateCode     *uint8

	// AudioStream
	FreeFormatFlag *bool
	ID             *bool
	Layer          *uint8

	// Hierarchy
	NoViewScalability           *bool
	NoTemporalScalability       *bool
	NoSpatialScalability        *bool
	NoQualityScalability        *bool
	HierarchyType               *uint8
	HierarchyLayerIndex         *uint8
	TRefPresent                 *bool
	HierarchyEmbeddedLayerIndex *uint8
	HierarchyChannel            *uint8

	// Registration format identifier (4 ASCII bytes).
	FormatIdentifier []byte

	// DataStreamAlignment
	AlignmentType *uint8

	// TargetBackgroundGrid
	HorizontalSize  *uint16
	VerticalSize    *uint16
	AspectRatioInfo *uint8

	// VideoWindow
	HorizontalOffset *uint16
	VerticalOffset   *uint16
	WindowPriority   *uint8

	// CA
	CASystemID    *uint16
	CAPID         *uint16
	CAPrivateData []byte

	// Iso639Language: one entry per 4-byte group in Body.
	Languages []Iso639LanguageEntry

	// SystemClock
	ExternalClockReference *bool
	ClockAccuracyInteger   *uint8
	ClockAccuracyExponent  *uint8

	// MultiplexBufferUtilization
	BoundValidFlag      *bool
	LTWOffsetLowerBound *uint16
	LTWOffsetUpperBound *uint16

	// Copyright
	CopyrightIdentifier     *uint32
	AdditionalCopyrightInfo []byte

	// MaximumBitrate, in units of 50 bytes/second.
	MaximumBitrate *uint32

	// PrivateDataIndicator
	PrivateDataIndicatorValue *uint32

	// Std
	LeakValidFlag *bool

	// AvcVideo
	ProfileIDC                *uint8
	ConstraintSet0            *bool
	ConstraintSet1            *bool
	ConstraintSet2            *bool
	ConstraintSet3            *bool
	ConstraintSet4            *bool
	ConstraintSet5            *bool
	AVCCompatibleFlags        *uint8
	LevelIDC                  *uint8
	AVCStillPresent           *bool
	AVC24HourPicture          *bool
	FramePackingSEINotPresent *bool

	// ContentLabelling
	MetadataApplicationFormat           *uint16
	MetadataApplicationFormatIdentifier *uint32
	ContentReferenceIDRecordFlag        *bool
	ContentTimeBaseIndicator            *uint8
	ContentReferenceIDBytes             []byte
	ContentTimeBaseValue                *uint64
	MetadataTimeBaseValue               *uint64
	ContentID                           *uint8
	ContentTimeBaseDataLength           *uint8
	ContentLabellingPrivateData         []byte

	// Extension (tag 0x3F): the extended_descriptor_tag that follows the
	// outer tag/length.
	ExtensionTag *uint8
}

// Iso639LanguageEntry is one {language, audio_type} pair within an
// ISO_639_language_descriptor, which may list more than one language.
type Iso639LanguageEntry struct {
	Language  [3]byte
	AudioType uint8
}

// DecodeDescriptors walks a descriptor loop until buf is exhausted.
func DecodeDescriptors(buf []byte) []Descriptor {
	var out []Descriptor
	idx := 0
	for idx+2 <= len(buf) {
		tag := DescriptorTag(buf[idx])
		length := int(buf[idx+1])
		idx += 2
		if idx+length > len(buf) {
			break
		}
		body := buf[idx : idx+length]
		out = append(out, decodeDescriptor(tag, body))
		idx += length
	}
	return out
}

func decodeDescriptor(tag DescriptorTag, body []byte) Descriptor {
	d := Descriptor{Tag: tag, Body: append([]byte(nil), body...)}

	if tag >= 0x40 {
		d.UserPrivate = true
		return d
	}

	switch tag {
	case TagVideoStream:
		if len(body) >= 1 {
			mfr := body[0]&0x80 != 0
			frc := (body[0] >> 3) & 0x0F
			d.MultipleFrameRate = &mfr
			d.FrameRateCode = &frc
		}
	case TagAudioStream:
		if len(body) >= 1 {
			ff := body[0]&0x80 != 0
			id := body[0]&0x40 != 0
			layer := (body[0] >> 4) & 0x03
			d.FreeFormatFlag = &ff
			d.ID = &id
			d.Layer = &layer
		}
	case TagHierarchy:
		decodeHierarchy(&d, body)
	case TagRegistration:
		if len(body) >= 4 {
			d.FormatIdentifier = append([]byte(nil), body[:4]...)
		}
	case TagDataStreamAlignment:
		if len(body) >= 1 {
			at := body[0]
			d.AlignmentType = &at
		}
	case TagTargetBackgroundGrid:
		decodeTargetBackgroundGrid(&d, body)
	case TagVideoWindow:
		decodeVideoWindow(&d, body)
	case TagCA:
		decodeCA(&d, body)
	case TagIso639Language:
		for i := 0; i+4 <= len(body); i += 4 {
			entry := Iso639LanguageEntry{AudioType: body[i+3]}
			copy(entry.Language[:], body[i:i+3])
			d.Languages = append(d.Languages, entry)
		}
	case TagSystemClock:
		decodeSystemClock(&d, body)
	case TagMultiplexBufferUtilization:
		decodeMultiplexBufferUtilization(&d, body)
	case TagCopyright:
		if len(body) >= 4 {
			v := uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
			d.CopyrightIdentifier = &v
			d.AdditionalCopyrightInfo = append([]byte(nil), body[4:]...)
		}
	case TagMaximumBitrate:
		if len(body) >= 3 {
			v := uint32(body[0]&0x3F)<<16 | uint32(body[1])<<8 | uint32(body[2])
			d.MaximumBitrate = &v
		}
	case TagPrivateDataIndicator:
		if len(body) >= 4 {
			v := uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
			d.PrivateDataIndicatorValue = &v
		}
	case TagStd:
		if len(body) >= 1 {
			v := body[0]&0x01 != 0
			d.LeakValidFlag = &v
		}
	case TagAvcVideo:
		decodeAvcVideo(&d, body)
	case TagContentLabelling:
		decodeContentLabelling(&d, body)
	case TagExtension:
		if len(body) >= 1 {
			et := body[0]
			d.ExtensionTag = &et
		}
	}

	return d
}

func decodeHierarchy(d *Descriptor, body []byte) {
	if len(body) != 4 {
		return
	}
	noView := body[0]&0x80 != 0
	noTemporal := body[0]&0x40 != 0
	noSpatial := body[0]&0x20 != 0
	noQuality := body[0]&0x10 != 0
	hType := body[1] & 0x0F
	layerIndex := body[2] & 0x3F
	tref := body[3]&0x80 != 0
	embeddedLayerIndex := body[3] & 0x3F
	channel := body[3] & 0x3F

	d.NoViewScalability = &noView
	d.NoTemporalScalability = &noTemporal
	d.NoSpatialScalability = &noSpatial
	d.NoQualityScalability = &noQuality
	d.HierarchyType = &hType
	d.HierarchyLayerIndex = &layerIndex
	d.TRefPresent = &tref
	d.HierarchyEmbeddedLayerIndex = &embeddedLayerIndex
	d.HierarchyChannel = &channel
}

func decodeTargetBackgroundGrid(d *Descriptor, body []byte) {
	if len(body) < 4 {
		return
	}
	val := uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
	horizontal := uint16((val >> 18) & 0x3FFF)
	vertical := uint16((val >> 4) & 0x3FFF)
	aspect := uint8(val & 0x0F)
	d.HorizontalSize = &horizontal
	d.VerticalSize = &vertical
	d.AspectRatioInfo = &aspect
}

func decodeVideoWindow(d *Descriptor, body []byte) {
	if len(body) < 4 {
		return
	}
	val := uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
	horizontal := uint16((val >> 18) & 0x3FFF)
	vertical := uint16((val >> 4) & 0x3FFF)
	priority := uint8(val & 0x0F)
	d.HorizontalOffset = &horizontal
	d.VerticalOffset = &vertical
	d.WindowPriority = &priority
}

func decodeCA(d *Descriptor, body []byte) {
	if len(body) < 4 {
		return
	}
	sysID := uint16(body[0])<<8 | uint16(body[1])
	pid := uint16(body[2]&0x1F)<<8 | uint16(body[3])
	d.CASystemID = &sysID
	d.CAPID = &pid
	if len(body) > 4 {
		d.CAPrivateData = append([]byte(nil), body[4:]...)
	}
}

func decodeSystemClock(d *Descriptor, body []byte) {
	if len(body) < 2 {
		return
	}
	extRef := body[0]&0x80 != 0
	accInt := body[0] & 0x3F
	accExp := (body[1] >> 5) & 0x07
	d.ExternalClockReference = &extRef
	d.ClockAccuracyInteger = &accInt
	d.ClockAccuracyExponent = &accExp
}

func decodeMultiplexBufferUtilization(d *Descriptor, body []byte) {
	if len(body) < 4 {
		return
	}
	val := uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
	boundValid := val&0x80000000 != 0
	d.BoundValidFlag = &boundValid
	if !boundValid {
		return
	}
	lower := uint16((val >> 16) & 0x7FFF)
	upper := uint16(val & 0x7FFF)
	d.LTWOffsetLowerBound = &lower
	d.LTWOffsetUpperBound = &upper
}

func decodeAvcVideo(d *Descriptor, body []byte) {
	if len(body) != 4 {
		return
	}
	profile := body[0]
	cs0 := body[1]&0x80 != 0
	cs1 := body[1]&0x40 != 0
	cs2 := body[1]&0x20 != 0
	cs3 := body[1]&0x10 != 0
	cs4 := body[1]&0x08 != 0
	cs5 := body[1]&0x04 != 0
	compat := body[1] & 0x03
	level := body[2]
	still := body[3]&0x80 != 0
	hour24 := body[3]&0x40 != 0
	noFramePacking := body[3]&0x20 != 0

	d.ProfileIDC = &profile
	d.ConstraintSet0 = &cs0
	d.ConstraintSet1 = &cs1
	d.ConstraintSet2 = &cs2
	d.ConstraintSet3 = &cs3
	d.ConstraintSet4 = &cs4
	d.ConstraintSet5 = &cs5
	d.AVCCompatibleFlags = &compat
	d.LevelIDC = &level
	d.AVCStillPresent = &still
	d.AVC24HourPicture = &hour24
	d.FramePackingSEINotPresent = &noFramePacking
}

// decodeContentLabelling decodes a content_labelling_descriptor
// (ISO/IEC 13818-1 §2.6.87), whose tail varies by content_time_base_indicator.
func decodeContentLabelling(d *Descriptor, body []byte) {
	r := bitreader.New(body)

	format, err := r.ReadBits(16)
	if err != nil {
		return
	}
	metadataFormat := uint16(format)
	d.MetadataApplicationFormat = &metadataFormat

	if metadataFormat == 0xFFFF {
		formatID, err := r.ReadBits(32)
		if err != nil {
			return
		}
		v := uint32(formatID)
		d.MetadataApplicationFormatIdentifier = &v
	}

	recordFlag, err := r.ReadBit()
	if err != nil {
		return
	}
	d.ContentReferenceIDRecordFlag = &recordFlag

	timeBaseIndicator, err := r.ReadBits(4)
	if err != nil {
		return
	}
	indicator := uint8(timeBaseIndicator)
	d.ContentTimeBaseIndicator = &indicator

	if _, err := r.ReadBits(3); err != nil { // reserved
		return
	}

	if recordFlag {
		length, err := r.ReadBits(8)
		if err != nil {
			return
		}
		recordLength := uint8(length)
		idBytes := make([]byte, recordLength)
		for i := range idBytes {
			b, err := r.ReadBits(8)
			if err != nil {
				return
			}
			idBytes[i] = byte(b)
		}
		d.ContentReferenceIDBytes = idBytes
	}

	switch {
	case indicator == 1 || indicator == 2:
		contentTime, err := r.ReadBits(33)
		if err != nil {
			return
		}
		d.ContentTimeBaseValue = &contentTime
		metadataTime, err := r.ReadBits(33)
		if err != nil {
			return
		}
		d.MetadataTimeBaseValue = &metadataTime
		if indicator == 2 {
			if _, err := r.ReadBit(); err != nil { // reserved
				return
			}
			id, err := r.ReadBits(7)
			if err != nil {
				return
			}
			contentID := uint8(id)
			d.ContentID = &contentID
		}
	case indicator >= 3 && indicator <= 7:
		length, err := r.ReadBits(8)
		if err != nil {
			return
		}
		dataLength := uint8(length)
		d.ContentTimeBaseDataLength = &dataLength
		for i := uint8(0); i < dataLength; i++ {
			if _, err := r.ReadBits(8); err != nil {
				return
			}
		}
	default:
		return
	}

	r.AlignToByte()
	if off := r.ByteOffset(); off < len(body) {
		d.ContentLabellingPrivateData = append([]byte(nil), body[off:]...)
	}
}
