// Package stun decodes STUN messages using pion/stun/v3 for framing, then
// re-resolves each attribute's raw bytes against the same ATTR_* table and
// XOR-address algorithm the original implementation replicates from RFC 5389.
package stun

import (
	"net"

	pionstun "github.com/pion/stun/v3"
)

// MagicCookie is the fixed STUN magic cookie (RFC 5389 §6).
const MagicCookie uint32 = 0x2112A442

// Attribute type constants (RFC 5389, RFC 5766, RFC 5245 and friends).
const (
	AttrMappedAddress     uint16 = 0x0001
	AttrSourceAddress     uint16 = 0x0004
	AttrChangedAddress    uint16 = 0x0005
	AttrUsername          uint16 = 0x0006
	AttrMessageIntegrity  uint16 = 0x0008
	AttrErrorCode         uint16 = 0x0009
	AttrUnknownAttributes uint16 = 0x000A
	AttrChannelNumber     uint16 = 0x000C
	AttrLifetime          uint16 = 0x000D
	AttrXorPeerAddress    uint16 = 0x0012
	AttrData              uint16 = 0x0013
	AttrRealm             uint16 = 0x0014
	AttrNonce             uint16 = 0x0015
	AttrXorRelayedAddress uint16 = 0x0016
	AttrRequestedAddressFamily uint16 = 0x0017
	AttrEvenPort               uint16 = 0x0018
	AttrRequestedTransport     uint16 = 0x0019
	AttrDontFragment           uint16 = 0x001A
	AttrMessageIntegritySHA256 uint16 = 0x001C
	AttrPasswordAlgorithm      uint16 = 0x001D
	AttrUserHash               uint16 = 0x001E
	AttrXorMappedAddress       uint16 = 0x0020
	AttrReservationToken       uint16 = 0x0022
	AttrPriority               uint16 = 0x0024
	AttrUseCandidate           uint16 = 0x0025
	AttrPadding                uint16 = 0x0026
	AttrResponsePort           uint16 = 0x0027
	AttrConnectionID           uint16 = 0x002a
	AttrSoftware               uint16 = 0x8022
	AttrAlternateServer        uint16 = 0x8023
	AttrCacheTimeout           uint16 = 0x8027
	AttrFingerprint            uint16 = 0x8028
	AttrIceControlled          uint16 = 0x8029
	AttrIceControlling         uint16 = 0x802A
	AttrResponseOrigin         uint16 = 0x802b
	AttrOtherAddress           uint16 = 0x802C
	AttrChangeRequest          uint16 = 0x0003
	AttrPasswordAlgorithms     uint16 = 0x8002
	AttrAlternateDomain        uint16 = 0x8003
	AttrOrigin                 uint16 = 0x802F
)

// Attribute is a decoded STUN attribute. Addr is populated only for the
// (XOR-)MAPPED-ADDRESS family; Raw always holds the unmodified value bytes.
type Attribute struct {
	Type uint16
	Raw  []byte
	Addr *net.UDPAddr
}

// Message is netpix's decoded STUN header plus attribute list.
type Message struct {
	Method        uint16
	Class         uint16
	TransactionID [12]byte
	Attributes    []Attribute
}

// LooksLikeSTUN reports whether raw begins with a plausible STUN header:
// at least 20 bytes long, with the magic cookie at offset 4. The top two
// bits of the first byte are not checked. This mirrors the original
// classifier's STUN-first rule.
func LooksLikeSTUN(raw []byte) bool {
	return pionstun.IsMessage(raw)
}

// Decode parses raw as a STUN message.
func Decode(raw []byte) (Message, bool) {
	m := &pionstun.Message{Raw: append([]byte(nil), raw...)}
	if err := m.Decode(); err != nil {
		return Message{}, false
	}

	out := Message{
		Method: uint16(m.Type.Method),
		Class:  uint16(m.Type.Class),
	}
	copy(out.TransactionID[:], m.TransactionID[:])

	for _, a := range m.Attributes {
		attr := Attribute{Type: uint16(a.Type), Raw: append([]byte(nil), a.Value...)}
		if isAddressAttr(uint16(a.Type)) {
			if addr, ok := decodeAddress(uint16(a.Type), a.Value, out.TransactionID); ok {
				attr.Addr = addr
			}
		}
		out.Attributes = append(out.Attributes, attr)
	}

	return out, true
}

func isAddressAttr(t uint16) bool {
	switch t {
	case AttrMappedAddress, AttrXorMappedAddress, AttrXorPeerAddress,
		AttrXorRelayedAddress, AttrResponseOrigin, AttrOtherAddress,
		AttrSourceAddress, AttrChangedAddress, AttrAlternateServer:
		return true
	default:
		return false
	}
}

// decodeAddress decodes a (XOR-)MAPPED-ADDRESS-family attribute. XOR family
// members XOR the port against the top 16 bits of the magic cookie and XOR
// the address against the magic cookie (IPv4) or magic-cookie||transaction-id
// (IPv6), per RFC 5389 §15.2.
func decodeAddress(t uint16, value []byte, transactionID [12]byte) (*net.UDPAddr, bool) {
	if len(value) < 4 {
		return nil, false
	}
	family := value[1]
	port := uint16(value[2])<<8 | uint16(value[3])
	xored := isXorAttr(t)

	if xored {
		port ^= uint16(MagicCookie >> 16)
	}

	switch family {
	case 0x01: // IPv4
		if len(value) < 8 {
			return nil, false
		}
		addrBytes := append([]byte(nil), value[4:8]...)
		if xored {
			xorMask := []byte{
				byte(MagicCookie >> 24), byte(MagicCookie >> 16),
				byte(MagicCookie >> 8), byte(MagicCookie),
			}
			for i := range addrBytes {
				addrBytes[i] ^= xorMask[i]
			}
		}
		return &net.UDPAddr{IP: net.IP(addrBytes), Port: int(port)}, true
	case 0x02: // IPv6
		if len(value) < 20 {
			return nil, false
		}
		addrBytes := append([]byte(nil), value[4:20]...)
		if xored {
			mask := make([]byte, 16)
			mask[0] = byte(MagicCookie >> 24)
			mask[1] = byte(MagicCookie >> 16)
			mask[2] = byte(MagicCookie >> 8)
			mask[3] = byte(MagicCookie)
			copy(mask[4:], transactionID[:])
			for i := range addrBytes {
				addrBytes[i] ^= mask[i]
			}
		}
		return &net.UDPAddr{IP: net.IP(addrBytes), Port: int(port)}, true
	default:
		return nil, false
	}
}

func isXorAttr(t uint16) bool {
	switch t {
	case AttrXorMappedAddress, AttrXorPeerAddress, AttrXorRelayedAddress:
		return true
	default:
		return false
	}
}
