package capture

import (
	"errors"
	"io"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// PcapReader is a Reader backed by libpcap, used for both offline PCAP
// files and live network interfaces. Parsing the IP/TCP/UDP envelope is
// gopacket's job; everything above that (RTP, RTCP, MPEG-TS, STUN) is
// netpix's own decoding, kept out of this binding entirely.
type PcapReader struct {
	handle *pcap.Handle
}

// OpenOfflinePcap opens path for replay.
func OpenOfflinePcap(path string) (*PcapReader, error) {
	h, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, err
	}
	return &PcapReader{handle: h}, nil
}

// OpenLivePcap opens iface for live capture.
func OpenLivePcap(iface string, promisc bool, snaplen int32) (*PcapReader, error) {
	h, err := pcap.OpenLive(iface, snaplen, promisc, pcap.BlockForever)
	if err != nil {
		return nil, err
	}
	return &PcapReader{handle: h}, nil
}

// ListInterfaces enumerates capturable network interfaces by name.
func ListInterfaces() ([]string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(devs))
	for _, d := range devs {
		names = append(names, d.Name)
	}
	return names, nil
}

func (r *PcapReader) SetFilter(filter string) error {
	if filter == "" {
		return nil
	}
	return r.handle.SetBPFFilter(filter)
}

func (r *PcapReader) Close() error {
	r.handle.Close()
	return nil
}

// ReadPacket reads the next packet and decodes its IP-layer envelope,
// leaving the transport payload raw for netpix's own decoders.
func (r *PcapReader) ReadPacket() (RawPacket, error) {
	for {
		data, ci, err := r.handle.ReadPacketData()
		if err != nil {
			if errors.Is(err, pcap.NextErrorTimeoutExpired) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return RawPacket{}, ErrSourceEnded
			}
			return RawPacket{}, err
		}

		pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
		raw, ok := envelopeOf(pkt, ci)
		if !ok {
			continue
		}
		return raw, nil
	}
}

func envelopeOf(pkt gopacket.Packet, ci gopacket.CaptureInfo) (RawPacket, bool) {
	var srcAddr, dstAddr netip.Addr
	switch net := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		srcAddr, _ = netip.AddrFromSlice(net.SrcIP.To4())
		dstAddr, _ = netip.AddrFromSlice(net.DstIP.To4())
	case *layers.IPv6:
		srcAddr, _ = netip.AddrFromSlice(net.SrcIP.To16())
		dstAddr, _ = netip.AddrFromSlice(net.DstIP.To16())
	default:
		return RawPacket{}, false
	}

	var srcPort, dstPort uint16
	var transport RawTransport
	var payload []byte

	switch tr := pkt.TransportLayer().(type) {
	case *layers.UDP:
		srcPort, dstPort = uint16(tr.SrcPort), uint16(tr.DstPort)
		transport = RawUDP
		payload = tr.Payload
	case *layers.TCP:
		srcPort, dstPort = uint16(tr.SrcPort), uint16(tr.DstPort)
		transport = RawTCP
		payload = tr.Payload
	default:
		return RawPacket{}, false
	}

	return RawPacket{
		Timestamp:       time.Duration(ci.Timestamp.UnixNano()),
		CreationTime:    ci.Timestamp,
		Length:          uint32(ci.Length),
		SourceAddr:      netip.AddrPortFrom(srcAddr, srcPort),
		DestinationAddr: netip.AddrPortFrom(dstAddr, dstPort),
		Transport:       transport,
		Payload:         payload,
	}, true
}
