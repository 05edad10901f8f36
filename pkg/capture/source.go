package capture

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// SourceKey identifies a capture source stably within a process: either a
// file path or a network interface name (with a promiscuous-mode marker,
// since the same interface name with and without promisc is a distinct
// logical source).
type SourceKey struct {
	Kind      SourceKind
	Name      string
	Promisc   bool
}

// SourceKind distinguishes file-backed sources (PCAP, event-log) from live
// network interfaces.
type SourceKind int

const (
	SourceFile SourceKind = iota
	SourceInterface
)

func (k SourceKind) String() string {
	if k == SourceInterface {
		return "interface"
	}
	return "file"
}

// String renders the key the way the original Source::Interface debug
// format does: the name followed by a promiscuous-mode marker.
func (k SourceKey) String() string {
	if k.Kind == SourceFile {
		return k.Name
	}
	if k.Promisc {
		return fmt.Sprintf("%s (promisc)", k.Name)
	}
	return k.Name
}

// RawPacket is what a capture binding hands the pipeline before
// classification: the IP-layer envelope plus an undecoded payload.
type RawPacket struct {
	Timestamp       time.Duration
	CreationTime    time.Time
	Length          uint32
	SourceAddr      netip.AddrPort
	DestinationAddr netip.AddrPort
	Transport       RawTransport
	Payload         []byte
}

// RawTransport mirrors packet.TransportProtocol without importing pkg/packet,
// so capture bindings don't need to depend on classification internals.
type RawTransport int

const (
	RawTCP RawTransport = iota
	RawUDP
)

// ErrSourceEnded signals the source is exhausted (file EOF, interface
// closed): the pipeline task exits but the ring's contents remain until
// aged out.
var ErrSourceEnded = errors.New("capture: source ended")

// Source is the contract a capture binding satisfies. Live interface
// capture and PCAP file replay are themselves third-party bindings (e.g.
// to libpcap) outside this module's scope; this interface is the seam they
// plug into.
type Source interface {
	Key() SourceKey
	// NextPacket blocks until a packet is available, ctx is canceled, or the
	// source is exhausted (ErrSourceEnded). A non-nil, non-ErrSourceEnded
	// error is a transient read error: the caller logs and continues.
	NextPacket(ctx context.Context) (RawPacket, error)
	// ApplyFilter installs a BPF filter on live/offline packet sources. A
	// no-op (return nil) for sources that don't support filtering, such as
	// event-log tails.
	ApplyFilter(filter string) error
	Close() error
}

// Reader is the minimal capture binding contract: something that can hand
// back one raw packet at a time. FileSource and InterfaceSource each wrap a
// Reader supplied by the actual capture binding in use (e.g. a pcap
// library's offline or live handle).
type Reader interface {
	ReadPacket() (RawPacket, error)
	SetFilter(filter string) error
	Close() error
}

// FileSource replays packets from a Reader backed by a capture file.
type FileSource struct {
	key    SourceKey
	reader Reader
}

// NewFileSource wraps reader as a file-backed source named path.
func NewFileSource(path string, reader Reader) *FileSource {
	return &FileSource{key: SourceKey{Kind: SourceFile, Name: path}, reader: reader}
}

func (s *FileSource) Key() SourceKey { return s.key }

func (s *FileSource) NextPacket(ctx context.Context) (RawPacket, error) {
	select {
	case <-ctx.Done():
		return RawPacket{}, ctx.Err()
	default:
	}
	p, err := s.reader.ReadPacket()
	if err != nil {
		return RawPacket{}, err
	}
	return p, nil
}

func (s *FileSource) ApplyFilter(filter string) error { return s.reader.SetFilter(filter) }
func (s *FileSource) Close() error                    { return s.reader.Close() }

// InterfaceSource captures packets live from a Reader backed by a network
// interface.
type InterfaceSource struct {
	key    SourceKey
	reader Reader
}

// NewInterfaceSource wraps reader as a live source on the named interface.
func NewInterfaceSource(name string, promisc bool, reader Reader) *InterfaceSource {
	return &InterfaceSource{key: SourceKey{Kind: SourceInterface, Name: name, Promisc: promisc}, reader: reader}
}

func (s *InterfaceSource) Key() SourceKey { return s.key }

func (s *InterfaceSource) NextPacket(ctx context.Context) (RawPacket, error) {
	select {
	case <-ctx.Done():
		return RawPacket{}, ctx.Err()
	default:
	}
	return s.reader.ReadPacket()
}

func (s *InterfaceSource) ApplyFilter(filter string) error { return s.reader.SetFilter(filter) }
func (s *InterfaceSource) Close() error                    { return s.reader.Close() }
