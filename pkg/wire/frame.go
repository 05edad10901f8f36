package wire

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// frame header: 1-byte compression flag, 4-byte big-endian payload length.
const (
	flagPlain    byte = 0
	flagGzip     byte = 1
	headerLength      = 5
)

// gzipThreshold is the payload size above which WriteFrame compresses: small
// messages (a single Packet, a stats tick) aren't worth the gzip framing
// overhead, matching the original's "large responses MAY be compressed"
// per-message choice.
const gzipThreshold = 4096

// WriteFrame writes b to w as one length-prefixed frame, gzip-compressing it
// first when it's large enough to be worth the overhead.
func WriteFrame(w io.Writer, b []byte) error {
	payload := b
	flag := flagPlain

	if len(b) > gzipThreshold {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(b); err != nil {
			return fmt.Errorf("wire: gzip write: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("wire: gzip close: %w", err)
		}
		if buf.Len() < len(b) {
			payload = buf.Bytes()
			flag = flagGzip
		}
	}

	header := make([]byte, headerLength)
	header[0] = flag
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// EncodeFrame returns the framed bytes for b, for transports (such as a
// websocket) that already delimit individual messages and just need the
// compression-flag header inline.
func EncodeFrame(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeFrame reverses EncodeFrame.
func DecodeFrame(b []byte) ([]byte, error) {
	return ReadFrame(bytes.NewReader(b))
}

// ReadFrame reads one frame written by WriteFrame, transparently
// decompressing it if the gzip flag is set.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, headerLength)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	flag := header[0]
	length := binary.BigEndian.Uint32(header[1:])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: read payload: %w", err)
	}

	switch flag {
	case flagPlain:
		return payload, nil
	case flagGzip:
		gz, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("wire: gzip reader: %w", err)
		}
		defer gz.Close()
		out, err := io.ReadAll(gz)
		if err != nil {
			return nil, fmt.Errorf("wire: gzip read: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("wire: unknown frame flag %d", flag)
	}
}
