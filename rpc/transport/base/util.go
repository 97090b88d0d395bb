package base

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dCP/rpc/common"
	"io"
	"net"
)

// frameHeaderSize is the size of the length prefix in front of every message
const frameHeaderSize = 4

// WriteFrame writes a frame to the writer with the format:
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func WriteFrame(w io.Writer, data []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	// header and payload in a single write where the writer supports it
	b := net.Buffers{header, data}
	_, err := b.WriteTo(w)
	return err
}

// ReadFrame reads a single frame from the reader.
// Frames larger than maxSize are rejected (maxSize <= 0 disables the check).
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	contentLength := binary.BigEndian.Uint32(header[:])

	// If no data, return empty slice
	if contentLength == 0 {
		return []byte{}, nil
	}

	if maxSize > 0 && int64(contentLength) > int64(maxSize) {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", common.ErrMessageTooLarge, contentLength, maxSize)
	}

	// The payload is handed to protocol handlers that may keep it, so no pooling here
	buf := make([]byte, contentLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
