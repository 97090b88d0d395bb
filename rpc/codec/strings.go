package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxStringLen matches the default maximum message size
const maxStringLen = 16 << 20

// chunkSize bounds the up front allocation when the remaining input is unknown
const chunkSize = 4 << 10

// AppendString appends s with a 7-bit encoded (uvarint) length prefix
func AppendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

// ReadString reads one length prefixed string from r.
// The prefix must not claim more bytes than r has left.
func ReadString(r io.ByteReader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("%w: string length %d exceeds limit", ErrShortMessage, n)
	}

	// *bytes.Reader, *bytes.Buffer and *strings.Reader know what is left
	if rest, ok := r.(interface{ Len() int }); ok {
		if left := rest.Len(); n > uint64(left) {
			return "", fmt.Errorf("%w: string of %d bytes, %d left", ErrShortMessage, n, left)
		}
		if rr, ok := r.(io.Reader); ok {
			buf := make([]byte, n)
			if _, err := io.ReadFull(rr, buf); err != nil {
				return "", fmt.Errorf("%w: %v", ErrShortMessage, err)
			}
			return string(buf), nil
		}
	}

	buf := make([]byte, 0, min(n, chunkSize))
	for i := uint64(0); i < n; i++ {
		c, err := r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("%w: string cut after %d of %d bytes", ErrShortMessage, i, n)
		}
		buf = append(buf, c)
	}
	return string(buf), nil
}

// ReadStrings reads length prefixed strings until r is exhausted
func ReadStrings(r io.ByteReader) ([]string, error) {
	var out []string
	for {
		s, err := ReadString(r)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}
