package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Payload is the optional body of a reply. Reply helpers accept any number
// of payloads and write them back to back after the result code.
type Payload interface {
	AppendTo(b []byte) ([]byte, error)
}

// --------------------------------------------------------------------------
// Raw bytes
// --------------------------------------------------------------------------

type bytesPayload []byte

func (p bytesPayload) AppendTo(b []byte) ([]byte, error) {
	return append(b, p...), nil
}

// Bytes wraps a raw byte sequence
func Bytes(data []byte) Payload {
	return bytesPayload(data)
}

// --------------------------------------------------------------------------
// Streams
// --------------------------------------------------------------------------

type streamPayload struct {
	r io.Reader
}

func (p streamPayload) AppendTo(b []byte) ([]byte, error) {
	// seekable streams are sent from their start
	if s, ok := p.r.(io.Seeker); ok {
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return b, fmt.Errorf("rewind stream: %w", err)
		}
	}

	buf := bytes.NewBuffer(b)
	if _, err := buf.ReadFrom(p.r); err != nil {
		return b, fmt.Errorf("read stream: %w", err)
	}
	return buf.Bytes(), nil
}

// Stream reads r until EOF. Seekable readers are rewound first.
func Stream(r io.Reader) Payload {
	return streamPayload{r: r}
}

// --------------------------------------------------------------------------
// String sequences
// --------------------------------------------------------------------------

type stringsPayload []string

func (p stringsPayload) AppendTo(b []byte) ([]byte, error) {
	for _, s := range p {
		b = AppendString(b, s)
	}
	return b, nil
}

// Strings writes every string with its own length prefix
func Strings(s ...string) Payload {
	return stringsPayload(s)
}

// AppendPayloads appends all payloads to b in order
func AppendPayloads(b []byte, payloads ...Payload) ([]byte, error) {
	var err error
	for _, p := range payloads {
		if p == nil {
			continue
		}
		if b, err = p.AppendTo(b); err != nil {
			return b, err
		}
	}
	return b, nil
}

// --------------------------------------------------------------------------
// JSON
// --------------------------------------------------------------------------

type jsonPayload struct {
	v any
}

func (p jsonPayload) AppendTo(b []byte) ([]byte, error) {
	data, err := json.Marshal(p.v)
	if err != nil {
		return b, fmt.Errorf("encode json: %w", err)
	}
	return append(b, data...), nil
}

// JSON writes the json encoding of v
func JSON(v any) Payload {
	return jsonPayload{v: v}
}
