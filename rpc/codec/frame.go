package codec

import (
	"fmt"
	"github.com/google/uuid"
)

// IDSize is the width of a correlation identifier
const IDSize = len(uuid.UUID{})

// Reply prefix flags
const (
	untagged byte = 0
	tagged   byte = 1
)

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// AppendRequest encodes a request. A nil id sends no correlation identifier;
// the server then only sees one when the message is longer than IDSize.
func AppendRequest[K Code](b []byte, id *uuid.UUID, cmd K, payloads ...Payload) ([]byte, error) {
	if id != nil {
		b = append(b, id[:]...)
	}
	b = AppendCode(b, cmd)
	return AppendPayloads(b, payloads...)
}

// DecodeRequest splits an inbound message into correlation id, command and payload.
// correlated is false when the id was synthesised because the message was too short.
func DecodeRequest[K Code](msg []byte) (id uuid.UUID, correlated bool, cmd K, payload []byte, err error) {
	rest := msg
	if len(msg) > IDSize {
		copy(id[:], msg[:IDSize])
		rest = msg[IDSize:]
		correlated = true
	} else {
		id = uuid.New()
	}

	cmd, n, err := ReadCode[K](rest)
	if err != nil {
		return id, correlated, cmd, nil, err
	}
	return id, correlated, cmd, rest[n:], nil
}

// --------------------------------------------------------------------------
// Replies
// --------------------------------------------------------------------------

// AppendReplyPrefix writes the correlation prefix of a reply.
// Without appendCorrelation nothing is written; otherwise replies to the
// originator carry true + id and all other replies a single false byte.
func AppendReplyPrefix(b []byte, appendCorrelation bool, id uuid.UUID, toOriginator bool) []byte {
	if !appendCorrelation {
		return b
	}
	if toOriginator {
		b = append(b, tagged)
		return append(b, id[:]...)
	}
	return append(b, untagged)
}

// Reply is a decoded server reply
type Reply[R Code] struct {
	// Correlated is true when the reply answers a specific request
	Correlated bool
	// ID is the correlation id (zero if not correlated)
	ID uuid.UUID
	// Result is the result code
	Result R
	// Payload is everything after the result code
	Payload []byte
}

// DecodeReply decodes a reply written by a server with correlation enabled.
// Framework fallback replies (zero byte + result code) decode as untagged.
func DecodeReply[R Code](msg []byte) (*Reply[R], error) {
	if len(msg) < 1 {
		return nil, fmt.Errorf("%w: empty reply", ErrShortMessage)
	}

	reply := &Reply[R]{}
	rest := msg[1:]
	switch msg[0] {
	case untagged:
	case tagged:
		if len(rest) < IDSize {
			return nil, fmt.Errorf("%w: reply cut inside correlation id", ErrShortMessage)
		}
		reply.Correlated = true
		copy(reply.ID[:], rest[:IDSize])
		rest = rest[IDSize:]
	default:
		return nil, fmt.Errorf("invalid reply flag %d", msg[0])
	}

	result, n, err := ReadCode[R](rest)
	if err != nil {
		return nil, err
	}
	reply.Result = result
	reply.Payload = rest[n:]
	return reply, nil
}

// DecodeUncorrelatedReply decodes a reply written by a server without correlation
func DecodeUncorrelatedReply[R Code](msg []byte) (*Reply[R], error) {
	result, n, err := ReadCode[R](msg)
	if err != nil {
		return nil, err
	}
	return &Reply[R]{Result: result, Payload: msg[n:]}, nil
}
