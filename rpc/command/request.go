package command

import (
	"bytes"
	"github.com/ValentinKolb/dCP/rpc/codec"
	"github.com/ValentinKolb/dCP/rpc/transport"
	"github.com/google/uuid"
)

// Request is one decoded inbound message. It is only valid during the handler call.
type Request[C transport.Connection, K, R codec.Code] struct {
	// ID is the correlation id of the request
	ID uuid.UUID
	// Correlated is false when the message was too short to carry an id
	// and ID was generated locally
	Correlated bool
	// Command is the decoded command code
	Command K
	// Client is the client that sent the request
	Client C

	protocol *Protocol[C, K, R]
	payload  []byte
	reader   *bytes.Reader
}

// --------------------------------------------------------------------------
// Payload access
// --------------------------------------------------------------------------

// Payload returns a copy of the raw payload
func (r *Request[C, K, R]) Payload() []byte {
	return bytes.Clone(r.payload)
}

// Len returns the size of the payload
func (r *Request[C, K, R]) Len() int {
	return len(r.payload)
}

// Reader returns a read cursor over the payload. Every call returns the same cursor.
func (r *Request[C, K, R]) Reader() *bytes.Reader {
	if r.reader == nil {
		r.reader = bytes.NewReader(r.payload)
	}
	return r.reader
}

// ReadString reads the next length prefixed string from the payload
func (r *Request[C, K, R]) ReadString() (string, error) {
	return codec.ReadString(r.Reader())
}

// ReadStrings reads all remaining strings from the payload
func (r *Request[C, K, R]) ReadStrings() ([]string, error) {
	return codec.ReadStrings(r.Reader())
}

// Protocol returns the protocol that dispatched the request
func (r *Request[C, K, R]) Protocol() *Protocol[C, K, R] {
	return r.protocol
}

// Hub returns the server of the protocol or nil if it is not bound
func (r *Request[C, K, R]) Hub() transport.Hub {
	return r.protocol.Hub()
}

// --------------------------------------------------------------------------
// Replies to the originator
// --------------------------------------------------------------------------

// Respond replies to the client that sent the request. The reply carries the
// correlation id if the protocol appends correlation.
func (r *Request[C, K, R]) Respond(result R, payloads ...codec.Payload) error {
	data, err := r.protocol.MkResp(r.ID, true, result, payloads...)
	if err != nil {
		return err
	}
	return r.Client.Send(data)
}

// RespondAsync is Respond without waiting for the write
func (r *Request[C, K, R]) RespondAsync(result R, payloads ...codec.Payload) <-chan error {
	data, err := r.protocol.MkResp(r.ID, true, result, payloads...)
	if err != nil {
		return failed(err)
	}
	return r.Client.SendAsync(data)
}

// --------------------------------------------------------------------------
// Untagged replies
// --------------------------------------------------------------------------

// Send writes an untagged reply to any client
func (r *Request[C, K, R]) Send(to transport.Connection, result R, payloads ...codec.Payload) error {
	data, err := r.untagged(result, payloads)
	if err != nil {
		return err
	}
	return to.Send(data)
}

// SendAsync is Send without waiting for the write
func (r *Request[C, K, R]) SendAsync(to transport.Connection, result R, payloads ...codec.Payload) <-chan error {
	data, err := r.untagged(result, payloads)
	if err != nil {
		return failed(err)
	}
	return to.SendAsync(data)
}

// Broadcast writes an untagged reply to every live client except the originator.
// It returns the number of clients reached.
func (r *Request[C, K, R]) Broadcast(result R, payloads ...codec.Payload) (int, error) {
	hub, data, err := r.fanout(result, payloads)
	if err != nil {
		return 0, err
	}
	return hub.Broadcast(data, r.Client), nil
}

// BroadcastAsync is Broadcast with concurrent sends, the channel yields the count
func (r *Request[C, K, R]) BroadcastAsync(result R, payloads ...codec.Payload) (<-chan int, error) {
	hub, data, err := r.fanout(result, payloads)
	if err != nil {
		return nil, err
	}
	return hub.BroadcastAsync(data, r.Client), nil
}

// Multicast writes an untagged reply to every live client matched by match
func (r *Request[C, K, R]) Multicast(match func(c C) bool, result R, payloads ...codec.Payload) (int, error) {
	hub, data, err := r.fanout(result, payloads)
	if err != nil {
		return 0, err
	}
	return hub.Multicast(data, matching(match)), nil
}

// MulticastAsync is Multicast with concurrent sends, the channel yields the count
func (r *Request[C, K, R]) MulticastAsync(match func(c C) bool, result R, payloads ...codec.Payload) (<-chan int, error) {
	hub, data, err := r.fanout(result, payloads)
	if err != nil {
		return nil, err
	}
	return hub.MulticastAsync(data, matching(match)), nil
}

func (r *Request[C, K, R]) untagged(result R, payloads []codec.Payload) ([]byte, error) {
	return r.protocol.MkResp(r.ID, false, result, payloads...)
}

func (r *Request[C, K, R]) fanout(result R, payloads []codec.Payload) (transport.Hub, []byte, error) {
	hub := r.protocol.Hub()
	if hub == nil {
		return nil, nil, ErrNotBound
	}
	data, err := r.untagged(result, payloads)
	if err != nil {
		return nil, nil, err
	}
	return hub, data, nil
}

// matching lifts a predicate over C to the hub, other connection types never match
func matching[C transport.Connection](match func(c C) bool) transport.MatchFunc {
	return func(conn transport.Connection) bool {
		c, ok := conn.(C)
		if !ok {
			return false
		}
		return match == nil || match(c)
	}
}

func failed(err error) <-chan error {
	done := make(chan error, 1)
	done <- err
	return done
}
