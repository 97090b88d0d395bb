package transport

import (
	"context"
	"net"
)

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// Connection is a connected peer as seen by the server
type Connection interface {
	// ID returns an identifier that is unique for the lifetime of the server
	ID() string
	// RemoteAddr returns the address of the peer
	RemoteAddr() net.Addr
	// IsAlive reports whether the connection can still be used
	IsAlive() bool
	// Disconnecting reports whether a graceful close was requested
	Disconnecting() bool
	// Disconnect closes the connection. Calling it more than once is allowed.
	Disconnect() error
	// Send writes one message and returns once it is written
	Send(data []byte) error
	// SendAsync queues one message, the channel yields the write result
	SendAsync(data []byte) <-chan error
	// Receive blocks until one message arrived, the peer is gone or ctx is done.
	// An empty message means the connection is closed or the call was cancelled.
	Receive(ctx context.Context) ([]byte, error)
}

// --------------------------------------------------------------------------
// Protocol
// --------------------------------------------------------------------------

// Protocol is the strategy a server runs over every accepted connection.
// One instance is shared by all clients of a server.
type Protocol interface {
	// CreateClient wraps a freshly accepted connection
	CreateClient(conn net.Conn) (Connection, error)
	// ClientWelcome decides whether the client is accepted
	ClientWelcome(c Connection) bool
	// ClientAttendant handles one non-empty inbound message
	ClientAttendant(c Connection, data []byte)
	// ClientBye is called when the client asked for a graceful close
	ClientBye(c Connection)
	// ClientDisconnect is called when the client was lost unexpectedly
	ClientDisconnect(c Connection)
}

// --------------------------------------------------------------------------
// Hub
// --------------------------------------------------------------------------

// MatchFunc selects clients for a multicast
type MatchFunc func(c Connection) bool

// Hub is the fan-out surface of a server
type Hub interface {
	// Clients returns a snapshot of the live clients
	Clients() []Connection
	// Broadcast sends data to every live client except the given one (may be nil)
	Broadcast(data []byte, except Connection) int
	// BroadcastAsync is Broadcast with concurrent sends, the channel yields the count
	BroadcastAsync(data []byte, except Connection) <-chan int
	// Multicast sends data to every live client matched by match
	Multicast(data []byte, match MatchFunc) int
	// MulticastAsync is Multicast with concurrent sends, the channel yields the count
	MulticastAsync(data []byte, match MatchFunc) <-chan int
}

// Binder is implemented by protocols that need a back-reference to their server
type Binder interface {
	Bind(hub Hub)
}
