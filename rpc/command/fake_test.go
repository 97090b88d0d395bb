package command

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dCP/rpc/codec"
	"github.com/ValentinKolb/dCP/rpc/common"
	"github.com/ValentinKolb/dCP/rpc/transport"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Fake connection
// --------------------------------------------------------------------------

var fakeIDs atomic.Int32

// fakeConn records every message sent to it
type fakeConn struct {
	id   string
	nick string

	mu     sync.Mutex
	sent   [][]byte
	closed bool
	bye    bool
}

func newFakeConn(nick string) *fakeConn {
	return &fakeConn{id: fmt.Sprintf("fake_%d", fakeIDs.Add(1)), nick: nick}
}

func (c *fakeConn) ID() string           { return c.id }
func (c *fakeConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func (c *fakeConn) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) Disconnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bye
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return common.ErrConnectionClosed
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) SendAsync(data []byte) <-chan error {
	done := make(chan error, 1)
	done <- c.Send(data)
	return done
}

func (c *fakeConn) Receive(context.Context) ([]byte, error) {
	return nil, common.ErrConnectionClosed
}

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// last decodes the most recent message sent to c
func (c *fakeConn) last(t *testing.T) *codec.Reply[res] {
	t.Helper()
	msgs := c.messages()
	require.NotEmpty(t, msgs, "no message sent to %s", c.id)
	reply, err := codec.DecodeReply[res](msgs[len(msgs)-1])
	require.NoError(t, err)
	return reply
}

// --------------------------------------------------------------------------
// Fake hub
// --------------------------------------------------------------------------

// fakeHub fans out synchronously to a fixed set of clients
type fakeHub struct {
	clients []transport.Connection
}

func (h *fakeHub) Clients() []transport.Connection {
	return append([]transport.Connection(nil), h.clients...)
}

func (h *fakeHub) Broadcast(data []byte, except transport.Connection) int {
	return h.Multicast(data, func(c transport.Connection) bool {
		return except == nil || c.ID() != except.ID()
	})
}

func (h *fakeHub) BroadcastAsync(data []byte, except transport.Connection) <-chan int {
	result := make(chan int, 1)
	result <- h.Broadcast(data, except)
	return result
}

func (h *fakeHub) Multicast(data []byte, match transport.MatchFunc) int {
	sent := 0
	for _, c := range h.clients {
		if match != nil && !match(c) {
			continue
		}
		if c.Send(data) == nil {
			sent++
		}
	}
	return sent
}

func (h *fakeHub) MulticastAsync(data []byte, match transport.MatchFunc) <-chan int {
	result := make(chan int, 1)
	result <- h.Multicast(data, match)
	return result
}

// --------------------------------------------------------------------------
// Test codes
// --------------------------------------------------------------------------

type cmd uint16

const (
	cmdPing cmd = iota + 1
	cmdEcho
	cmdFail
	cmdPanic
	cmdShout
	cmdWhisper
	cmdLater
	cmdUnknown cmd = 999
)

var cmdNames = map[string]cmd{
	"ping":    cmdPing,
	"echo":    cmdEcho,
	"fail":    cmdFail,
	"panic":   cmdPanic,
	"shout":   cmdShout,
	"whisper": cmdWhisper,
	"later":   cmdLater,
}

func parseCmd(name string) (cmd, bool) {
	c, ok := cmdNames[name]
	return c, ok
}

type res uint8

const (
	resOK res = iota
	resMessage
	resError
	resUnknown
	resNotMapped
)

type (
	testProtocol = Protocol[*fakeConn, cmd, res]
	testRequest  = Request[*fakeConn, cmd, res]
	testHandler  = Handler[*fakeConn, cmd, res]
	testOptions  = Options[*fakeConn, cmd, res]
)

func baseOptions() testOptions {
	return testOptions{
		NewClient: func(net.Conn) (*fakeConn, error) {
			return newFakeConn(""), nil
		},
		AppendCorrelation: true,
		Reserved: Reserved[res]{
			Error:     Code(resError),
			Unknown:   Code(resUnknown),
			NotMapped: Code(resNotMapped),
		},
	}
}

// request encodes a correlated request
func request(t *testing.T, id uuid.UUID, command cmd, payloads ...codec.Payload) []byte {
	t.Helper()
	msg, err := codec.AppendRequest(nil, &id, command, payloads...)
	require.NoError(t, err)
	return msg
}
