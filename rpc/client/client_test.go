package client

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dCP/rpc/codec"
	"github.com/ValentinKolb/dCP/rpc/command"
	"github.com/ValentinKolb/dCP/rpc/common"
	"github.com/ValentinKolb/dCP/rpc/server"
	"github.com/ValentinKolb/dCP/rpc/transport/base"
	"github.com/ValentinKolb/dCP/rpc/transport/tcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"sync"
	"testing"
	"time"
)

type cmd uint8

const (
	cmdEcho cmd = iota + 1
	cmdShout
	cmdUnknown cmd = 200
)

type res uint8

const (
	resOK res = iota
	resMessage
	resError
	resNotMapped
)

type request = command.Request[*base.Conn, cmd, res]

// startServer runs an echo/shout command server on a random port
func startServer(t *testing.T) *server.Server {
	t.Helper()

	p, err := command.New(command.Options[*base.Conn, cmd, res]{
		NewClient: func(conn net.Conn) (*base.Conn, error) {
			return base.NewConn(conn, base.ConnOptions{}), nil
		},
		AppendCorrelation: true,
		Routes: []command.Route[*base.Conn, cmd, res]{
			{Commands: []cmd{cmdEcho}, Handler: func(req *request) error {
				return req.Respond(resOK, codec.Bytes(req.Payload()))
			}},
			{Commands: []cmd{cmdShout}, Handler: func(req *request) error {
				_, err := req.Broadcast(resMessage, codec.Bytes(req.Payload()))
				return err
			}},
		},
		Reserved: command.Reserved[res]{
			Error:     command.Code(resError),
			NotMapped: command.Code(resNotMapped),
		},
	})
	require.NoError(t, err)

	config := common.DefaultServerConfig()
	config.Transport.Endpoint = "127.0.0.1:0"
	s, err := p.BuildServer(tcp.NewTCPServerConnector(), config)
	require.NoError(t, err)

	_, err = s.Start()
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func connect(t *testing.T, s *server.Server) *Client[cmd, res] {
	t.Helper()
	c := New[cmd, res](tcp.NewTCPClientConnector(), common.ClientConfig{
		Transport:     common.ClientTransportConfig{Endpoint: s.Addr().String(), RetryCount: 1},
		TimeoutSecond: 2,
		InboxSize:     8,
	})
	require.NoError(t, c.Connect())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// waitForClients blocks until the server counts n live clients
func waitForClients(t *testing.T, s *server.Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestCall(t *testing.T) {
	s := startServer(t)
	c := connect(t, s)

	reply, err := c.Call(cmdEcho, codec.Bytes([]byte("hello")))
	require.NoError(t, err)
	assert.True(t, reply.Correlated)
	assert.Equal(t, resOK, reply.Result)
	assert.Equal(t, []byte("hello"), reply.Payload)

	// connecting twice is a no-op
	assert.NoError(t, c.Connect())
}

func TestConcurrentCalls(t *testing.T) {
	s := startServer(t)
	c := connect(t, s)

	const calls = 50
	var wg sync.WaitGroup
	wg.Add(calls)
	for i := 0; i < calls; i++ {
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("call-%d", i)
			reply, err := c.Call(cmdEcho, codec.Bytes([]byte(want)))
			if err != nil {
				t.Errorf("Call %d failed: %v", i, err)
				return
			}
			if string(reply.Payload) != want {
				t.Errorf("Call %d got reply %q", i, reply.Payload)
			}
		}(i)
	}
	wg.Wait()
}

func TestInbox(t *testing.T) {
	s := startServer(t)
	alice := connect(t, s)
	bob := connect(t, s)
	waitForClients(t, s, 2)

	require.NoError(t, alice.Post(cmdShout, codec.Bytes([]byte("hi all"))))

	select {
	case msg := <-bob.Inbox():
		assert.False(t, msg.Correlated)
		assert.Equal(t, resMessage, msg.Result)
		assert.Equal(t, []byte("hi all"), msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatalf("Timeout waiting for broadcast")
	}

	// the sender is excluded
	select {
	case msg := <-alice.Inbox():
		t.Fatalf("Unexpected message %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotMappedCall(t *testing.T) {
	s := startServer(t)
	c := connect(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// the fallback reply is not correlated, the call runs into its deadline
	_, err := c.CallContext(ctx, cmdUnknown)
	assert.ErrorIs(t, err, common.ErrTimeout)

	select {
	case msg := <-c.Inbox():
		assert.Equal(t, resNotMapped, msg.Result)
	case <-time.After(2 * time.Second):
		t.Fatalf("Timeout waiting for fallback reply")
	}
}

func TestClose(t *testing.T) {
	s := startServer(t)
	c := connect(t, s)
	inbox, done := c.Inbox(), c.Done()

	require.NoError(t, c.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Read loop did not exit")
	}
	_, ok := <-inbox
	assert.False(t, ok, "inbox should be closed")

	_, err := c.Call(cmdEcho)
	assert.ErrorIs(t, err, common.ErrConnectionClosed)
	assert.ErrorIs(t, c.Post(cmdEcho), common.ErrConnectionClosed)

	// closing twice is fine
	assert.NoError(t, c.Close())
}

func TestServerGone(t *testing.T) {
	s := startServer(t)
	c := connect(t, s)
	waitForClients(t, s, 1)

	s.Stop()

	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("Client did not notice the server shutdown")
	}
}

func TestConnectErrors(t *testing.T) {
	t.Run("no endpoint", func(t *testing.T) {
		c := New[cmd, res](tcp.NewTCPClientConnector(), common.ClientConfig{})
		assert.ErrorIs(t, c.Connect(), common.ErrConfiguration)
	})

	t.Run("refused", func(t *testing.T) {
		// grab a free port and release it again
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := l.Addr().String()
		require.NoError(t, l.Close())

		c := New[cmd, res](tcp.NewTCPClientConnector(), common.ClientConfig{
			Transport: common.ClientTransportConfig{Endpoint: addr, RetryCount: 2},
		})
		assert.Error(t, c.Connect())
	})
}
