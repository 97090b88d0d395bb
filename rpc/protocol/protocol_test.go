package protocol

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dCP/rpc/common"
	"github.com/ValentinKolb/dCP/rpc/transport"
	"github.com/ValentinKolb/dCP/rpc/transport/base"
	"github.com/ValentinKolb/dCP/rpc/transport/tcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"testing"
	"time"
)

// typedClient is the client type of the test protocol
type typedClient struct {
	*base.Conn
	greeted bool
}

// otherClient is a connection that is not a *typedClient
type otherClient struct {
	*base.Conn
}

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a
}

func TestNewRequiresFactory(t *testing.T) {
	_, err := New(Hooks[*typedClient]{})
	assert.ErrorIs(t, err, ErrInvalidClientType)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestTypedDispatch(t *testing.T) {
	var attended, byes, losses []*typedClient

	p, err := New(Hooks[*typedClient]{
		NewClient: func(conn net.Conn) (*typedClient, error) {
			return &typedClient{Conn: base.NewConn(conn, base.ConnOptions{})}, nil
		},
		Welcome: func(c *typedClient) bool {
			c.greeted = true
			return true
		},
		Attend:     func(c *typedClient, _ []byte) { attended = append(attended, c) },
		Bye:        func(c *typedClient) { byes = append(byes, c) },
		Disconnect: func(c *typedClient) { losses = append(losses, c) },
	})
	require.NoError(t, err)

	conn, err := p.CreateClient(pipeConn(t))
	require.NoError(t, err)
	c, ok := conn.(*typedClient)
	require.True(t, ok, "expected *typedClient, got %T", conn)

	assert.True(t, p.ClientWelcome(c))
	assert.True(t, c.greeted)

	p.ClientAttendant(c, []byte("x"))
	p.ClientBye(c)
	p.ClientDisconnect(c)
	assert.Equal(t, []*typedClient{c}, attended)
	assert.Equal(t, []*typedClient{c}, byes)
	assert.Equal(t, []*typedClient{c}, losses)
}

func TestForeignClientIsRejected(t *testing.T) {
	attended := 0
	p, err := New(Hooks[*typedClient]{
		NewClient: func(conn net.Conn) (*typedClient, error) {
			return &typedClient{Conn: base.NewConn(conn, base.ConnOptions{})}, nil
		},
		Attend: func(*typedClient, []byte) { attended++ },
	})
	require.NoError(t, err)

	foreign := &otherClient{Conn: base.NewConn(pipeConn(t), base.ConnOptions{})}
	assert.False(t, p.ClientWelcome(foreign))

	// the other callbacks ignore foreign clients
	p.ClientAttendant(foreign, []byte("x"))
	p.ClientBye(foreign)
	p.ClientDisconnect(foreign)
	assert.Equal(t, 0, attended)
}

func TestDefaults(t *testing.T) {
	p, err := New(Hooks[*typedClient]{
		NewClient: func(conn net.Conn) (*typedClient, error) {
			return &typedClient{Conn: base.NewConn(conn, base.ConnOptions{})}, nil
		},
	})
	require.NoError(t, err)

	c, err := p.CreateClient(pipeConn(t))
	require.NoError(t, err)

	// nil hooks accept and ignore
	assert.True(t, p.ClientWelcome(c))
	p.ClientAttendant(c, []byte("x"))
	p.ClientBye(c)
	p.ClientDisconnect(c)

	assert.Nil(t, p.Hub())
}

func TestFactoryError(t *testing.T) {
	boom := errors.New("boom")
	p, err := New(Hooks[*typedClient]{
		NewClient: func(net.Conn) (*typedClient, error) { return nil, boom },
	})
	require.NoError(t, err)

	_, err = p.CreateClient(pipeConn(t))
	assert.ErrorIs(t, err, boom)
}

func TestBuildServer(t *testing.T) {
	received := make(chan string, 1)
	p, err := New(Hooks[*typedClient]{
		NewClient: func(conn net.Conn) (*typedClient, error) {
			return &typedClient{Conn: base.NewConn(conn, base.ConnOptions{})}, nil
		},
		Attend: func(c *typedClient, data []byte) {
			received <- fmt.Sprintf("%T:%s", c, data)
		},
	})
	require.NoError(t, err)

	config := common.DefaultServerConfig()
	config.Transport.Endpoint = "127.0.0.1:0"
	s, err := p.BuildServer(tcp.NewTCPServerConnector(), config)
	require.NoError(t, err)

	// the protocol is bound to the server
	var hub transport.Hub = s
	assert.Equal(t, hub, p.Hub())

	_, err = s.Start()
	require.NoError(t, err)
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, base.WriteFrame(conn, []byte("hello")))

	select {
	case got := <-received:
		assert.Equal(t, "*protocol.typedClient:hello", got)
	case <-time.After(2 * time.Second):
		t.Fatalf("Timeout waiting for the attendant")
	}
}

func TestBuildDefaultServer(t *testing.T) {
	p, err := New(Hooks[*typedClient]{
		NewClient: func(conn net.Conn) (*typedClient, error) {
			return &typedClient{Conn: base.NewConn(conn, base.ConnOptions{})}, nil
		},
	})
	require.NoError(t, err)
	p.DefaultPort = 7171

	s, err := p.BuildDefaultServer(tcp.NewTCPServerConnector())
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.False(t, s.IsAlive())
}
