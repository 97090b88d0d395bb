package chat

import (
	"github.com/ValentinKolb/dCP/rpc/transport/base"
	"net"
	"strings"
	"sync"
)

// Client is a connected chat participant
type Client struct {
	*base.Conn

	mu   sync.RWMutex
	nick string
}

// NewClient wraps an accepted connection. The nickname defaults to guest-<n>.
func NewClient(conn net.Conn, opts base.ConnOptions) *Client {
	c := &Client{Conn: base.NewConn(conn, opts)}
	c.nick = "guest-" + strings.TrimPrefix(c.ID(), "conn_")
	return c
}

// Nick returns the current nickname
func (c *Client) Nick() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nick
}

// SetNick changes the nickname
func (c *Client) SetNick(nick string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nick = nick
}
