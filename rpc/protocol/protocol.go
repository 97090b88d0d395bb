package protocol

import (
	"fmt"
	"github.com/ValentinKolb/dCP/rpc/common"
	"github.com/ValentinKolb/dCP/rpc/server"
	"github.com/ValentinKolb/dCP/rpc/transport"
	"github.com/ValentinKolb/dCP/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
	"net"
	"sync"
)

var Logger = logger.GetLogger("rpc")

// ErrInvalidClientType is returned when a protocol cannot create its client type
var ErrInvalidClientType = fmt.Errorf("%w: invalid client type", common.ErrConfiguration)

// Hooks are the callbacks of a ServerProtocol written against the client type C.
// Only NewClient is required.
type Hooks[C transport.Connection] struct {
	// NewClient wraps an accepted connection into a C
	NewClient func(conn net.Conn) (C, error)
	// Welcome decides whether a client is accepted (nil = accept all)
	Welcome func(c C) bool
	// Attend handles one message of the client (nil = ignore)
	Attend func(c C, data []byte)
	// Bye is called after the client requested a graceful close (nil = no-op)
	Bye func(c C)
	// Disconnect is called when the client was lost (nil = no-op)
	Disconnect func(c C)
}

// ServerProtocol adapts Hooks written for the concrete client type C to transport.Protocol.
// A connection that turns out not to be a C is rejected at welcome.
type ServerProtocol[C transport.Connection] struct {
	hooks Hooks[C]

	// DefaultPort is used by BuildDefaultServer (0 = common.DefaultPort)
	DefaultPort int

	mu  sync.RWMutex
	hub transport.Hub
}

// New creates a ServerProtocol. It fails with ErrInvalidClientType if no client factory is given.
func New[C transport.Connection](hooks Hooks[C]) (*ServerProtocol[C], error) {
	if hooks.NewClient == nil {
		var zero C
		return nil, fmt.Errorf("%w: no factory for %T", ErrInvalidClientType, zero)
	}
	return &ServerProtocol[C]{hooks: hooks}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.Protocol)
// --------------------------------------------------------------------------

func (p *ServerProtocol[C]) CreateClient(conn net.Conn) (transport.Connection, error) {
	c, err := p.hooks.NewClient(conn)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *ServerProtocol[C]) ClientWelcome(c transport.Connection) bool {
	client, ok := c.(C)
	if !ok {
		var zero C
		Logger.Errorf("%s: rejected, %T is not a %T", c.ID(), c, zero)
		return false
	}
	if p.hooks.Welcome == nil {
		return true
	}
	return p.hooks.Welcome(client)
}

func (p *ServerProtocol[C]) ClientAttendant(c transport.Connection, data []byte) {
	if p.hooks.Attend == nil {
		return
	}
	if client, ok := c.(C); ok {
		p.hooks.Attend(client, data)
	}
}

func (p *ServerProtocol[C]) ClientBye(c transport.Connection) {
	if p.hooks.Bye == nil {
		return
	}
	if client, ok := c.(C); ok {
		p.hooks.Bye(client)
	}
}

func (p *ServerProtocol[C]) ClientDisconnect(c transport.Connection) {
	if p.hooks.Disconnect == nil {
		return
	}
	if client, ok := c.(C); ok {
		p.hooks.Disconnect(client)
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.Binder)
// --------------------------------------------------------------------------

func (p *ServerProtocol[C]) Bind(hub transport.Hub) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hub = hub
}

// --------------------------------------------------------------------------
// Additional Methods
// --------------------------------------------------------------------------

// Hub returns the server this protocol is bound to or nil
func (p *ServerProtocol[C]) Hub() transport.Hub {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hub
}

// BuildServer creates a server bound to this protocol on the configured endpoint
func (p *ServerProtocol[C]) BuildServer(
	connector base.IServerConnector,
	config common.ServerConfig,
	opts ...server.Option,
) (*server.Server, error) {
	return server.New(p, connector, config, opts...)
}

// BuildDefaultServer creates a server bound to this protocol on all interfaces and the default port
func (p *ServerProtocol[C]) BuildDefaultServer(connector base.IServerConnector, opts ...server.Option) (*server.Server, error) {
	port := p.DefaultPort
	if port <= 0 {
		port = common.DefaultPort
	}
	config := common.DefaultServerConfig()
	config.Transport.Endpoint = fmt.Sprintf("0.0.0.0:%d", port)
	return p.BuildServer(connector, config, opts...)
}
