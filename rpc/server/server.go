package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dCP/rpc/common"
	"github.com/ValentinKolb/dCP/rpc/transport"
	"github.com/ValentinKolb/dCP/rpc/transport/base"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"net"
	"sync"
	"time"
)

var Logger = logger.GetLogger("server")

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server accepts connections on one endpoint and runs a transport.Protocol for each of them.
//
// Usage:
//
//	s, err := server.New(proto, tcp.NewTCPServerConnector(), config)
//	if err != nil {
//		panic(err)
//	}
//
//	done, err := s.Start()
//	...
//	s.Stop()
type Server struct {
	protocol  transport.Protocol
	connector base.IServerConnector
	config    common.ServerConfig
	events    Events

	mu       sync.Mutex
	cancel   context.CancelFunc
	listener net.Listener
	loopDone chan struct{}
	tasks    *sync.WaitGroup
	stopping chan struct{}

	clients *xsync.MapOf[string, transport.Connection]
	metrics *serverMetrics
}

// New creates a server for the given protocol. The server is not started.
// If the protocol implements transport.Binder it is bound to the new server.
func New(
	protocol transport.Protocol,
	connector base.IServerConnector,
	config common.ServerConfig,
	opts ...Option,
) (*Server, error) {
	if protocol == nil {
		return nil, fmt.Errorf("%w: no protocol given", common.ErrConfiguration)
	}
	if connector == nil {
		return nil, fmt.Errorf("%w: no connector given", common.ErrConfiguration)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		protocol:  protocol,
		connector: connector,
		config:    config,
		clients:   xsync.NewMapOf[string, transport.Connection](),
	}
	s.metrics = newServerMetrics(func() float64 { return float64(s.clients.Size()) })

	for _, opt := range opts {
		opt(s)
	}

	if binder, ok := protocol.(transport.Binder); ok {
		binder.Bind(s)
	}

	Logger.Infof("Created %s server", connector.GetName())
	Logger.Debugf("%s", config.String())

	return s, nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start binds the endpoint and runs the accept loop in the background.
// The returned channel is closed once the accept loop has exited.
// Calling Start on a running server returns the channel of the current run.
func (s *Server) Start() (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loopDone != nil {
		return s.loopDone, nil
	}

	listener, err := s.connector.Listen(s.config.Transport)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.Transport.Endpoint, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.listener = listener
	s.loopDone = make(chan struct{})
	s.tasks = &sync.WaitGroup{}

	go s.acceptLoop(ctx, listener, s.tasks, s.loopDone)

	Logger.Infof("Server listening on %s (%s)", listener.Addr(), s.connector.GetName())
	s.emitTime("ServerStarted", s.events.ServerStarted, time.Now())

	return s.loopDone, nil
}

// Stop shuts the server down and blocks until it is stopped
func (s *Server) Stop() {
	<-s.StopAsync()
}

// StopAsync shuts the server down in the background.
// Client goroutines get DisconnectTimeoutSecond to finish, leftovers are force disconnected.
// Stopping a server that is not running completes immediately.
func (s *Server) StopAsync() <-chan struct{} {
	s.mu.Lock()
	if s.stopping != nil {
		stopping := s.stopping
		s.mu.Unlock()
		return stopping
	}

	done := make(chan struct{})
	if s.loopDone == nil {
		s.mu.Unlock()
		close(done)
		return done
	}

	s.stopping = done
	cancel, listener, loopDone, tasks := s.cancel, s.listener, s.loopDone, s.tasks
	s.mu.Unlock()

	go func() {
		defer close(done)

		cancel()
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			Logger.Warningf("failed to close listener: %v", err)
		}
		<-loopDone

		waited := make(chan struct{})
		go func() {
			tasks.Wait()
			close(waited)
		}()

		select {
		case <-waited:
		case <-time.After(s.config.DisconnectTimeout()):
			Logger.Warningf("clients did not finish within %s, forcing disconnect", s.config.DisconnectTimeout())
		}

		// purge whatever is left
		s.clients.Range(func(id string, c transport.Connection) bool {
			_ = c.Disconnect()
			s.clients.Delete(id)
			return true
		})

		s.mu.Lock()
		s.cancel = nil
		s.listener = nil
		s.loopDone = nil
		s.tasks = nil
		s.stopping = nil
		s.mu.Unlock()

		Logger.Infof("Server stopped")
		s.emitTime("ServerStopped", s.events.ServerStopped, time.Now())
	}()

	return done
}

// IsAlive reports whether the accept loop is running
func (s *Server) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopDone != nil && s.stopping == nil
}

// Addr returns the bound address or nil when the server is not running
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Metrics returns the metrics set of this server
func (s *Server) Metrics() *metrics.Set {
	return s.metrics.set
}

// ClientCount returns the number of live clients
func (s *Server) ClientCount() int {
	return s.clients.Size()
}

// --------------------------------------------------------------------------
// Accept and service loops
// --------------------------------------------------------------------------

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener, tasks *sync.WaitGroup, done chan struct{}) {
	defer close(done)

	backoff := minAcceptBackoff
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			Logger.Warningf("accept failed, retrying in %s: %v", backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxAcceptBackoff)
			continue
		}
		backoff = minAcceptBackoff

		if err := s.connector.UpgradeConnection(conn, s.config.Transport); err != nil {
			Logger.Warningf("failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		client, err := s.createClient(conn)
		if err != nil {
			Logger.Errorf("failed to create client for %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		s.metrics.connections.Inc()
		tasks.Add(1)
		go func() {
			defer tasks.Done()
			s.serve(ctx, client)
		}()
	}
}

func (s *Server) createClient(conn net.Conn) (client transport.Connection, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.handlerPanics.Inc()
			err = fmt.Errorf("client factory panicked: %v", r)
		}
	}()
	client, err = s.protocol.CreateClient(conn)
	if err == nil && client == nil {
		err = errors.New("client factory returned nil")
	}
	return client, err
}

// serve runs the service loop of a single client
func (s *Server) serve(ctx context.Context, c transport.Connection) {
	Logger.Debugf("%s: connected from %s", c.ID(), c.RemoteAddr())
	s.emitClient("ClientConnected", s.events.ClientConnected, c)

	welcome := false
	s.safely("ClientWelcome", c, func() { welcome = s.protocol.ClientWelcome(c) })
	if !welcome {
		s.metrics.rejected.Inc()
		Logger.Infof("%s: rejected (%s)", c.ID(), c.RemoteAddr())
		s.emitClient("ClientRejected", s.events.ClientRejected, c)
		_ = c.Disconnect()
		return
	}

	s.clients.Store(c.ID(), c)
	defer s.clients.Delete(c.ID())

	// a welcome that outlived the shutdown purge must not leave the client behind
	if ctx.Err() != nil {
		Logger.Debugf("%s: server stopped during welcome", c.ID())
		_ = c.Disconnect()
		return
	}

	Logger.Debugf("%s: accepted", c.ID())
	s.emitClient("ClientAccepted", s.events.ClientAccepted, c)

	for c.IsAlive() {
		data, err := c.Receive(ctx)

		// server shutdown, the message (if any) is not dispatched
		if ctx.Err() != nil {
			_ = c.Disconnect()
			return
		}

		if err != nil || len(data) == 0 {
			if err != nil {
				Logger.Debugf("%s: receive ended: %v", c.ID(), err)
			}
			s.metrics.lost.Inc()
			Logger.Infof("%s: connection lost", c.ID())
			s.emitClient("ClientLost", s.events.ClientLost, c)
			s.safely("ClientDisconnect", c, func() { s.protocol.ClientDisconnect(c) })
			_ = c.Disconnect()
			return
		}

		s.metrics.messages.Inc()
		s.metrics.bytesReceived.Add(len(data))
		s.metrics.messageSize.Update(float64(len(data)))

		s.safely("ClientAttendant", c, func() { s.protocol.ClientAttendant(c, data) })

		if c.Disconnecting() {
			Logger.Debugf("%s: farewell", c.ID())
			s.emitClient("ClientFarewell", s.events.ClientFarewell, c)
			s.safely("ClientBye", c, func() { s.protocol.ClientBye(c) })
			_ = c.Disconnect()
			s.emitClient("ClientDisconnected", s.events.ClientDisconnected, c)
			return
		}
	}
}

// safely runs fn and logs a panic instead of tearing down the service loop
func (s *Server) safely(name string, c transport.Connection, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.handlerPanics.Inc()
			Logger.Errorf("%s: %s panicked: %v", c.ID(), name, r)
		}
	}()
	fn()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.Hub)
// --------------------------------------------------------------------------

func (s *Server) Clients() []transport.Connection {
	clients := make([]transport.Connection, 0, s.clients.Size())
	s.clients.Range(func(_ string, c transport.Connection) bool {
		clients = append(clients, c)
		return true
	})
	return clients
}

func (s *Server) Broadcast(data []byte, except transport.Connection) int {
	return s.Multicast(data, excluding(except))
}

func (s *Server) BroadcastAsync(data []byte, except transport.Connection) <-chan int {
	return s.MulticastAsync(data, excluding(except))
}

func (s *Server) Multicast(data []byte, match transport.MatchFunc) int {
	sent := 0
	for _, c := range s.targets(match) {
		if err := c.Send(data); err != nil {
			s.metrics.sendErrors.Inc()
			Logger.Warningf("%s: fan-out send failed: %v", c.ID(), err)
			continue
		}
		sent++
	}
	s.metrics.fanoutSends.Add(sent)
	return sent
}

func (s *Server) MulticastAsync(data []byte, match transport.MatchFunc) <-chan int {
	result := make(chan int, 1)
	targets := s.targets(match)

	pending := make([]<-chan error, len(targets))
	for i, c := range targets {
		pending[i] = c.SendAsync(data)
	}

	go func() {
		sent := 0
		for i, done := range pending {
			if err := <-done; err != nil {
				s.metrics.sendErrors.Inc()
				Logger.Warningf("%s: fan-out send failed: %v", targets[i].ID(), err)
				continue
			}
			sent++
		}
		s.metrics.fanoutSends.Add(sent)
		result <- sent
	}()

	return result
}

// targets returns a snapshot of the live clients accepted by match (nil = all)
func (s *Server) targets(match transport.MatchFunc) []transport.Connection {
	var targets []transport.Connection
	s.clients.Range(func(_ string, c transport.Connection) bool {
		if !c.IsAlive() {
			return true
		}
		if match == nil || match(c) {
			targets = append(targets, c)
		}
		return true
	})
	return targets
}

func excluding(except transport.Connection) transport.MatchFunc {
	if except == nil {
		return nil
	}
	id := except.ID()
	return func(c transport.Connection) bool {
		return c.ID() != id
	}
}
