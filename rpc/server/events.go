package server

import (
	"github.com/ValentinKolb/dCP/rpc/transport"
	"time"
)

// Events holds optional callbacks for the server lifecycle.
// Callbacks run on the goroutine that triggered them and must not block for long.
type Events struct {
	ServerStarted func(at time.Time)
	ServerStopped func(at time.Time)

	ClientConnected    func(c transport.Connection)
	ClientAccepted     func(c transport.Connection)
	ClientRejected     func(c transport.Connection)
	ClientLost         func(c transport.Connection)
	ClientFarewell     func(c transport.Connection)
	ClientDisconnected func(c transport.Connection)
}

// Option configures a Server
type Option func(s *Server)

// WithEvents registers lifecycle callbacks
func WithEvents(events Events) Option {
	return func(s *Server) {
		s.events = events
	}
}

// emitClient invokes a client callback, a panicking callback is logged and ignored
func (s *Server) emitClient(name string, fn func(transport.Connection), c transport.Connection) {
	if fn == nil {
		return
	}
	s.safely(name, c, func() { fn(c) })
}

// emitTime invokes a server callback
func (s *Server) emitTime(name string, fn func(time.Time), at time.Time) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("event %s panicked: %v", name, r)
		}
	}()
	fn(at)
}
