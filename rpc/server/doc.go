// Package server implements a connection-oriented message server.
// The server owns the listening socket, accepts clients and runs one service loop per
// client. What happens with each message is decided by a transport.Protocol.
//
// The package focuses on:
//   - Accepting connections over any base.IServerConnector (tcp, unix)
//   - Running the welcome / attend / bye / disconnect lifecycle per client
//   - Keeping the set of live clients and fanning messages out to them
//   - Graceful shutdown with a bounded wait for connected clients
//
// Key Components:
//
//   - Server: the server itself. It implements transport.Hub so protocols that implement
//     transport.Binder get a back-reference for broadcast and multicast.
//
//   - Events: optional lifecycle callbacks (started, stopped, connected, accepted,
//     rejected, lost, farewell, disconnected).
//
// Usage Example:
//
//	config := common.DefaultServerConfig()
//	config.Transport.Endpoint = "127.0.0.1:7070"
//
//	s, err := server.New(proto, tcp.NewTCPServerConnector(), config,
//	  server.WithEvents(server.Events{
//	    ClientLost: func(c transport.Connection) { log.Printf("lost %s", c.ID()) },
//	  }),
//	)
//	if err != nil {
//	  log.Fatal(err)
//	}
//
//	done, err := s.Start()
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer s.Stop()
//	<-done
//
// Service Loop:
//
//	For every accepted connection the server calls ClientWelcome. Rejected clients are
//	disconnected. Accepted clients are added to the live set and every non-empty message
//	is passed to ClientAttendant. An empty receive means the client was lost
//	(ClientDisconnect). If the client requested a farewell while its message was handled,
//	ClientBye is called and the connection is closed.
//
// Thread Safety:
//
//	All methods of Server are safe for concurrent use. Panics raised by the protocol are
//	recovered and logged, the affected connection stays open.
package server
