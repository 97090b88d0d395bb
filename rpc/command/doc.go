// Package command implements a command dispatching protocol on top of rpc/server.
//
// Every inbound message carries a command code, a fixed width integer enum. The
// protocol looks up the handler registered for the code and calls it with a Request.
// The Request gives the handler access to the payload and to a set of reply helpers.
//
// Wire Format:
//
//	request:  [16 byte correlation id][command code][payload]
//	          the id is only present if the message is longer than 16 bytes
//
//	reply:    [flag][16 byte id][result code][payload]   Respond, correlation on
//	          [flag=0][result code][payload]             Send, Broadcast, Multicast, correlation on
//	          [result code][payload]                     correlation off
//
//	fallback: [0][result code]                           not mapped command or error
//
// Codes are written little endian with the width of their Go type.
//
// Handler Registration:
//
//   - Options.Routes: a declarative table. A command declared twice fails New.
//   - Options.Conventions: handlers by name, turned into commands by Options.ParseCommand.
//   - Options.Mappings: a hook returning (command, handler) pairs.
//   - WireUp / WireUpAsync: manual registration.
//
// Conventions, Mappings and WireUp follow the process wide duplicate policy
// (SetDuplicatePolicy). By default a second registration for a command is ignored.
//
// Usage Example:
//
//	type Cmd uint16
//	type Res uint8
//
//	p, err := command.New(command.Options[*base.Conn, Cmd, Res]{
//	  NewClient: func(conn net.Conn) (*base.Conn, error) {
//	    return base.NewConn(conn, base.ConnOptions{}), nil
//	  },
//	  AppendCorrelation: true,
//	  Reserved:          command.Reserved[Res]{Error: command.Code(Res(255))},
//	  Routes: []command.Route[*base.Conn, Cmd, Res]{
//	    {Commands: []Cmd{1}, Handler: func(req *command.Request[*base.Conn, Cmd, Res]) error {
//	      return req.Respond(0, codec.Bytes(req.Payload()))
//	    }},
//	  },
//	})
//
//	s, err := p.BuildDefaultServer(tcp.NewTCPServerConnector())
//
// Errors:
//
//	Decode errors, handler errors and handler panics never reach the server loop. They
//	are logged, reported to Events.ServerError and answered with the reserved error
//	result if one is configured. The connection stays open.
package command
