// Package protocol provides ServerProtocol, a typed adapter between transport.Protocol and
// protocols written against a concrete connection type.
//
// transport.Protocol only knows transport.Connection. Most protocols keep per client state
// and want to work with their own type, usually a struct embedding *base.Conn.
// ServerProtocol takes Hooks written for that type and does the conversion.
//
// Usage Example:
//
//	type Client struct {
//	  *base.Conn
//	  Name string
//	}
//
//	p, err := protocol.New(protocol.Hooks[*Client]{
//	  NewClient: func(conn net.Conn) (*Client, error) {
//	    return &Client{Conn: base.NewConn(conn, base.ConnOptions{})}, nil
//	  },
//	  Attend: func(c *Client, data []byte) {
//	    _ = c.Send(data)
//	  },
//	})
//	if err != nil {
//	  log.Fatal(err)
//	}
//
//	s, err := p.BuildDefaultServer(tcp.NewTCPServerConnector())
package protocol
