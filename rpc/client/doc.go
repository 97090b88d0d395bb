// Package client implements a typed client for servers built with rpc/command.
//
// The client keeps a single connection. Calls are tagged with a fresh correlation id
// and matched with their reply by a background reader, so any number of goroutines can
// call concurrently. Replies without correlation id (broadcasts, multicasts and
// framework fallbacks) are delivered to the Inbox channel.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Transport: common.ClientTransportConfig{
//	    Endpoint:   "localhost:7070",
//	    RetryCount: 3,
//	  },
//	  TimeoutSecond: 5,
//	}
//
//	c := client.New[chat.Command, chat.Result](tcp.NewTCPClientConnector(), config)
//	if err := c.Connect(); err != nil {
//	  log.Fatal(err)
//	}
//	defer c.Close()
//
//	reply, err := c.Call(chat.CmdEcho, codec.Bytes([]byte("hello")))
//
//	go func() {
//	  for msg := range c.Inbox() {
//	    fmt.Println(msg.Result, string(msg.Payload))
//	  }
//	}()
//
// Limitations:
//
//	A command the server does not know is answered with an untagged fallback reply.
//	That reply shows up in the Inbox and the Call itself ends with ErrTimeout.
//
// Thread Safety:
//
//	All methods are safe for concurrent use.
package client
