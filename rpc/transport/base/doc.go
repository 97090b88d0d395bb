// Package base provides the medium independent building blocks of the dCP
// transport: message framing, the default connection type and the connector
// interfaces implemented by the tcp and unix packages.
//
// The package focuses on:
//   - Length prefixed framing (4 byte big endian length + payload)
//   - A ready to use transport.Connection (Conn) with statistics
//   - Asynchronous sends through a lock-free per connection queue
//   - Dependency injection of the socket medium via IServerConnector/IClientConnector
//
// Key Components:
//
//   - Conn: Wraps a net.Conn. Receive honours context cancellation by moving the
//     read deadline, Send serializes frames with a mutex, SendAsync hands the
//     frame to a writer goroutine fed by sendQueue.
//
//   - sendQueue: Multi-producer single-consumer linked list with CAS based
//     appends and exponential backoff under contention. The single consumer is
//     the connection's writer goroutine.
//
//   - IServerConnector/IClientConnector: Interfaces for protocol-specific
//     operations that allow extending the transport with different network media.
//
// Thread Safety:
//
//	All exported methods of Conn are safe for concurrent use. Receive calls are
//	serialized, so a connection is only ever read by one goroutine at a time.
package base
