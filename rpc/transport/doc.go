// Package transport defines the contracts between the command server, the
// protocols it runs and the connections it serves.
//
// The package focuses on:
//   - A capability interface for connected peers (Connection)
//   - The protocol lifecycle contract (Protocol)
//   - The fan-out surface a server offers to its protocol (Hub)
//
// Key Components:
//
//   - Connection: One connected peer. The server only relies on liveness,
//     disconnect and framed send/receive, so applications are free to wrap the
//     default implementation from the base package with their own state.
//
//   - Protocol: Turns a raw net.Conn into a Connection and receives the four
//     lifecycle callbacks (welcome, attend, bye, disconnect).
//
//   - Hub: Broadcast and multicast primitives of the live client set. A protocol
//     implementing Binder receives the Hub of the server it is bound to.
package transport
