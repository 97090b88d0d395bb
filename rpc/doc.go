// Package rpc provides a framework for connection oriented command servers.
// Clients keep one stream connection open, send framed binary commands and
// receive replies, broadcasts and server pushes over the same connection.
//
// The package is organized into several subpackages:
//
//   - common: Configuration structures, sentinel errors and the logger setup
//     shared by all other packages.
//
//   - transport: The Connection, Protocol and Hub contracts plus pluggable
//     stream mediums (TCP, Unix sockets) and the default framed connection.
//
//   - codec: The binary wire format (command and result codes, length prefixed
//     strings, correlation prefixes and reply payloads).
//
//   - server: The accept loop, the per client service loop, the live client
//     set with broadcast and multicast, lifecycle events and metrics.
//
//   - protocol: A typed adapter that lets protocols work with their own client type.
//
//   - command: The command dispatch engine with handler registration,
//     correlation ids and reply helpers.
//
//   - client: A command client that matches replies to requests by correlation id.
package rpc
