// Package tcp implements the TCP socket medium for the dCP command server.
// It provides concrete implementations of the base package's connector
// interfaces.
//
// Key Components:
//
//   - serverConnector: creates TCP listeners and tunes accepted connections
//     (TCP_NODELAY, keep-alive, linger, kernel buffer sizes)
//
//   - clientConnector: dials TCP endpoints and applies the same options
//
// TCP is the primary medium of dCP, see the unix package for local IPC.
package tcp
