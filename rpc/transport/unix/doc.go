// Package unix implements the Unix domain socket medium for the dCP command
// server. It provides optimized communication for processes running on the
// same machine.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners, removing a stale socket
//     file left behind by a previous run
//
// Performance Characteristics:
//
//   - Reduced overhead: Eliminates TCP/IP stack processing
//   - Lower latency: Direct kernel-mediated IPC avoids the network subsystem
package unix
