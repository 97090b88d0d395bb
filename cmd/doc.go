// Package cmd implements the command-line interface of dCP. It provides commands
// for running the chat server and for talking to it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts the chat server (optionally with a prometheus endpoint)
//   - chat: Client commands (send, listen, bench)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable with the prefix DCP_
// (e.g. DCP_ENDPOINT=localhost:7070). .env and .env.local are loaded on start.
//
// See dcp -help for a list of all commands.
package cmd
