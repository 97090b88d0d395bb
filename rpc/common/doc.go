// Package common provides configuration structures, errors and logging shared
// by all dCP packages.
//
// Key Components:
//
//   - ServerConfig: Endpoint, socket options, timeouts and the correlation
//     setting of a command server. Validate rejects configs that can never work.
//
//   - ClientConfig: Endpoint, retries, request timeout and inbox size of a client.
//
//   - Errors: ErrConfiguration is wrapped by every setup error, so callers can
//     tell fatal misconfiguration apart from runtime failures with errors.Is.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's logger
//     package and gives every dCP package a consistently formatted named logger.
package common
