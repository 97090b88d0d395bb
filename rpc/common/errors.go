package common

import "errors"

// ErrConfiguration is wrapped by every error caused by an invalid setup
// (unusable client type, duplicate command mappings, missing endpoint ...).
// These errors are raised at construction time and are meant to be fatal.
var ErrConfiguration = errors.New("configuration error")

// ErrConnectionClosed is returned when sending on a connection that is gone
var ErrConnectionClosed = errors.New("connection closed")

// ErrMessageTooLarge is returned when a frame exceeds the configured limit
var ErrMessageTooLarge = errors.New("message too large")

// ErrTimeout is returned when a request did not get a reply in time
var ErrTimeout = errors.New("request timed out")
