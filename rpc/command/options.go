package command

import (
	"github.com/ValentinKolb/dCP/rpc/codec"
	"github.com/ValentinKolb/dCP/rpc/transport"
	"net"
)

// Handler handles one request. A returned error is reported as server error.
type Handler[C transport.Connection, K, R codec.Code] func(req *Request[C, K, R]) error

// AsyncHandler is a handler that completes in the background.
// The channel yields the result exactly once (a nil channel counts as success).
type AsyncHandler[C transport.Connection, K, R codec.Code] func(req *Request[C, K, R]) <-chan error

// Route declares one handler for one or more commands
type Route[C transport.Connection, K, R codec.Code] struct {
	Commands []K
	Handler  Handler[C, K, R]
}

// Mapping is a single (command, handler) pair
type Mapping[C transport.Connection, K, R codec.Code] struct {
	Command K
	Handler Handler[C, K, R]
}

// Reserved holds the result codes the framework answers with on its own.
// Unset codes fall back: NotMapped to Unknown, Unknown to Error.
type Reserved[R codec.Code] struct {
	Error     *R
	Unknown   *R
	NotMapped *R
}

// Code returns a pointer to r, for filling Reserved
func Code[R codec.Code](r R) *R {
	return &r
}

// Events holds optional callbacks of the dispatch engine
type Events[C transport.Connection, K codec.Code] struct {
	// NotMapped is called for a command without handler
	NotMapped func(c C, cmd K)
	// ServerError is called when decoding or a handler failed
	ServerError func(c C, err error)
}

// Options configures a Protocol
type Options[C transport.Connection, K, R codec.Code] struct {
	// NewClient wraps an accepted connection (required)
	NewClient func(conn net.Conn) (C, error)
	// Welcome decides whether a client is accepted (nil = accept all)
	Welcome func(c C) bool
	// Bye is called after a client requested a graceful close
	Bye func(c C)
	// Disconnect is called when a client was lost
	Disconnect func(c C)

	// AppendCorrelation prefixes replies with the correlation flag (and id for Respond)
	AppendCorrelation bool

	// Routes is the declarative handler table. Duplicates always fail New.
	Routes []Route[C, K, R]

	// Conventions maps handler names to handlers. Every name is turned into a
	// command by ParseCommand and registered with WireUp.
	Conventions  map[string]Handler[C, K, R]
	ParseCommand func(name string) (K, bool)

	// Mappings yields additional pairs, registered with WireUp
	Mappings func() []Mapping[C, K, R]

	// DisableAutoMapping skips Routes, Conventions and Mappings
	DisableAutoMapping bool

	Reserved Reserved[R]
	Events   Events[C, K]

	// CommandName names a command in logs and stats (nil = fmt.Sprint)
	CommandName func(cmd K) string

	// DefaultPort is used by BuildDefaultServer
	DefaultPort int
}
