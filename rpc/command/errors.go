package command

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dCP/rpc/common"
)

var (
	// ErrDuplicateCommand is returned when a command gets a second handler
	ErrDuplicateCommand = fmt.Errorf("%w: duplicate command", common.ErrConfiguration)

	// ErrNotMapped is reported when a client sends a command without handler
	ErrNotMapped = errors.New("command not mapped")

	// ErrNotBound is returned by fan-out helpers when the protocol has no server
	ErrNotBound = errors.New("protocol is not bound to a server")

	// ErrHandlerPanic wraps a panic raised by a handler
	ErrHandlerPanic = errors.New("handler panicked")
)
