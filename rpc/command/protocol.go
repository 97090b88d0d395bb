package command

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dCP/rpc/codec"
	"github.com/ValentinKolb/dCP/rpc/common"
	"github.com/ValentinKolb/dCP/rpc/protocol"
	"github.com/ValentinKolb/dCP/rpc/transport"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"slices"
	"time"
)

var Logger = logger.GetLogger("command")

// Protocol is a transport.Protocol that decodes a command from every message and
// calls the handler registered for it.
//
// C is the client type, K the command code and R the result code.
type Protocol[C transport.Connection, K, R codec.Code] struct {
	*protocol.ServerProtocol[C]

	handlers          *xsync.MapOf[K, Handler[C, K, R]]
	appendCorrelation bool
	commandName       func(K) string
	events            Events[C, K]

	errorResp     *R
	unknownResp   *R
	notMappedResp *R

	stats *dispatchStats
}

// New creates a command protocol and builds its handler registry from Routes,
// Conventions and Mappings (unless DisableAutoMapping is set).
func New[C transport.Connection, K, R codec.Code](opts Options[C, K, R]) (*Protocol[C, K, R], error) {
	p := &Protocol[C, K, R]{
		handlers:          xsync.NewMapOf[K, Handler[C, K, R]](),
		appendCorrelation: opts.AppendCorrelation,
		commandName:       opts.CommandName,
		events:            opts.Events,
		stats:             newDispatchStats(),
	}
	if p.commandName == nil {
		p.commandName = func(cmd K) string { return fmt.Sprint(cmd) }
	}

	// reserved results fall back: not mapped -> unknown -> error
	p.errorResp = opts.Reserved.Error
	p.unknownResp = opts.Reserved.Unknown
	if p.unknownResp == nil {
		p.unknownResp = p.errorResp
	}
	p.notMappedResp = opts.Reserved.NotMapped
	if p.notMappedResp == nil {
		p.notMappedResp = p.unknownResp
	}

	sp, err := protocol.New(protocol.Hooks[C]{
		NewClient:  opts.NewClient,
		Welcome:    opts.Welcome,
		Attend:     p.attend,
		Bye:        opts.Bye,
		Disconnect: opts.Disconnect,
	})
	if err != nil {
		return nil, err
	}
	sp.DefaultPort = opts.DefaultPort
	p.ServerProtocol = sp

	if !opts.DisableAutoMapping {
		if err := p.autoMap(opts); err != nil {
			return nil, err
		}
	}

	Logger.Debugf("created command protocol with %d commands", p.handlers.Size())
	return p, nil
}

// autoMap registers the declarative sources in a fixed order
func (p *Protocol[C, K, R]) autoMap(opts Options[C, K, R]) error {
	for _, route := range opts.Routes {
		if route.Handler == nil {
			return fmt.Errorf("%w: route without handler", common.ErrConfiguration)
		}
		for _, cmd := range route.Commands {
			if _, loaded := p.handlers.LoadOrStore(cmd, route.Handler); loaded {
				return fmt.Errorf("%w: %s is declared twice", ErrDuplicateCommand, p.commandName(cmd))
			}
			p.stats.register(p.commandName(cmd))
		}
	}

	if len(opts.Conventions) > 0 {
		if opts.ParseCommand == nil {
			return fmt.Errorf("%w: conventions given without ParseCommand", common.ErrConfiguration)
		}

		// map iteration order is random, registration order must not be
		names := make([]string, 0, len(opts.Conventions))
		for name := range opts.Conventions {
			names = append(names, name)
		}
		slices.Sort(names)

		for _, name := range names {
			cmd, ok := opts.ParseCommand(name)
			if !ok {
				Logger.Warningf("handler %q does not name a command, skipped", name)
				continue
			}
			if err := p.WireUp(cmd, opts.Conventions[name]); err != nil {
				return err
			}
		}
	}

	if opts.Mappings != nil {
		for _, m := range opts.Mappings() {
			if err := p.WireUp(m.Command, m.Handler); err != nil {
				return err
			}
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Registration
// --------------------------------------------------------------------------

// WireUp registers handler for cmd. If cmd already has a handler the call is a
// no-op or fails with ErrDuplicateCommand, depending on the duplicate policy.
// Handlers should be wired before the server is started.
func (p *Protocol[C, K, R]) WireUp(cmd K, handler Handler[C, K, R]) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", common.ErrConfiguration, p.commandName(cmd))
	}
	if _, loaded := p.handlers.LoadOrStore(cmd, handler); loaded {
		if GetDuplicatePolicy() == RejectDuplicates {
			return fmt.Errorf("%w: %s is already wired", ErrDuplicateCommand, p.commandName(cmd))
		}
		Logger.Debugf("%s is already wired, ignored", p.commandName(cmd))
		return nil
	}
	p.stats.register(p.commandName(cmd))
	return nil
}

// WireUpAsync registers an async handler. Dispatch waits for its result.
func (p *Protocol[C, K, R]) WireUpAsync(cmd K, handler AsyncHandler[C, K, R]) error {
	if handler == nil {
		return p.WireUp(cmd, nil)
	}
	return p.WireUp(cmd, func(req *Request[C, K, R]) error {
		done := handler(req)
		if done == nil {
			return nil
		}
		return <-done
	})
}

// Handles reports whether cmd has a handler
func (p *Protocol[C, K, R]) Handles(cmd K) bool {
	_, ok := p.handlers.Load(cmd)
	return ok
}

// Commands returns all commands with a handler in ascending order
func (p *Protocol[C, K, R]) Commands() []K {
	cmds := make([]K, 0, p.handlers.Size())
	p.handlers.Range(func(cmd K, _ Handler[C, K, R]) bool {
		cmds = append(cmds, cmd)
		return true
	})
	slices.Sort(cmds)
	return cmds
}

// --------------------------------------------------------------------------
// Dispatch
// --------------------------------------------------------------------------

// attend decodes and dispatches one message. Nothing escapes to the server loop.
func (p *Protocol[C, K, R]) attend(c C, data []byte) {
	id, correlated, cmd, payload, err := codec.DecodeRequest[K](data)
	if err != nil {
		p.fail(c, fmt.Errorf("failed to decode request: %w", err))
		return
	}

	handler, ok := p.handlers.Load(cmd)
	if !ok {
		p.notMapped(c, cmd)
		return
	}

	req := &Request[C, K, R]{
		ID:         id,
		Correlated: correlated,
		Command:    cmd,
		Client:     c,
		protocol:   p,
		payload:    payload,
	}

	start := time.Now()
	err = p.invoke(handler, req)
	p.stats.observe(p.commandName(cmd), time.Since(start))

	if err != nil {
		p.fail(c, fmt.Errorf("%s: %w", p.commandName(cmd), err))
	}
}

func (p *Protocol[C, K, R]) invoke(handler Handler[C, K, R], req *Request[C, K, R]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(req)
}

func (p *Protocol[C, K, R]) notMapped(c C, cmd K) {
	p.stats.notMapped.Inc(1)
	Logger.Warningf("%s: %v: %s", c.ID(), ErrNotMapped, p.commandName(cmd))

	if p.events.NotMapped != nil {
		p.events.NotMapped(c, cmd)
	}
	if p.notMappedResp != nil {
		p.sendFallback(c, *p.notMappedResp)
	}
}

func (p *Protocol[C, K, R]) fail(c C, err error) {
	p.stats.errors.Inc(1)
	Logger.Errorf("%s: %v", c.ID(), err)

	if p.events.ServerError != nil {
		p.events.ServerError(c, err)
	}
	if p.errorResp != nil {
		p.sendFallback(c, *p.errorResp)
	}
}

func (p *Protocol[C, K, R]) sendFallback(c C, result R) {
	if err := c.Send(MakeResponse(result)); err != nil && !errors.Is(err, common.ErrConnectionClosed) {
		Logger.Warningf("%s: failed to send fallback response: %v", c.ID(), err)
	}
}

// --------------------------------------------------------------------------
// Framing
// --------------------------------------------------------------------------

// MkResp frames a reply. With AppendCorrelation the reply starts with a flag byte
// that is followed by id when toOriginator is set.
func (p *Protocol[C, K, R]) MkResp(id uuid.UUID, toOriginator bool, result R, payloads ...codec.Payload) ([]byte, error) {
	b := codec.AppendReplyPrefix(nil, p.appendCorrelation, id, toOriginator)
	b = codec.AppendCode(b, result)
	return codec.AppendPayloads(b, payloads...)
}

// AppendsCorrelation reports whether replies carry the correlation prefix
func (p *Protocol[C, K, R]) AppendsCorrelation() bool {
	return p.appendCorrelation
}

// MakeResponse frames a reply generated by the framework itself: a zero byte
// followed by the result code, independent of the correlation setting.
func MakeResponse[R codec.Code](result R) []byte {
	return codec.AppendCode([]byte{0}, result)
}
