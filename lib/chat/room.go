package chat

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dCP/rpc/codec"
	"github.com/ValentinKolb/dCP/rpc/command"
	"github.com/ValentinKolb/dCP/rpc/transport"
	"github.com/ValentinKolb/dCP/rpc/transport/base"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

var Logger = logger.GetLogger("chat")

// Request is a chat request
type Request = command.Request[*Client, Command, Result]

// maxSlowDelay caps the delay of CmdSlow
const maxSlowDelay = 10 * time.Second

// maxNickLen is the longest accepted nickname
const maxNickLen = 32

// ErrNickTaken is answered when a nickname is already in use
var ErrNickTaken = errors.New("nickname is already taken")

// Options configures a Room
type Options struct {
	// MaxClients limits the number of live clients (0 = unlimited)
	MaxClients int
	// AppendCorrelation is passed on to the command protocol
	AppendCorrelation bool
	// Conn configures every accepted connection
	Conn base.ConnOptions
	// DefaultPort is used by BuildDefaultServer
	DefaultPort int
}

// Stats is the reply of CmdStats
type Stats struct {
	Clients  int           `json:"clients"`
	Uptime   string        `json:"uptime"`
	Dispatch command.Stats `json:"dispatch"`
}

// Room is a chat room served by a command protocol.
// Every live client of the server is a member of the room.
type Room struct {
	*command.Protocol[*Client, Command, Result]

	maxClients int
	createdAt  time.Time
	nickMu     sync.Mutex // check and set of nicknames
}

// NewRoom creates the chat protocol
func NewRoom(opts Options) (*Room, error) {
	r := &Room{
		maxClients: opts.MaxClients,
		createdAt:  time.Now(),
	}

	p, err := command.New(command.Options[*Client, Command, Result]{
		NewClient: func(conn net.Conn) (*Client, error) {
			return NewClient(conn, opts.Conn), nil
		},
		Welcome:           r.welcome,
		Bye:               r.bye,
		Disconnect:        r.disconnect,
		AppendCorrelation: opts.AppendCorrelation,
		DefaultPort:       opts.DefaultPort,

		Routes: []command.Route[*Client, Command, Result]{
			{Commands: []Command{CmdPing}, Handler: r.ping},
			{Commands: []Command{CmdEcho}, Handler: r.echo},
			{Commands: []Command{CmdStats}, Handler: r.stats},
		},
		Conventions: map[string]command.Handler[*Client, Command, Result]{
			"nick":    r.nick,
			"say":     r.say,
			"whisper": r.whisper,
			"who":     r.who,
		},
		ParseCommand: ParseCommand,
		Mappings: func() []command.Mapping[*Client, Command, Result] {
			return []command.Mapping[*Client, Command, Result]{
				{Command: CmdUpload, Handler: r.upload},
				{Command: CmdQuit, Handler: r.quit},
			}
		},

		Reserved: command.Reserved[Result]{
			Error:     command.Code(ResError),
			Unknown:   command.Code(ResUnknown),
			NotMapped: command.Code(ResNotMapped),
		},
		Events: command.Events[*Client, Command]{
			NotMapped: func(c *Client, cmd Command) {
				Logger.Warningf("%s sent unknown command %d", c.Nick(), uint16(cmd))
			},
			ServerError: func(c *Client, err error) {
				Logger.Errorf("%s: %v", c.Nick(), err)
			},
		},
		CommandName: Command.String,
	})
	if err != nil {
		return nil, err
	}
	r.Protocol = p

	if err := p.WireUpAsync(CmdSlow, r.slow); err != nil {
		return nil, err
	}
	return r, nil
}

// Members returns the nicknames of all live clients in sorted order
func (r *Room) Members() []string {
	hub := r.Hub()
	if hub == nil {
		return nil
	}

	var nicks []string
	for _, conn := range hub.Clients() {
		if c, ok := conn.(*Client); ok {
			nicks = append(nicks, c.Nick())
		}
	}
	slices.Sort(nicks)
	return nicks
}

// Announce sends a server message to every member
func (r *Room) Announce(text string) int {
	return r.announce(text, nil)
}

func (r *Room) announce(text string, except transport.Connection) int {
	hub := r.Hub()
	if hub == nil {
		return 0
	}
	data, err := r.MkResp(uuid.Nil, false, ResMessage, codec.Strings("*", text))
	if err != nil {
		return 0
	}
	return hub.Broadcast(data, except)
}

// --------------------------------------------------------------------------
// Lifecycle hooks
// --------------------------------------------------------------------------

func (r *Room) welcome(c *Client) bool {
	if r.maxClients > 0 {
		if hub := r.Hub(); hub != nil && len(hub.Clients()) >= r.maxClients {
			Logger.Infof("room is full, rejecting %s", c.RemoteAddr())
			return false
		}
	}
	Logger.Infof("%s joined from %s", c.Nick(), c.RemoteAddr())
	return true
}

func (r *Room) bye(c *Client) {
	Logger.Infof("%s left", c.Nick())
	r.announce(c.Nick()+" left", c)
}

func (r *Room) disconnect(c *Client) {
	Logger.Infof("%s lost connection", c.Nick())
	r.announce(c.Nick()+" lost connection", c)
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (r *Room) ping(req *Request) error {
	return req.Respond(ResOK)
}

func (r *Room) echo(req *Request) error {
	return req.Respond(ResMessage, codec.Bytes(req.Payload()))
}

func (r *Room) stats(req *Request) error {
	return req.Respond(ResOK, codec.JSON(Stats{
		Clients:  len(r.Members()),
		Uptime:   time.Since(r.createdAt).Round(time.Second).String(),
		Dispatch: r.Stats(),
	}))
}

func (r *Room) nick(req *Request) error {
	nick, err := req.ReadString()
	if err != nil {
		return fmt.Errorf("failed to read nickname: %w", err)
	}
	nick = strings.TrimSpace(nick)
	if nick == "" || len(nick) > maxNickLen || strings.ContainsAny(nick, " *") {
		return req.Respond(ResError, codec.Strings("invalid nickname"))
	}

	r.nickMu.Lock()
	taken := slices.Contains(r.Members(), nick) && req.Client.Nick() != nick
	if !taken {
		req.Client.SetNick(nick)
	}
	r.nickMu.Unlock()

	if taken {
		return req.Respond(ResError, codec.Strings(ErrNickTaken.Error()))
	}
	return req.Respond(ResOK, codec.Strings(nick))
}

func (r *Room) say(req *Request) error {
	text, err := req.ReadString()
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}
	n, err := req.Broadcast(ResMessage, codec.Strings(req.Client.Nick(), text))
	if err != nil {
		return err
	}
	return req.Respond(ResOK, codec.Strings(strconv.Itoa(n)))
}

func (r *Room) whisper(req *Request) error {
	args, err := req.ReadStrings()
	if err != nil || len(args) != 2 {
		return req.Respond(ResError, codec.Strings("usage: whisper <nick> <text>"))
	}
	to, text := args[0], args[1]

	n, err := req.Multicast(func(c *Client) bool { return c.Nick() == to }, ResMessage,
		codec.Strings(req.Client.Nick(), text))
	if err != nil {
		return err
	}
	if n == 0 {
		return req.Respond(ResError, codec.Strings("no such user: "+to))
	}
	return req.Respond(ResOK, codec.Strings(strconv.Itoa(n)))
}

func (r *Room) who(req *Request) error {
	return req.Respond(ResOK, codec.Strings(r.Members()...))
}

func (r *Room) upload(req *Request) error {
	// the stream is rewound, the whole payload is echoed
	return req.Respond(ResOK, codec.Stream(req.Reader()))
}

func (r *Room) quit(req *Request) error {
	req.Client.Farewell()
	return req.Respond(ResOK)
}

func (r *Room) slow(req *Request) <-chan error {
	delay := time.Duration(0)
	if req.Len() > 0 {
		text, err := req.ReadString()
		if err == nil {
			delay, err = time.ParseDuration(text)
		}
		if err != nil {
			done := make(chan error, 1)
			done <- req.Respond(ResError, codec.Strings("invalid delay"))
			return done
		}
	}
	delay = min(max(delay, 0), maxSlowDelay)

	done := make(chan error, 1)
	go func() {
		time.Sleep(delay)
		done <- <-req.RespondAsync(ResOK, codec.Strings(delay.String()))
	}()
	return done
}
