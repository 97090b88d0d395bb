package base

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dCP/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// connCounter numbers connections for their IDs
var connCounter atomic.Uint64

// ConnOptions configures a Conn
type ConnOptions struct {
	// MaxMessageSize is the largest frame accepted from the peer (0 = default)
	MaxMessageSize int
	// WriteTimeout bounds a single write (0 = no timeout)
	WriteTimeout time.Duration
}

// ConnectionInfo is a snapshot of a connection's statistics
type ConnectionInfo struct {
	ID               string    `json:"id"`
	RemoteAddr       string    `json:"remoteAddr"`
	ConnectedAt      time.Time `json:"connectedAt"`
	LastActivity     time.Time `json:"lastActivity"`
	BytesSent        int64     `json:"bytesSent"`
	BytesReceived    int64     `json:"bytesReceived"`
	MessagesSent     int64     `json:"messagesSent"`
	MessagesReceived int64     `json:"messagesReceived"`
	PendingSends     int       `json:"pendingSends"`
}

// Conn is the default transport.Connection over a stream socket.
// Messages are framed with a 4 byte length prefix.
//
// Applications that need per client state embed *Conn in their own type.
type Conn struct {
	id             string
	conn           net.Conn
	maxMessageSize int
	writeTimeout   time.Duration

	alive         atomic.Bool
	disconnecting atomic.Bool
	closeOnce     sync.Once

	writeMu sync.Mutex // one frame at a time
	readMu  sync.Mutex // one Receive at a time
	queue   *sendQueue

	connectedAt      time.Time
	lastActivity     atomic.Int64 // unix nano
	bytesSent        atomic.Int64
	bytesReceived    atomic.Int64
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
}

// NewConn wraps an established connection
func NewConn(conn net.Conn, opts ConnOptions) *Conn {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = common.DefaultMaxMessageSize
	}

	c := &Conn{
		id:             fmt.Sprintf("conn_%d", connCounter.Add(1)),
		conn:           conn,
		maxMessageSize: opts.MaxMessageSize,
		writeTimeout:   opts.WriteTimeout,
		connectedAt:    time.Now(),
	}
	c.alive.Store(true)
	c.lastActivity.Store(c.connectedAt.UnixNano())
	c.queue = newSendQueue(c.Send)
	return c
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.Connection)
// --------------------------------------------------------------------------

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) IsAlive() bool {
	return c.alive.Load()
}

func (c *Conn) Disconnecting() bool {
	return c.disconnecting.Load()
}

func (c *Conn) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		c.queue.close()
		err = c.conn.Close()
		Logger.Debugf("%s: disconnected (%s)", c.id, c.conn.RemoteAddr())
	})
	return err
}

func (c *Conn) Send(data []byte) error {
	if !c.IsAlive() {
		return common.ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if err := WriteFrame(c.conn, data); err != nil {
		// a failed write leaves the stream in an unknown state
		_ = c.Disconnect()
		return fmt.Errorf("%s: write failed: %w", c.id, err)
	}

	c.bytesSent.Add(int64(len(data) + frameHeaderSize))
	c.messagesSent.Add(1)
	c.touch()
	return nil
}

func (c *Conn) SendAsync(data []byte) <-chan error {
	done := make(chan error, 1)
	if !c.queue.push(&outbound{data: data, done: done}) {
		done <- common.ErrConnectionClosed
	}
	return done
}

func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	if !c.IsAlive() {
		return nil, common.ErrConnectionClosed
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()

	// cancellation unblocks the pending read by moving the deadline
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})

	data, err := ReadFrame(c.conn, c.maxMessageSize)

	if !stop() {
		// ctx is done: whatever was read is discarded
		_ = c.conn.SetReadDeadline(time.Time{})
		return nil, ctx.Err()
	}

	if err != nil {
		c.alive.Store(false)
		return nil, err
	}

	c.bytesReceived.Add(int64(len(data) + frameHeaderSize))
	c.messagesReceived.Add(1)
	c.touch()
	return data, nil
}

// --------------------------------------------------------------------------
// Additional Methods
// --------------------------------------------------------------------------

// Farewell requests a graceful close. The server calls the protocol's bye
// callback and disconnects once the current message is handled.
func (c *Conn) Farewell() {
	c.disconnecting.Store(true)
}

// NetConn returns the underlying connection
func (c *Conn) NetConn() net.Conn {
	return c.conn
}

// Info returns a snapshot of the connection statistics
func (c *Conn) Info() ConnectionInfo {
	return ConnectionInfo{
		ID:               c.id,
		RemoteAddr:       c.conn.RemoteAddr().String(),
		ConnectedAt:      c.connectedAt,
		LastActivity:     time.Unix(0, c.lastActivity.Load()),
		BytesSent:        c.bytesSent.Load(),
		BytesReceived:    c.bytesReceived.Load(),
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		PendingSends:     c.queue.pending(),
	}
}

func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}
