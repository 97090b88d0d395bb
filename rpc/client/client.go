package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dCP/rpc/codec"
	"github.com/ValentinKolb/dCP/rpc/common"
	"github.com/ValentinKolb/dCP/rpc/transport/base"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("rpc")

const defaultInboxSize = 64

// Client is a command client for servers built with rpc/command.
// The server must append correlation ids to its replies.
//
// Usage:
//
//	c := client.New[Cmd, Res](tcp.NewTCPClientConnector(), config)
//	if err := c.Connect(); err != nil {
//		panic(err)
//	}
//	defer c.Close()
//
//	reply, err := c.Call(CmdEcho, codec.Bytes([]byte("hello")))
type Client[K, R codec.Code] struct {
	connector base.IClientConnector
	config    common.ClientConfig

	mu      sync.Mutex
	conn    net.Conn
	writeMu sync.Mutex
	pending *xsync.MapOf[uuid.UUID, chan *codec.Reply[R]]
	inbox   chan *codec.Reply[R]
	done    chan struct{} // closed when the read loop exits
	closed  atomic.Bool
}

// New creates a client. The client is not connected.
func New[K, R codec.Code](connector base.IClientConnector, config common.ClientConfig) *Client[K, R] {
	return &Client[K, R]{
		connector: connector,
		config:    config,
		pending:   xsync.NewMapOf[uuid.UUID, chan *codec.Reply[R]](),
	}
}

// Connect dials the configured endpoint, retrying with exponential backoff
func (c *Client[K, R]) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	if c.config.Transport.Endpoint == "" {
		return fmt.Errorf("%w: no endpoint provided", common.ErrConfiguration)
	}

	maxRetries := max(c.config.Transport.RetryCount, 1)
	backoffMs := 50

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		conn, err := c.dial()
		if err == nil {
			inboxSize := c.config.InboxSize
			if inboxSize <= 0 {
				inboxSize = defaultInboxSize
			}

			c.conn = conn
			c.inbox = make(chan *codec.Reply[R], inboxSize)
			c.done = make(chan struct{})
			c.closed.Store(false)
			go c.readReplies(conn, c.inbox, c.done)

			Logger.Infof("Connected to %s using %s transport", c.config.Transport.Endpoint, c.connector.GetName())
			return nil
		}

		lastErr = err
		Logger.Debugf("Connect attempt %d/%d failed: %v", i+1, maxRetries, err)

		if i < maxRetries-1 {
			// exponential backoff with +-10% jitter
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}
	}

	return fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client[K, R]) dial() (net.Conn, error) {
	conn, err := c.connector.Connect(c.config.Transport.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.config.Transport.Endpoint, err)
	}
	if err := c.connector.UpgradeConnection(conn, c.config.Transport); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", c.config.Transport.Endpoint, err)
	}
	return conn, nil
}

// Close closes the connection and waits for the read loop to exit
func (c *Client[K, R]) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.closed.Store(true)
	err := conn.Close()
	<-done
	return err
}

// Done is closed when the connection is gone
func (c *Client[K, R]) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Inbox yields replies without correlation id: broadcasts, multicasts, sends
// to this client and framework fallback replies. It is closed with the connection.
// Replies are dropped when the inbox is full.
func (c *Client[K, R]) Inbox() <-chan *codec.Reply[R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inbox
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// Call sends a correlated request and waits for its reply (bounded by TimeoutSecond)
func (c *Client[K, R]) Call(cmd K, payloads ...codec.Payload) (*codec.Reply[R], error) {
	ctx := context.Background()
	if timeout := c.config.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.CallContext(ctx, cmd, payloads...)
}

// CallContext is Call bounded by ctx instead of the configured timeout
func (c *Client[K, R]) CallContext(ctx context.Context, cmd K, payloads ...codec.Payload) (*codec.Reply[R], error) {
	id := uuid.New()
	msg, err := codec.AppendRequest(nil, &id, cmd, payloads...)
	if err != nil {
		return nil, err
	}

	respCh := make(chan *codec.Reply[R], 1)
	c.pending.Store(id, respCh)
	defer c.pending.Delete(id)

	conn, done, err := c.current()
	if err != nil {
		return nil, err
	}
	if err := c.write(conn, msg); err != nil {
		return nil, err
	}

	select {
	case reply := <-respCh:
		return reply, nil
	case <-done:
		return nil, common.ErrConnectionClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: no reply for %v", common.ErrTimeout, cmd)
		}
		return nil, ctx.Err()
	}
}

// Post sends a request without correlation id and does not wait for a reply.
// Note that the server reads the first 16 bytes as id if the message is longer.
func (c *Client[K, R]) Post(cmd K, payloads ...codec.Payload) error {
	msg, err := codec.AppendRequest(nil, nil, cmd, payloads...)
	if err != nil {
		return err
	}
	conn, _, err := c.current()
	if err != nil {
		return err
	}
	return c.write(conn, msg)
}

// SendRaw writes an already encoded message
func (c *Client[K, R]) SendRaw(msg []byte) error {
	conn, _, err := c.current()
	if err != nil {
		return err
	}
	return c.write(conn, msg)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *Client[K, R]) current() (net.Conn, chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, nil, common.ErrConnectionClosed
	}
	return c.conn, c.done, nil
}

func (c *Client[K, R]) write(conn net.Conn, msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout := c.config.Timeout(); timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	if err := base.WriteFrame(conn, msg); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

// readReplies reads replies in a loop and distributes them to waiting calls or the inbox
func (c *Client[K, R]) readReplies(conn net.Conn, inbox chan *codec.Reply[R], done chan struct{}) {
	defer close(done)
	defer close(inbox)

	maxSize := c.config.Transport.MaxMessageSize
	if maxSize <= 0 {
		maxSize = common.DefaultMaxMessageSize
	}

	for {
		data, err := base.ReadFrame(conn, maxSize)
		if err != nil {
			if !c.closed.Load() {
				Logger.Warningf("Connection to %s lost: %v", c.config.Transport.Endpoint, err)
			}
			return
		}

		reply, err := codec.DecodeReply[R](data)
		if err != nil {
			Logger.Warningf("Dropping malformed reply: %v", err)
			continue
		}

		if reply.Correlated {
			if respCh, found := c.pending.LoadAndDelete(reply.ID); found {
				respCh <- reply
			} else {
				Logger.Warningf("Received reply for unknown request %s", reply.ID)
			}
			continue
		}

		select {
		case inbox <- reply:
		default:
			Logger.Warningf("Inbox full, dropping reply %v", reply.Result)
		}
	}
}
