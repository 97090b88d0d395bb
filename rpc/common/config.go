package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPort is used when neither the config nor the protocol declares an endpoint
	DefaultPort = 7070

	// DefaultMaxMessageSize caps a single framed message (16 MiB)
	DefaultMaxMessageSize = 16 * 1024 * 1024

	// DefaultDisconnectTimeout bounds how long Stop waits for client goroutines
	DefaultDisconnectTimeout = 5 * time.Second
)

// --------------------------------------------------------------------------
// Socket configuration structs (shared by server and client)
// --------------------------------------------------------------------------

// SocketConf holds settings that apply to every stream socket
type SocketConf struct {
	// WriteBufferSize is the size of the kernel write buffer (0 = os default)
	WriteBufferSize int
	// ReadBufferSize is the size of the kernel read buffer (0 = os default)
	ReadBufferSize int
}

// TCPConf holds TCP specific settings
type TCPConf struct {
	// TCPNoDelay disables Nagle's algorithm
	TCPNoDelay bool
	// TCPKeepAliveSec enables keep-alive with the given period (0 = disabled)
	TCPKeepAliveSec int
	// TCPLingerSec sets SO_LINGER (negative = os default)
	TCPLingerSec int
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig holds the transport specific server settings
type ServerTransportConfig struct {
	// Endpoint is the address the server listens on (e.g. 0.0.0.0:7070 or /tmp/dcp.sock)
	Endpoint string
	// MaxMessageSize is the largest frame accepted from a client
	MaxMessageSize int
	SocketConf
	TCPConf
}

// ServerConfig holds all configuration parameters for a command server
type ServerConfig struct {
	// Transport settings
	Transport ServerTransportConfig

	// TimeoutSecond is the write timeout for a single message (0 = no timeout)
	TimeoutSecond int64

	// DisconnectTimeoutSecond bounds how long Stop waits for connected clients to finish
	DisconnectTimeoutSecond int64

	// AppendCorrelation makes replies carry the correlation prefix
	AppendCorrelation bool

	// MetricsEndpoint is the http address for the prometheus endpoint (empty = disabled)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// DefaultServerConfig returns a config listening on DefaultPort on all interfaces
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Transport: ServerTransportConfig{
			Endpoint:       fmt.Sprintf("0.0.0.0:%d", DefaultPort),
			MaxMessageSize: DefaultMaxMessageSize,
			TCPConf: TCPConf{
				TCPNoDelay:   true,
				TCPLingerSec: -1,
			},
		},
		DisconnectTimeoutSecond: int64(DefaultDisconnectTimeout / time.Second),
		AppendCorrelation:       true,
		LogLevel:                "info",
	}
}

// DisconnectTimeout returns the shutdown grace period as a duration
func (c *ServerConfig) DisconnectTimeout() time.Duration {
	if c.DisconnectTimeoutSecond <= 0 {
		return DefaultDisconnectTimeout
	}
	return time.Duration(c.DisconnectTimeoutSecond) * time.Second
}

// WriteTimeout returns the per message write timeout (0 = none)
func (c *ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// MaxMessageSize returns the configured frame limit or the default
func (c *ServerConfig) MaxMessageSize() int {
	if c.Transport.MaxMessageSize <= 0 {
		return DefaultMaxMessageSize
	}
	return c.Transport.MaxMessageSize
}

// Validate checks the config for values that can never work
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Transport.Endpoint) == "" {
		return fmt.Errorf("%w: no endpoint configured", ErrConfiguration)
	}
	if c.TimeoutSecond < 0 {
		return fmt.Errorf("%w: negative timeout %d", ErrConfiguration, c.TimeoutSecond)
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Server settings
	addSection("Command Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Write Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Disconnect Timeout", c.DisconnectTimeout().String())
	addField("Append Correlation", strconv.FormatBool(c.AppendCorrelation))
	addField("Max Message Size", fmt.Sprintf("%d bytes", c.MaxMessageSize()))

	// Socket settings
	addSection("Socket")
	addField("TCP No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))
	addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.Transport.TCPKeepAliveSec))
	addField("TCP Linger", fmt.Sprintf("%d sec", c.Transport.TCPLingerSec))
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.Transport.WriteBufferSize))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.Transport.ReadBufferSize))

	// Metrics
	if c.MetricsEndpoint != "" {
		addSection("Metrics")
		addField("Endpoint", c.MetricsEndpoint)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the transport specific client settings
type ClientTransportConfig struct {
	// Endpoint is the address of the server
	Endpoint string
	// MaxMessageSize is the largest frame accepted from the server
	MaxMessageSize int
	// RetryCount is the number of connection attempts (minimum 1)
	RetryCount int
	SocketConf
	TCPConf
}

// ClientConfig holds all configuration parameters for a command client
type ClientConfig struct {
	Transport     ClientTransportConfig
	TimeoutSecond int
	// InboxSize is the buffer of the channel receiving untagged replies
	InboxSize int
}

// Timeout returns the request timeout (0 = wait forever)
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Inbox Size", strconv.Itoa(int(math.Max(1, float64(c.InboxSize)))))
	addField("TCP No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))

	return sb.String()
}
