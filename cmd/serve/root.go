package serve

import (
	"context"
	"errors"
	"fmt"
	cmdUtil "github.com/ValentinKolb/dCP/cmd/util"
	"github.com/ValentinKolb/dCP/lib/chat"
	"github.com/ValentinKolb/dCP/rpc/common"
	"github.com/ValentinKolb/dCP/rpc/server"
	"github.com/ValentinKolb/dCP/rpc/transport"
	"github.com/ValentinKolb/dCP/rpc/transport/base"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("server")

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dCP chat server",
		Long:    `Start the dCP chat server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DCP_<flag> (e.g. DCP_MAX_CLIENTS=100)`,
		PreRunE: processConfig,
		RunE:    run,
	}
	maxClients    int
	statsInterval time.Duration
)

func init() {
	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, fmt.Sprintf("0.0.0.0:%d", common.DefaultPort), cmdUtil.WrapString("The address on which the server will listen (e.g. 0.0.0.0:7070, /tmp/dcp.sock, ...)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Write timeout in seconds for a single message (0 = none)"))

	key = "disconnect-timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("How long shutdown waits for connected clients before they are disconnected (in seconds)"))

	key = "append-correlation"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether replies carry the correlation prefix. The dcp client requires it"))

	key = "max-clients"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Maximum number of connected clients (0 = unlimited)"))

	key = "max-message-size"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxMessageSize/1024, cmdUtil.WrapString("Largest accepted message (in KB)"))

	key = "transport-write-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket write buffer (in KB)"))

	key = "transport-read-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket read buffer (in KB)"))

	key = "transport-tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	ServeCmd.PersistentFlags().Int(key, -1, cmdUtil.WrapString("The linger time (in seconds, only for tcp, negative = os default)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address for the prometheus /metrics endpoint (e.g. localhost:9090, empty = disabled)"))

	key = "stats-interval"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("How often the command statistics are logged (0 = never)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	*serveCmdConfig = common.ServerConfig{
		Transport: common.ServerTransportConfig{
			Endpoint:       viper.GetString("endpoint"),
			MaxMessageSize: viper.GetInt("max-message-size") * 1024,
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
			},
		},
		TimeoutSecond:           viper.GetInt64("timeout"),
		DisconnectTimeoutSecond: viper.GetInt64("disconnect-timeout"),
		AppendCorrelation:       viper.GetBool("append-correlation"),
		MetricsEndpoint:         viper.GetString("metrics-endpoint"),
		LogLevel:                viper.GetString("log-level"),
	}
	maxClients = viper.GetInt("max-clients")
	statsInterval = viper.GetDuration("stats-interval")

	if maxClients < 0 {
		return fmt.Errorf("max-clients must not be negative")
	}
	return serveCmdConfig.Validate()
}

// run starts the chat server and blocks until it is stopped by a signal
func run(_ *cobra.Command, _ []string) error {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	connector, err := cmdUtil.GetServerConnector()
	if err != nil {
		return err
	}

	room, err := chat.NewRoom(chat.Options{
		MaxClients:        maxClients,
		AppendCorrelation: serveCmdConfig.AppendCorrelation,
		Conn: base.ConnOptions{
			MaxMessageSize: serveCmdConfig.MaxMessageSize(),
			WriteTimeout:   serveCmdConfig.WriteTimeout(),
		},
	})
	if err != nil {
		return err
	}

	s, err := room.BuildServer(connector, *serveCmdConfig, server.WithEvents(server.Events{
		ServerStarted: func(at time.Time) {
			Logger.Infof("Server started at %s", at.Format(time.RFC3339))
		},
		ClientRejected: func(c transport.Connection) {
			Logger.Infof("Rejected %s", c.RemoteAddr())
		},
	}))
	if err != nil {
		return err
	}

	Logger.Infof("%s", serveCmdConfig.String())

	done, err := s.Start()
	if err != nil {
		return err
	}

	// optional prometheus endpoint
	var metricsServer *http.Server
	if serveCmdConfig.MetricsEndpoint != "" {
		metricsServer = serveMetrics(serveCmdConfig.MetricsEndpoint, s)
	}

	// optional periodic command statistics
	var statsCue chan interface{}
	if statsInterval > 0 {
		statsCue = make(chan interface{})
		go gometrics.LogOnCue(room.Registry(), statsCue, statsLogger{})
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for range ticker.C {
				select {
				case statsCue <- struct{}{}:
				case <-done:
					return
				}
			}
		}()
	}

	// wait for a signal or the accept loop to end
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case received := <-sig:
		Logger.Infof("Received %s, shutting down", received)
	case <-done:
		Logger.Warningf("Accept loop ended unexpectedly")
	}

	room.Announce("server is shutting down")
	s.Stop()

	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(ctx)
	}
	return nil
}

// serveMetrics exposes the server metrics and the process metrics in prometheus format
func serveMetrics(endpoint string, s *server.Server) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		s.Metrics().WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})

	srv := &http.Server{Addr: endpoint, Handler: mux}
	go func() {
		Logger.Infof("Metrics available at http://%s/metrics", endpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Metrics endpoint failed: %v", err)
		}
	}()
	return srv
}

// statsLogger forwards go-metrics output to the server logger
type statsLogger struct{}

func (statsLogger) Printf(format string, v ...interface{}) {
	Logger.Infof("%s", strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
}
