package server

import (
	"github.com/VictoriaMetrics/metrics"
)

// serverMetrics groups the counters of one server instance.
// Every server owns its own metrics.Set so several servers can live in one process.
type serverMetrics struct {
	set           *metrics.Set
	connections   *metrics.Counter
	rejected      *metrics.Counter
	lost          *metrics.Counter
	messages      *metrics.Counter
	bytesReceived *metrics.Counter
	fanoutSends   *metrics.Counter
	sendErrors    *metrics.Counter
	messageSize   *metrics.Histogram
	handlerPanics *metrics.Counter
}

func newServerMetrics(liveClients func() float64) *serverMetrics {
	set := metrics.NewSet()
	set.NewGauge("dcp_clients_live", liveClients)

	return &serverMetrics{
		set:           set,
		connections:   set.NewCounter("dcp_connections_total"),
		rejected:      set.NewCounter("dcp_connections_rejected_total"),
		lost:          set.NewCounter("dcp_connections_lost_total"),
		messages:      set.NewCounter("dcp_messages_received_total"),
		bytesReceived: set.NewCounter("dcp_bytes_received_total"),
		fanoutSends:   set.NewCounter("dcp_broadcast_sends_total"),
		sendErrors:    set.NewCounter("dcp_send_errors_total"),
		messageSize:   set.NewHistogram("dcp_message_size_bytes"),
		handlerPanics: set.NewCounter("dcp_protocol_panics_total"),
	}
}
