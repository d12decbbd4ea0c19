package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/aeolun/nanopubsub/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons used as the "reason" label of datagrams_dropped_total
const (
	ReasonOversized = "oversized"
	ReasonMalformed = "malformed"
	ReasonOther     = "other"
)

// Metrics holds the transport collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	sent       *prometheus.CounterVec
	sentBytes  prometheus.Counter
	received   *prometheus.CounterVec
	recvBytes  prometheus.Counter
	dropped    *prometheus.CounterVec
	sendErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nanopubsub",
				Subsystem: "transport",
				Name:      "datagrams_sent_total",
				Help:      "Datagrams sent, by message kind.",
			},
			[]string{"kind"},
		),
		sentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nanopubsub",
			Subsystem: "transport",
			Name:      "sent_bytes_total",
			Help:      "Bytes reported sent by the socket.",
		}),
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nanopubsub",
				Subsystem: "transport",
				Name:      "datagrams_received_total",
				Help:      "Datagrams received and parsed, by message kind.",
			},
			[]string{"kind"},
		),
		recvBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nanopubsub",
			Subsystem: "transport",
			Name:      "received_bytes_total",
			Help:      "Bytes read from the socket, including dropped datagrams.",
		}),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nanopubsub",
				Subsystem: "transport",
				Name:      "datagrams_dropped_total",
				Help:      "Received datagrams discarded because they did not parse.",
			},
			[]string{"reason"},
		),
		sendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nanopubsub",
				Subsystem: "transport",
				Name:      "send_errors_total",
				Help:      "Failed sends, by stage.",
			},
			[]string{"stage"},
		),
	}
	reg.MustRegister(m.sent, m.sentBytes, m.received, m.recvBytes, m.dropped, m.sendErrors)
	return m
}

// RecordSent counts one transmitted datagram of n bytes
func (m *Metrics) RecordSent(kind protocol.Kind, n int) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(kind.String()).Inc()
	m.sentBytes.Add(float64(n))
}

// RecordSendError counts a send that failed at the given stage
func (m *Metrics) RecordSendError(stage string) {
	if m == nil {
		return
	}
	m.sendErrors.WithLabelValues(stage).Inc()
}

// RecordReceived counts one datagram of n bytes that parsed as kind
func (m *Metrics) RecordReceived(kind protocol.Kind, n int) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(kind.String()).Inc()
	m.recvBytes.Add(float64(n))
}

// RecordDropped counts one datagram of n bytes discarded because of err
func (m *Metrics) RecordDropped(err error, n int) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(DropReason(err)).Inc()
	m.recvBytes.Add(float64(n))
}

// DropReason maps a parse error to a reason label
func DropReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrOversizedInput):
		return ReasonOversized
	case errors.Is(err, protocol.ErrMalformedWireFormat):
		return ReasonMalformed
	default:
		return ReasonOther
	}
}

// Serve exposes the collectors gathered by g on addr under /metrics until
// ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
