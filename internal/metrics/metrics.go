// Package metrics exposes Prometheus counters/gauges for the gateway's
// ops visibility — a side channel to the single-threaded trading data
// path, not part of it (see DESIGN.md's Open Question on this package).
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rishav/risk-gateway/internal/wire"
)

// Registry wraps the Prometheus collectors the gateway reports.
type Registry struct {
	messages    *prometheus.CounterVec
	connections prometheus.Gauge
}

// NewRegistry registers the gateway's collectors on a fresh Prometheus
// registry and returns a handle to update them.
func NewRegistry() (*Registry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	r := &Registry{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskgw_messages_total",
			Help: "Total messages processed, by message type and risk decision.",
		}, []string{"type", "decision"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskgw_connections",
			Help: "Currently live connections.",
		}),
	}
	reg.MustRegister(r.messages, r.connections)
	return r, reg
}

// RecordMessage increments the per-type, per-decision message counter.
func (r *Registry) RecordMessage(msgType wire.MessageType, decision string) {
	r.messages.WithLabelValues(msgType.String(), decision).Inc()
}

// ConnectionOpened/ConnectionClosed adjust the live-connection gauge.
func (r *Registry) ConnectionOpened() { r.connections.Inc() }
func (r *Registry) ConnectionClosed() { r.connections.Dec() }

// Serve starts a small admin HTTP server exposing /metrics on addr. It
// runs in its own goroutine (started by the caller) and returns when ctx
// is cancelled or the server fails to start.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		log.Warn("metrics server stopped", zap.Error(err))
		return err
	}
}
