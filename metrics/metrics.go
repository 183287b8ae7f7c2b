// Package metrics provides Prometheus collectors for the transaction core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Endpoint health
	ProbesTotal     *prometheus.CounterVec
	EndpointHealthy *prometheus.GaugeVec
	FailoversTotal  *prometheus.CounterVec
	RPCCallDuration *prometheus.HistogramVec

	// Transfers
	TransfersTotal *prometheus.CounterVec
	StatusLookups  *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odyssey",
			Name:      "endpoint_probes_total",
			Help:      "Liveness probes by endpoint group, endpoint and outcome.",
		}, []string{"group", "endpoint", "result"}),
		EndpointHealthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "odyssey",
			Name:      "endpoint_healthy",
			Help:      "1 if the endpoint passed its last probe, 0 otherwise.",
		}, []string{"group", "endpoint"}),
		FailoversTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odyssey",
			Name:      "endpoint_failovers_total",
			Help:      "Calls retried against another endpoint after a failure.",
		}, []string{"group"}),
		RPCCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "odyssey",
			Name:      "rpc_call_duration_seconds",
			Help:      "Duration of outbound calls made through the failover loop.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"group", "result"}),
		TransfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odyssey",
			Name:      "transfers_total",
			Help:      "Transfers by chain and outcome.",
		}, []string{"chain", "outcome"}),
		StatusLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odyssey",
			Name:      "status_lookups_total",
			Help:      "Status lookups by chain and normalized status.",
		}, []string{"chain", "status"}),
	}
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveProbe records a probe outcome.
func (m *Metrics) ObserveProbe(group, endpoint string, healthy bool) {
	if m == nil {
		return
	}
	result, gauge := "ok", 1.0
	if !healthy {
		result, gauge = "fail", 0
	}
	m.ProbesTotal.WithLabelValues(group, endpoint, result).Inc()
	m.EndpointHealthy.WithLabelValues(group, endpoint).Set(gauge)
}

// ObserveCall records the duration of one outbound call.
func (m *Metrics) ObserveCall(group string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RPCCallDuration.WithLabelValues(group, result).Observe(time.Since(start).Seconds())
}

// IncFailover records a retry against another endpoint.
func (m *Metrics) IncFailover(group string) {
	if m == nil {
		return
	}
	m.FailoversTotal.WithLabelValues(group).Inc()
}

// IncTransfer records a transfer outcome.
func (m *Metrics) IncTransfer(chain, outcome string) {
	if m == nil {
		return
	}
	m.TransfersTotal.WithLabelValues(chain, outcome).Inc()
}

// IncStatusLookup records a status lookup.
func (m *Metrics) IncStatusLookup(chain, status string) {
	if m == nil {
		return
	}
	m.StatusLookups.WithLabelValues(chain, status).Inc()
}
