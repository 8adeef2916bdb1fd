package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

// PrometheusMetrics holds the Prometheus collectors for a chasm process
type PrometheusMetrics struct {
	ExecutionsTotal *prometheus.CounterVec
	SnapshotEvents  *prometheus.CounterVec
	ForkRunning     prometheus.Gauge
	LatestBlock     *prometheus.GaugeVec
	ProxyLatency    *prometheus.HistogramVec
}

// NewPrometheusMetrics creates and registers the collectors on reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chasm_executions_total",
				Help: "Executed calls and transactions by mode, kind and outcome",
			},
			[]string{"mode", "kind", "outcome"},
		),

		SnapshotEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chasm_snapshot_events_total",
				Help: "Snapshot stack events (record, revert, clear)",
			},
			[]string{"event"},
		),

		ForkRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chasm_fork_running",
				Help: "1 while a fork node is running",
			},
		),

		LatestBlock: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chasm_latest_block",
				Help: "Latest block number seen per mode",
			},
			[]string{"mode"},
		),

		ProxyLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chasm_proxy_latency_seconds",
				Help:    "JSON-RPC proxy latency by method",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "status"},
		),
	}
}

// ObserveExecution counts an execution outcome
func (m *PrometheusMetrics) ObserveExecution(mode domain.Mode, kind domain.ResultKind, err error) {
	m.ExecutionsTotal.WithLabelValues(string(mode), string(kind), outcome(err)).Inc()
}

// ObserveSnapshot counts a snapshot stack event
func (m *PrometheusMetrics) ObserveSnapshot(event string) {
	m.SnapshotEvents.WithLabelValues(event).Inc()
}

// SetForkRunning updates the fork gauge
func (m *PrometheusMetrics) SetForkRunning(running bool) {
	if running {
		m.ForkRunning.Set(1)
	} else {
		m.ForkRunning.Set(0)
	}
}

// SetLatestBlock updates the per-mode block gauge
func (m *PrometheusMetrics) SetLatestBlock(mode domain.Mode, block uint64) {
	m.LatestBlock.WithLabelValues(string(mode)).Set(float64(block))
}

// knownRPCMethods bounds the proxy method label
var knownRPCMethods = map[string]bool{
	"eth_blockNumber":           true,
	"eth_call":                  true,
	"eth_chainId":               true,
	"eth_estimateGas":           true,
	"eth_getBalance":            true,
	"eth_getCode":               true,
	"eth_getTransactionCount":   true,
	"eth_getTransactionReceipt": true,
	"eth_sendRawTransaction":    true,
	"eth_sendTransaction":       true,
}

// ObserveProxy records the latency of a proxied JSON-RPC request
func (m *PrometheusMetrics) ObserveProxy(method string, success bool, latencySeconds float64) {
	if !knownRPCMethods[method] {
		method = "other"
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.ProxyLatency.WithLabelValues(method, status).Observe(latencySeconds)
}

func outcome(err error) string {
	var execErr *domain.ExecutionError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &execErr):
		return "failed_" + execErr.Stage
	default:
		return "error"
	}
}

var _ usecase.MetricsRecorder = (*PrometheusMetrics)(nil)
