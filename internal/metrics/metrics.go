package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the adapter's collectors. A nil *Metrics records nothing.
type Metrics struct {
	rpcCalls    *prometheus.CounterVec
	rpcErrors   *prometheus.CounterVec
	tvlDuration *prometheus.HistogramVec
	tvlFailures *prometheus.CounterVec
	tvlBlock    *prometheus.GaugeVec
	tvlAssets   *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rpcCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tvl_rpc_calls_total",
				Help: "Contract calls issued, by chain and method."},
			[]string{"chain", "method"},
		),
		rpcErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tvl_rpc_errors_total",
				Help: "Failed contract calls, by chain and method."},
			[]string{"chain", "method"},
		),
		tvlDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tvl_compute_duration_seconds",
				Help:    "Time taken to compute the TVL of one chain.",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10)},
			[]string{"chain"},
		),
		tvlFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tvl_compute_failures_total",
				Help: "TVL computations aborted by an error."},
			[]string{"chain"},
		),
		tvlBlock: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tvl_snapshot_block",
				Help: "Block height of the latest TVL snapshot."},
			[]string{"chain"},
		),
		tvlAssets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tvl_snapshot_assets",
				Help: "Number of price identifiers in the latest TVL snapshot."},
			[]string{"chain"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.rpcCalls, m.rpcErrors, m.tvlDuration, m.tvlFailures, m.tvlBlock, m.tvlAssets)
	}
	return m
}

func (m *Metrics) RPCCall(chain, method string, err error) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(chain, method).Inc()
	if err != nil {
		m.rpcErrors.WithLabelValues(chain, method).Inc()
	}
}

func (m *Metrics) TVLComputed(chain string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.tvlDuration.WithLabelValues(chain).Observe(took.Seconds())
	if err != nil {
		m.tvlFailures.WithLabelValues(chain).Inc()
	}
}

func (m *Metrics) Snapshot(chain string, block uint64, assets int) {
	if m == nil {
		return
	}
	m.tvlBlock.WithLabelValues(chain).Set(float64(block))
	m.tvlAssets.WithLabelValues(chain).Set(float64(assets))
}
