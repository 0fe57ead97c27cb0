package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a registry carrying the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus text format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// PipelineMetrics tracks the detection and submission pipeline. A nil
// *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	Cycles        prometheus.Counter
	CycleDuration prometheus.Histogram
	Quotes        *prometheus.CounterVec
	Outcomes      *prometheus.CounterVec
	RelayLatency  *prometheus.HistogramVec
	MaxFeePerGas  prometheus.Gauge
	PriorityFee   prometheus.Gauge
}

func NewPipelineMetrics(namespace string, reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		Cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of detection cycles",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Detection cycle duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		Quotes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Router quotes by router and result",
		}, []string{"router", "result"}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Opportunities by terminal outcome",
		}, []string{"outcome"}),
		RelayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_latency_seconds",
			Help:      "Relay submission latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"status"}),
		MaxFeePerGas: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_fee_per_gas_wei",
			Help:      "Max fee per gas of the last fee quote",
		}),
		PriorityFee: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_priority_fee_per_gas_wei",
			Help:      "Priority fee of the last fee quote",
		}),
	}
}

// RegisterCacheGauges exposes a cache's size and how many inserts it refused
// because it was full
func RegisterCacheGauges(namespace string, reg prometheus.Registerer, size func() int, rejections func() uint64) {
	factory := promauto.With(reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dedupe_entries",
		Help:      "Live entries in the dedupe cache",
	}, func() float64 { return float64(size()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dedupe_rejections_total",
		Help:      "Reservations refused because the dedupe cache was full of live entries",
	}, func() float64 { return float64(rejections()) })
}

func (m *PipelineMetrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.Cycles.Inc()
	m.CycleDuration.Observe(d.Seconds())
}

func (m *PipelineMetrics) QuoteResult(router string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Quotes.WithLabelValues(router, result).Inc()
}

func (m *PipelineMetrics) Outcome(outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) ObserveRelay(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RelayLatency.WithLabelValues(status).Observe(d.Seconds())
}

// SetFee records the last fee quote in wei. Values beyond float64 precision
// are approximate.
func (m *PipelineMetrics) SetFee(maxFee, tip float64) {
	if m == nil {
		return
	}
	m.MaxFeePerGas.Set(maxFee)
	m.PriorityFee.Set(tip)
}
