package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the receipt pipeline metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	CascadeAttempts *prometheus.CounterVec
	PipelineTotal   *prometheus.CounterVec
	LedgerRetries   *prometheus.CounterVec
	PipelineSeconds prometheus.Histogram
}

// New constructs metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CascadeAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipt_cascade_attempts_total",
				Help: "Text extraction attempts by input kind, strategy and result",
			},
			[]string{"kind", "strategy", "result"},
		),
		PipelineTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipt_pipeline_total",
				Help: "Processed receipts by outcome",
			},
			[]string{"result"},
		),
		LedgerRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipt_ledger_retries_total",
				Help: "Ledger append retries by reason",
			},
			[]string{"reason"},
		),
		PipelineSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "receipt_pipeline_seconds",
			Help:    "Receipt pipeline duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.CascadeAttempts,
			m.PipelineTotal,
			m.LedgerRetries,
			m.PipelineSeconds,
		)
	}
	return m
}

func (m *Metrics) ObserveAttempt(kind, strategy, result string) {
	if m == nil {
		return
	}
	m.CascadeAttempts.WithLabelValues(kind, strategy, result).Inc()
}

func (m *Metrics) ObservePipeline(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PipelineTotal.WithLabelValues(result).Inc()
	m.PipelineSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveLedgerRetry(reason string) {
	if m == nil {
		return
	}
	m.LedgerRetries.WithLabelValues(reason).Inc()
}
