package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bank_backoffice"

type Metrics struct {
	processed       *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	consumerDepth   prometheus.Gauge
	consumerRunning prometheus.Gauge
	schedulerDrains *prometheus.CounterVec
	schedulerItems  prometheus.Counter
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in the process and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		processed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_processed_total",
				Help:      "Transactions run through the processing pipeline by category and resulting status.",
			},
			[]string{"category", "status"},
		),
		processDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_processing_duration_seconds",
				Help:      "Pipeline latency per transaction in seconds.",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"category"},
		),
		consumerDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_queued_transactions",
			Help:      "Transactions waiting in the consumer queues.",
		}),
		consumerRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_in_flight_transactions",
			Help:      "Transactions currently being processed by the consumer.",
		}),
		schedulerDrains: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_ticks_total",
				Help:      "Scheduler ticks by outcome (drained, skipped, disabled, not_leader, failed).",
			},
			[]string{"outcome"},
		),
		schedulerItems: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_recovered_transactions_total",
			Help:      "Transactions drained by the scheduler.",
		}),
	}
}

func (m *Metrics) ObserveProcessed(category, status string, d time.Duration) {
	m.processed.WithLabelValues(category, status).Inc()
	m.processDuration.WithLabelValues(category).Observe(d.Seconds())
}

func (m *Metrics) SetConsumerDepth(queued, running int) {
	m.consumerDepth.Set(float64(queued))
	m.consumerRunning.Set(float64(running))
}

func (m *Metrics) ObserveTick(outcome string, drained int) {
	m.schedulerDrains.WithLabelValues(outcome).Inc()
	m.schedulerItems.Add(float64(drained))
}
