// Package metrics exposes run results as Prometheus metrics and optionally
// pushes them to a Pushgateway at the end of a run.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricPrefix = "dormwatch_"

// Metrics bundles the run metrics on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Balance       *prometheus.GaugeVec
	Low           prometheus.Gauge
	RunsTotal     *prometheus.CounterVec
	Deliveries    *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	LastSuccess   prometheus.Gauge

	pushURL string
	job     string
}

// New constructs and registers metrics. pushURL may be empty.
func New(pushURL, job string) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Balance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "balance_kwh",
				Help: "Remaining balance by meter",
			},
			[]string{"meter"},
		),
		Low: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "balance_low",
			Help: "1 if either meter is at or below the warning threshold",
		}),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Total runs by outcome",
			},
			[]string{"outcome"},
		),
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "deliveries_total",
				Help: "Notification deliveries by channel and status",
			},
			[]string{"channel", "status"},
		),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "fetch_duration_seconds",
			Help:    "Balance fetch duration in seconds, retries included",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "last_success_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),
		pushURL: pushURL,
		job:     job,
	}
	m.Registry.MustRegister(
		m.Balance,
		m.Low,
		m.RunsTotal,
		m.Deliveries,
		m.FetchDuration,
		m.LastSuccess,
	)
	return m
}

// ObserveReading records both balances and the low flag.
func (m *Metrics) ObserveReading(light, ac float64, low bool) {
	m.Balance.WithLabelValues("light").Set(light)
	m.Balance.WithLabelValues("ac").Set(ac)
	if low {
		m.Low.Set(1)
	} else {
		m.Low.Set(0)
	}
}

// ObserveFetch records how long the fetch took.
func (m *Metrics) ObserveFetch(d time.Duration) {
	m.FetchDuration.Observe(d.Seconds())
}

// ObserveDelivery counts one channel outcome.
func (m *Metrics) ObserveDelivery(channel, status string) {
	m.Deliveries.WithLabelValues(channel, status).Inc()
}

// ObserveRun counts a finished run; "done" also stamps LastSuccess.
func (m *Metrics) ObserveRun(outcome string, at time.Time) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	if outcome == "done" {
		m.LastSuccess.Set(float64(at.Unix()))
	}
}

// PushEnabled reports whether a Pushgateway is configured.
func (m *Metrics) PushEnabled() bool { return m.pushURL != "" }

// Push sends the registry to the Pushgateway, replacing the job's group.
func (m *Metrics) Push(ctx context.Context) error {
	if !m.PushEnabled() {
		return nil
	}
	if err := push.New(m.pushURL, m.job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
