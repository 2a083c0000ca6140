// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arcana"

var (
	readingsGranted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "readings_granted_total",
		Help:      "Daily readings granted to journeys.",
	})

	oracleRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_requests_total",
			Help:      "Completion calls by outcome (ok, empty, error).",
		},
		[]string{"outcome"},
	)

	oracleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "oracle_duration_seconds",
		Help:      "Latency of completion calls.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
	})

	dawnNotices = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dawn_notices_total",
			Help:      "New-day notices by delivery channel (dm, webhook, none, failed).",
		},
		[]string{"channel"},
	)

	activeJourneys = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "journeys_active",
		Help:      "Begun journeys seen by the last recompute tick.",
	})
)

// Oracle outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

func ObserveOracle(outcome string, elapsed time.Duration) {
	oracleRequests.WithLabelValues(outcome).Inc()
	oracleDuration.Observe(elapsed.Seconds())
}

func ReadingGranted() { readingsGranted.Inc() }

func DawnNotice(channel string) { dawnNotices.WithLabelValues(channel).Inc() }

func SetActiveJourneys(n int) { activeJourneys.Set(float64(n)) }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
