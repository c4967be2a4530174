package verification

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"voice_verification/entity"
)

const metricsNamespace = "voice_verification"

type Metrics struct {
	requests  *prometheus.CounterVec
	duration  prometheus.Histogram
	stages    *prometheus.HistogramVec
	scores    prometheus.Histogram
	decisions *prometheus.CounterVec
}

// NewMetrics creates the pipeline collectors and registers them with reg
// when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Similarity requests by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "End to end pipeline latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Latency of individual pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2.5, 10),
		}, []string{"stage"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "similarity_score",
			Help:      "Distribution of returned similarity scores.",
			Buckets:   prometheus.LinearBuckets(-1, 0.1, 21),
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decisions_total",
			Help:      "Same/different speaker decisions.",
		}, []string{"is_same"}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.stages, m.scores, m.decisions)
	}
	return m
}

func (m *Metrics) observeRequest(err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = string(entity.KindOf(err))
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeStage(stage string, elapsed time.Duration) {
	m.stages.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) observeResult(res entity.VerificationResult) {
	m.scores.Observe(res.Score)
	if res.IsSame {
		m.decisions.WithLabelValues("true").Inc()
	} else {
		m.decisions.WithLabelValues("false").Inc()
	}
}
