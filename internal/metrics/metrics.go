// Package metrics exposes Prometheus counters and histograms for job runs and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nilintel"

// Job outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder owns a private registry so tests and multiple servers never
// collide on the default one.
type Recorder struct {
	registry     *prometheus.Registry
	jobRuns      *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobItems     *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

// New creates a Recorder with all metrics registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	auto := promauto.With(reg)

	return &Recorder{
		registry: reg,
		jobRuns: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "runs_total",
			Help:      "Batch job runs by job name and outcome",
		}, []string{"job", "outcome"}),
		jobDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Wall time of batch job runs",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		jobItems: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "items_total",
			Help:      "Units handled by batch jobs, e.g. ingested records or upserted matches",
		}, []string{"job", "kind"}),
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP API requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// ObserveJob records one run of job that started at start.
func (r *Recorder) ObserveJob(job string, start time.Time, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	r.jobRuns.WithLabelValues(job, outcome).Inc()
	r.jobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}

// AddItems adds n units of kind to job's item counter. Non-positive n is ignored.
func (r *Recorder) AddItems(job, kind string, n int64) {
	if n <= 0 {
		return
	}
	r.jobItems.WithLabelValues(job, kind).Add(float64(n))
}

// ObserveRequest counts one HTTP request.
func (r *Recorder) ObserveRequest(route string, code int) {
	r.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
