// Package metrics holds the Prometheus collectors for bulk analysis.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the poller and the submission flow.
// A nil *Metrics is valid and records nothing.
//
// Metrics:
//   - r2c_poll_cycles_total - poll cycles run
//   - r2c_status_checks_total{outcome} - status checks by outcome
//   - r2c_jobs_finished_total{status} - jobs that reached a terminal status
//   - r2c_poller_armed - 1 while the poller has a schedule
//   - r2c_batches_started_total - batches started
//   - r2c_study_submissions_total{outcome} - create-study calls by outcome
type Metrics struct {
	PollCycles       prometheus.Counter
	StatusChecks     *prometheus.CounterVec
	JobsFinished     *prometheus.CounterVec
	PollerArmed      prometheus.Gauge
	BatchesStarted   prometheus.Counter
	StudySubmissions *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PollCycles: f.NewCounter(prometheus.CounterOpts{
			Name: "r2c_poll_cycles_total",
			Help: "Total number of poll cycles run",
		}),
		StatusChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "r2c_status_checks_total",
			Help: "Total number of analysis status checks",
		}, []string{"outcome"}), // "completed", "failed", "in_progress", "error"
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "r2c_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal status",
		}, []string{"status"}),
		PollerArmed: f.NewGauge(prometheus.GaugeOpts{
			Name: "r2c_poller_armed",
			Help: "Whether the poller currently has a schedule",
		}),
		BatchesStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "r2c_batches_started_total",
			Help: "Total number of bulk batches started",
		}),
		StudySubmissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "r2c_study_submissions_total",
			Help: "Total number of create-study requests",
		}, []string{"outcome"}), // "success", "failure"
	}
}

func (m *Metrics) RecordCycle() {
	if m == nil {
		return
	}
	m.PollCycles.Inc()
}

func (m *Metrics) RecordStatusCheck(outcome string) {
	if m == nil {
		return
	}
	m.StatusChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordJobFinished(status string) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) SetArmed(armed bool) {
	if m == nil {
		return
	}
	if armed {
		m.PollerArmed.Set(1)
		return
	}
	m.PollerArmed.Set(0)
}

func (m *Metrics) RecordBatchStarted() {
	if m == nil {
		return
	}
	m.BatchesStarted.Inc()
}

func (m *Metrics) RecordSubmission(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.StudySubmissions.WithLabelValues("success").Inc()
		return
	}
	m.StudySubmissions.WithLabelValues("failure").Inc()
}
