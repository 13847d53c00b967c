package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/r2clabs/bulkstudy/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.RecordCycle()
	m.RecordStatusCheck("completed")
	m.RecordJobFinished("failed")
	m.SetArmed(true)
	m.RecordBatchStarted()
	m.RecordSubmission(true)
	m.RecordSubmission(false)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"r2c_poll_cycles_total",
		"r2c_status_checks_total",
		"r2c_jobs_finished_total",
		"r2c_poller_armed",
		"r2c_batches_started_total",
		"r2c_study_submissions_total",
	}, names)
}

func TestRecorders(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.RecordCycle()
	m.RecordCycle()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollCycles))

	m.RecordStatusCheck("error")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatusChecks.WithLabelValues("error")))

	m.SetArmed(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollerArmed))
	m.SetArmed(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PollerArmed))

	m.RecordSubmission(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StudySubmissions.WithLabelValues("failure")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.RecordCycle()
		m.RecordStatusCheck("completed")
		m.RecordJobFinished("completed")
		m.SetArmed(true)
		m.RecordBatchStarted()
		m.RecordSubmission(true)
	})
}
