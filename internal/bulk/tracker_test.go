package bulk

import (
	"context"
	"testing"

	"github.com/r2clabs/bulkstudy/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracker_EmptyStoreIsIdle(t *testing.T) {
	h := newHarness(t, "")
	tr := h.start(t)

	assert.Empty(t, tr.Jobs())
	assert.False(t, tr.Polling())
	assert.Equal(t, 0, h.checker.totalCalls())
}

func TestNewTracker_MalformedStoreIsEmpty(t *testing.T) {
	h := newHarness(t, "not json")
	tr := h.start(t)

	assert.Empty(t, tr.Jobs())
	assert.False(t, tr.Polling())
}

func TestStartBatch_PersistsPendingJobs(t *testing.T) {
	h := newHarness(t, "")
	tr := h.start(t)

	require.NoError(t, tr.StartBatch(context.Background(), entries("a1", "a2")))

	jobs := h.persisted(t)
	require.Len(t, jobs, 2)
	for i, id := range []string{"a1", "a2"} {
		assert.Equal(t, id, jobs[i].ID)
		assert.Equal(t, id, jobs[i].AnalysisID)
		assert.Equal(t, id+".pdf", jobs[i].OriginalName)
		assert.Equal(t, models.JobStatusPending, jobs[i].Status)
		assert.Nil(t, jobs[i].Data)
		assert.Nil(t, jobs[i].Error)
	}
	assert.True(t, tr.Polling())
}

func TestStartBatch_ReplacesPreviousBatch(t *testing.T) {
	h := newHarness(t, `[{"id":"old","analysisId":"old","originalName":"old.pdf","status":"completed"}]`)
	tr := h.start(t)

	require.NoError(t, tr.StartBatch(context.Background(), entries("n1")))

	jobs := tr.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "n1", jobs[0].ID)
}

func TestStartBatch_CollapsesDuplicateIDs(t *testing.T) {
	h := newHarness(t, "")
	tr := h.start(t)

	require.NoError(t, tr.StartBatch(context.Background(), entries("a1", "a1", "a2")))
	assert.Len(t, tr.Jobs(), 2)
}

func TestStartBatch_Empty(t *testing.T) {
	h := newHarness(t, "")
	tr := h.start(t)

	assert.ErrorIs(t, tr.StartBatch(context.Background(), nil), ErrEmptyBatch)
	assert.ErrorIs(t, tr.StartBatch(context.Background(), []models.AnalysisEntry{{OriginalName: "x.pdf"}}), ErrEmptyBatch)
	assert.False(t, tr.Polling())
}

func TestTerminalJobs_InBatchOrder(t *testing.T) {
	h := newHarness(t, `[
		{"id":"a1","analysisId":"a1","originalName":"f1.pdf","status":"failed","error":"bad"},
		{"id":"a2","analysisId":"a2","originalName":"f2.pdf","status":"completed","data":{"title":"T"}},
		{"id":"a3","analysisId":"a3","originalName":"f3.pdf","status":"completed","data":{"title":"U"}}
	]`)
	tr := h.start(t)

	got := tr.TerminalJobs()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a1", "a2", "a3"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.False(t, tr.Polling(), "a fully terminal batch needs no polling")
}

func TestSummary(t *testing.T) {
	h := newHarness(t, `[
		{"id":"a1","analysisId":"a1","originalName":"f1.pdf","status":"failed"},
		{"id":"a2","analysisId":"a2","originalName":"f2.pdf","status":"completed"}
	]`)
	tr := h.start(t)

	s := tr.Summary()
	assert.Equal(t, models.BatchSummary{Total: 2, Completed: 1, Failed: 1, Complete: true}, s)
}

func TestClearAll(t *testing.T) {
	h := newHarness(t, "")
	tr := h.start(t)
	require.NoError(t, tr.StartBatch(context.Background(), entries("a1")))

	require.NoError(t, tr.ClearAll(context.Background()))

	assert.Empty(t, tr.Jobs())
	assert.False(t, tr.Polling())
	_, ok, err := h.slot.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "slot should be deleted")
}

func TestApply_IdempotentMerge(t *testing.T) {
	h := newHarness(t, `[{"id":"a1","analysisId":"a1","originalName":"f1.pdf","status":"pending"}]`)
	h.session.SignOut() // keep the poller out of the way
	tr := h.start(t)

	results := []checkResult{{id: "a1", report: models.StatusReport{Status: "completed", Data: []byte(`{"title":"T"}`)}}}

	_, finished := tr.apply(context.Background(), results)
	assert.True(t, finished)
	first := tr.Jobs()

	_, finished = tr.apply(context.Background(), results)
	assert.False(t, finished, "second identical merge must not finish the batch again")
	assert.Equal(t, first, tr.Jobs())
}

func TestApply_StatusNeverRegresses(t *testing.T) {
	h := newHarness(t, `[
		{"id":"a1","analysisId":"a1","originalName":"f1.pdf","status":"completed","data":{"title":"T"}},
		{"id":"a2","analysisId":"a2","originalName":"f2.pdf","status":"pending"}
	]`)
	h.session.SignOut()
	tr := h.start(t)

	tr.apply(context.Background(), []checkResult{
		{id: "a1", report: models.StatusReport{Status: "pending"}},
		{id: "a1", err: errTransport},
	})

	assert.Equal(t, models.JobStatusCompleted, statusOf(tr, "a1"))
	assert.JSONEq(t, `{"title":"T"}`, string(tr.Jobs()[0].Data))
}

func TestApply_IgnoresUnknownJobs(t *testing.T) {
	h := newHarness(t, `[{"id":"a1","analysisId":"a1","originalName":"f1.pdf","status":"pending"}]`)
	h.session.SignOut()
	tr := h.start(t)

	_, finished := tr.apply(context.Background(), []checkResult{
		{id: "gone", report: models.StatusReport{Status: "completed"}},
	})
	assert.False(t, finished)
	assert.Equal(t, models.JobStatusPending, statusOf(tr, "a1"))
}

func TestApply_TransportErrorFailsJob(t *testing.T) {
	h := newHarness(t, `[{"id":"a1","analysisId":"a1","originalName":"f1.pdf","status":"pending"}]`)
	h.session.SignOut()
	tr := h.start(t)

	tr.apply(context.Background(), []checkResult{{id: "a1", err: errTransport}})

	j := tr.Jobs()[0]
	assert.Equal(t, models.JobStatusFailed, j.Status)
	assert.Equal(t, "Failed to check analysis status", j.ErrorMessage())
}

func TestApply_PersistsSynchronously(t *testing.T) {
	h := newHarness(t, `[{"id":"a1","analysisId":"a1","originalName":"f1.pdf","status":"pending"}]`)
	h.session.SignOut()
	tr := h.start(t)

	tr.apply(context.Background(), []checkResult{{id: "a1", report: models.StatusReport{Status: "failed", Error: ptr("Corrupt PDF")}}})

	jobs := h.persisted(t)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusFailed, jobs[0].Status)
	assert.Equal(t, "Corrupt PDF", jobs[0].ErrorMessage())
}

func TestMerge_InProgressStatusesLeaveJobPending(t *testing.T) {
	j := models.NewPendingJob(models.AnalysisEntry{AnalysisID: "a1", OriginalName: "f.pdf"})
	for _, status := range []string{"pending", "analyzing", "queued", ""} {
		_, changed := merge(j, checkResult{id: "a1", report: models.StatusReport{Status: status}})
		assert.False(t, changed, status)
	}
}

func ptr(s string) *string { return &s }
