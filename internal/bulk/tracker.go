// Package bulk tracks one batch of background document analyses and polls
// the analysis service until every job is terminal.
package bulk

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/r2clabs/bulkstudy/internal/identity"
	"github.com/r2clabs/bulkstudy/internal/jobstore"
	"github.com/r2clabs/bulkstudy/internal/notify"
	"github.com/r2clabs/bulkstudy/pkg/models"
)

// ErrEmptyBatch is returned when a batch would start with no analyses.
var ErrEmptyBatch = errors.New("batch has no analyses")

// statusCheckFailed is stored on jobs whose status request itself failed.
const statusCheckFailed = "Failed to check analysis status"

// StatusChecker asks the analysis service about one analysis.
type StatusChecker interface {
	AnalysisStatus(ctx context.Context, analysisID string) (models.StatusReport, error)
}

// Tracker owns the job array of the current batch. Every mutation swaps in a
// new slice, persists it before returning, and then tells the poller whether
// pending work remains.
type Tracker struct {
	mu     sync.Mutex
	jobs   []models.Job
	store  *jobstore.Store
	poller *Poller
}

// NewTracker loads the persisted batch and starts polling right away if it
// still has pending jobs. ctx bounds the poller's lifetime; call Close to stop it.
func NewTracker(ctx context.Context, store *jobstore.Store, checker StatusChecker, tokens identity.Provider, notifier notify.Notifier, opts ...Option) *Tracker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	t := &Tracker{store: store}
	t.poller = newPoller(ctx, t, checker, tokens, notifier, o)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs = store.Load(ctx)
	if len(t.jobs) > 0 {
		slog.Info("resumed bulk batch", "batch_size", len(t.jobs), "pending", countPending(t.jobs))
	}
	t.poller.ensure(countPending(t.jobs) > 0)
	return t
}

// StartBatch replaces the current batch with one pending job per entry and
// starts polling. Repeated analysis ids collapse to a single job. The batch
// is in effect even when persisting it fails; the error is still returned.
func (t *Tracker) StartBatch(ctx context.Context, entries []models.AnalysisEntry) error {
	jobs := make([]models.Job, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.AnalysisID == "" || seen[e.AnalysisID] {
			continue
		}
		seen[e.AnalysisID] = true
		jobs = append(jobs, models.NewPendingJob(e))
	}
	if len(jobs) == 0 {
		return ErrEmptyBatch
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs = jobs
	err := t.persistLocked(ctx)
	t.poller.metrics.RecordBatchStarted()
	slog.Info("bulk batch started", "batch_size", len(jobs))
	t.poller.ensure(true)
	return err
}

// Jobs returns a copy of the current batch.
func (t *Tracker) Jobs() []models.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.jobs)
}

// TerminalJobs returns the completed and failed jobs in batch order.
func (t *Tracker) TerminalJobs() []models.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		if j.Status.IsTerminal() {
			out = append(out, j)
		}
	}
	return out
}

// Summary counts the current batch by status.
func (t *Tracker) Summary() models.BatchSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return models.Summarize(t.jobs)
}

// ClearAll drops the batch, deletes the persisted slot and stops polling.
func (t *Tracker) ClearAll(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs = []models.Job{}
	t.poller.ensure(false)
	if err := t.store.Clear(ctx); err != nil {
		slog.Error("clearing job store", "error", err)
		return err
	}
	slog.Info("bulk batch cleared")
	return nil
}

// Refresh re-evaluates whether polling should run, for example after the
// user signs in again.
func (t *Tracker) Refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.poller.ensure(countPending(t.jobs) > 0)
}

// Polling reports whether the poller currently has a schedule.
func (t *Tracker) Polling() bool {
	return t.poller.Armed()
}

// Close stops the poller and waits for it to exit.
func (t *Tracker) Close() {
	t.poller.close()
}

// apply merges one cycle's results as a single array replacement. Results
// for jobs that are gone or no longer pending are ignored. It reports the
// resulting summary and whether this merge is the one that finished the batch.
func (t *Tracker) apply(ctx context.Context, results []checkResult) (models.BatchSummary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	before := models.Summarize(t.jobs)
	next := slices.Clone(t.jobs)
	index := make(map[string]int, len(next))
	for i, j := range next {
		index[j.ID] = i
	}

	changed := false
	for _, r := range results {
		i, ok := index[r.id]
		if !ok || !next[i].Status.IsPending() {
			continue
		}
		if merged, ok := merge(next[i], r); ok {
			next[i] = merged
			changed = true
			t.poller.metrics.RecordJobFinished(string(merged.Status))
		}
	}

	if changed {
		t.jobs = next
		if err := t.persistLocked(ctx); err != nil {
			slog.Error("persisting poll results", "error", err)
		}
	}

	after := models.Summarize(t.jobs)
	t.poller.ensure(after.Pending > 0)
	return after, changed && !before.Complete && after.Complete
}

// merge applies one status result to a pending job. ok is false when the
// job stays as it is.
func merge(j models.Job, r checkResult) (models.Job, bool) {
	if r.err != nil {
		if errors.Is(r.err, identity.ErrNoIdentity) {
			return j, false
		}
		msg := statusCheckFailed
		j.Status = models.JobStatusFailed
		j.Error = &msg
		return j, true
	}

	switch outcome := r.report.Outcome(); outcome {
	case models.JobStatusCompleted, models.JobStatusFailed:
		j.Status = outcome
		j.Data = models.CompactRaw(r.report.Data)
		j.Error = r.report.Error
		return j, true
	case models.JobStatusPending, models.JobStatusAnalyzing:
		return j, false
	}
	return j, false
}

func (t *Tracker) persistLocked(ctx context.Context) error {
	return t.store.Save(context.WithoutCancel(ctx), t.jobs)
}

func countPending(jobs []models.Job) int {
	n := 0
	for _, j := range jobs {
		if j.Status.IsPending() {
			n++
		}
	}
	return n
}
