package bulk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/r2clabs/bulkstudy/internal/identity"
	"github.com/r2clabs/bulkstudy/internal/jobstore"
	"github.com/r2clabs/bulkstudy/internal/notify"
	"github.com/r2clabs/bulkstudy/pkg/models"
	"github.com/stretchr/testify/require"
)

var errTransport = errors.New("connection refused")

type reply struct {
	report models.StatusReport
	err    error
}

// fakeChecker answers status requests from per-id queues. The last reply of
// a queue repeats; ids without replies stay pending.
type fakeChecker struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   map[string]int
	gate    chan struct{}
	started chan string
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{replies: map[string][]reply{}, calls: map[string]int{}}
}

func (f *fakeChecker) on(id string, rs ...reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[id] = append(f.replies[id], rs...)
}

func (f *fakeChecker) AnalysisStatus(ctx context.Context, id string) (models.StatusReport, error) {
	f.mu.Lock()
	f.calls[id]++
	gate, started := f.gate, f.started
	var r reply
	if q := f.replies[id]; len(q) > 0 {
		r = q[0]
		if len(q) > 1 {
			f.replies[id] = q[1:]
		}
	} else {
		r = reply{report: models.StatusReport{Status: "pending"}}
	}
	f.mu.Unlock()

	if started != nil {
		started <- id
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.StatusReport{}, ctx.Err()
		}
	}
	return r.report, r.err
}

func (f *fakeChecker) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeChecker) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func completed(data string) reply {
	return reply{report: models.StatusReport{Status: "completed", Data: []byte(data)}}
}

func failed(msg string) reply {
	return reply{report: models.StatusReport{Status: "failed", Error: &msg}}
}

func inProgress(status string) reply {
	return reply{report: models.StatusReport{Status: status}}
}

func transportError() reply {
	return reply{err: errTransport}
}

// manualTicker only fires when the test says so.
type manualTicker struct{ ch chan time.Time }

func newManualTicker() *manualTicker { return &manualTicker{ch: make(chan time.Time)} }

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

// tick fires once and waits until the poller loop has taken it, which also
// means the previous cycle has been merged.
func (m *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not wait for a tick")
	}
}

type harness struct {
	slot    *jobstore.MemorySlot
	store   *jobstore.Store
	checker *fakeChecker
	session *identity.Session
	feed    *notify.Feed
	ticker  *manualTicker
	tracker *Tracker
}

func newHarness(t *testing.T, seed string) *harness {
	t.Helper()
	h := &harness{
		slot:    jobstore.NewMemorySlot(),
		checker: newFakeChecker(),
		session: identity.NewSession(nil),
		feed:    notify.NewFeed(10),
		ticker:  newManualTicker(),
	}
	h.session.SignIn("token", 0)
	if seed != "" {
		require.NoError(t, h.slot.Save(context.Background(), []byte(seed)))
	}
	h.store = jobstore.New(h.slot)
	return h
}

func (h *harness) start(t *testing.T) *Tracker {
	t.Helper()
	h.tracker = NewTracker(context.Background(), h.store, h.checker, h.session, h.feed,
		WithTicker(func(time.Duration) Ticker { return h.ticker }),
		WithRequestTimeout(time.Second),
		WithNotifyLink("/create-study/bulk"),
	)
	t.Cleanup(h.tracker.Close)
	return h.tracker
}

func (h *harness) persisted(t *testing.T) []models.Job {
	t.Helper()
	return h.store.Load(context.Background())
}

func entries(ids ...string) []models.AnalysisEntry {
	out := make([]models.AnalysisEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.AnalysisEntry{AnalysisID: id, OriginalName: id + ".pdf"})
	}
	return out
}

func statusOf(tr *Tracker, id string) models.JobStatus {
	for _, j := range tr.Jobs() {
		if j.ID == id {
			return j.Status
		}
	}
	return ""
}

const eventually = 2 * time.Second
const tickEvery = 5 * time.Millisecond
