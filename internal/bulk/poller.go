package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/r2clabs/bulkstudy/internal/identity"
	"github.com/r2clabs/bulkstudy/internal/metrics"
	"github.com/r2clabs/bulkstudy/internal/notify"
	"github.com/r2clabs/bulkstudy/pkg/models"
)

// Poller is idle until the tracker reports pending work, then runs one cycle
// immediately and another every interval until nothing is pending, nobody is
// signed in, or it is disarmed. With WithTokenRetry a missing token skips the
// cycle instead of ending the schedule.
//
// Disarming cancels the schedule only. A cycle already in flight finishes and
// its results are merged into whatever jobs are still pending.
type Poller struct {
	tracker  *Tracker
	checker  StatusChecker
	tokens   identity.Provider
	notifier notify.Notifier
	metrics  *metrics.Metrics

	interval       time.Duration
	requestTimeout time.Duration
	concurrency    int
	retryTokens    bool
	link           string
	newTicker      func(time.Duration) Ticker

	// base outlives individual schedules; it is cancelled only by close.
	base       context.Context
	baseCancel context.CancelFunc

	// cycleMu keeps cycles from overlapping across re-arms.
	cycleMu sync.Mutex

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc // non-nil while armed
	closed bool
	wg     sync.WaitGroup
}

type checkResult struct {
	id     string
	report models.StatusReport
	err    error
}

func newPoller(ctx context.Context, t *Tracker, checker StatusChecker, tokens identity.Provider, notifier notify.Notifier, o options) *Poller {
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &Poller{
		tracker:        t,
		checker:        checker,
		tokens:         tokens,
		notifier:       notifier,
		metrics:        o.metrics,
		interval:       o.interval,
		requestTimeout: o.requestTimeout,
		concurrency:    o.concurrency,
		retryTokens:    o.retryTokens,
		link:           o.link,
		newTicker:      o.newTicker,
		base:           base,
		baseCancel:     cancel,
	}
	if ctx.Done() != nil {
		context.AfterFunc(ctx, p.close)
	}
	return p
}

// Armed reports whether a schedule is running.
func (p *Poller) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// ensure arms the poller when there is pending work and no schedule, and
// disarms it when there is none.
func (p *Poller) ensure(hasPending bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case hasPending && p.cancel == nil && !p.closed:
		p.gen++
		ctx, cancel := context.WithCancel(p.base)
		p.cancel = cancel
		p.metrics.SetArmed(true)
		slog.Debug("poller armed", "interval", p.interval)

		p.wg.Add(1)
		go func(gen uint64) {
			defer p.wg.Done()
			p.run(ctx, gen)
		}(p.gen)
	case !hasPending && p.cancel != nil:
		p.disarmLocked()
	}
}

// disarm stops the schedule started as generation gen, if it is still current.
func (p *Poller) disarm(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen && p.cancel != nil {
		p.disarmLocked()
	}
}

func (p *Poller) disarmLocked() {
	p.cancel()
	p.cancel = nil
	p.metrics.SetArmed(false)
	slog.Debug("poller disarmed")
}

func (p *Poller) close() {
	p.mu.Lock()
	p.closed = true
	if p.cancel != nil {
		p.disarmLocked()
	}
	p.mu.Unlock()

	p.baseCancel()
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, gen uint64) {
	ticker := p.newTicker(p.interval)
	defer ticker.Stop()

	for {
		if !p.cycle(ctx, gen) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
	}
}

// cycle runs one poll pass. It returns false when the schedule should end.
func (p *Poller) cycle(ctx context.Context, gen uint64) bool {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	if ctx.Err() != nil {
		return false
	}

	jobs := p.tracker.Jobs()
	var pending []models.Job
	for _, j := range jobs {
		if j.Status.IsPending() {
			pending = append(pending, j)
		}
	}
	if len(pending) == 0 {
		p.disarm(gen)
		return false
	}

	if _, err := p.tokens.Token(p.base); err != nil {
		if p.retryTokens {
			slog.Warn("skipping poll cycle", "reason", err, "pending", len(pending))
			return ctx.Err() == nil
		}
		slog.Info("pausing bulk polling", "reason", err, "pending", len(pending))
		p.disarm(gen)
		return false
	}

	p.metrics.RecordCycle()
	results := p.check(pending)
	if p.base.Err() != nil {
		return false
	}

	summary, finished := p.tracker.apply(p.base, results)
	if finished {
		p.announce(summary)
	}
	return ctx.Err() == nil
}

// check sends one status request per pending job and waits for all of them.
func (p *Poller) check(pending []models.Job) []checkResult {
	results := make([]checkResult, len(pending))

	var g errgroup.Group
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}
	for i, j := range pending {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(p.base, p.requestTimeout)
			defer cancel()

			report, err := p.checker.AnalysisStatus(ctx, j.AnalysisID)
			results[i] = checkResult{id: j.ID, report: report, err: err}
			p.recordCheck(j, report, err)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Poller) recordCheck(j models.Job, report models.StatusReport, err error) {
	switch {
	case errors.Is(err, identity.ErrNoIdentity):
		p.metrics.RecordStatusCheck("no_identity")
	case err != nil:
		slog.Warn("analysis status check failed",
			"job_id", j.ID,
			"analysis_id", j.AnalysisID,
			"error", err,
		)
		p.metrics.RecordStatusCheck("error")
	case report.Outcome().IsTerminal():
		p.metrics.RecordStatusCheck(string(report.Outcome()))
	default:
		p.metrics.RecordStatusCheck("in_progress")
	}
}

func (p *Poller) announce(s models.BatchSummary) {
	severity := models.SeveritySuccess
	if s.Failed > 0 {
		severity = models.SeverityWarning
	}
	msg := fmt.Sprintf("Bulk analysis complete: %d succeeded, %d failed.", s.Completed, s.Failed)
	slog.Info("bulk batch complete", "completed", s.Completed, "failed", s.Failed)

	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(p.base, models.NewNotification(msg, severity, p.link)); err != nil {
		slog.Error("sending completion notification", "error", err)
	}
}
