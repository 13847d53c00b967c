package bulk

import (
	"time"

	"github.com/r2clabs/bulkstudy/internal/metrics"
)

// Option configures a Tracker and its poller.
type Option func(*options)

type options struct {
	interval       time.Duration
	requestTimeout time.Duration
	concurrency    int
	retryTokens    bool
	link           string
	metrics        *metrics.Metrics
	newTicker      func(time.Duration) Ticker
}

func defaultOptions() options {
	return options{
		interval:       10 * time.Second,
		requestTimeout: 30 * time.Second,
		link:           "/create-study/bulk",
		newTicker:      newTimeTicker,
	}
}

// WithInterval sets the time between cycle starts.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithRequestTimeout bounds each status request.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithConcurrency caps parallel status requests within a cycle. By default
// every pending job is checked at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithNotifyLink sets the link attached to the completion notification.
func WithNotifyLink(link string) Option {
	return func(o *options) { o.link = link }
}

// WithMetrics records poller activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTokenRetry keeps the schedule running when no token can be fetched and
// skips that cycle instead. Use it when tokens come from a configured source
// that can recover on its own, not from a user sign-in.
func WithTokenRetry() Option {
	return func(o *options) { o.retryTokens = true }
}

// WithTicker replaces the ticker used between cycles.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(o *options) {
		if fn != nil {
			o.newTicker = fn
		}
	}
}

// Ticker delivers the poller's schedule.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func newTimeTicker(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }
