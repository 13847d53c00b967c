package notify

import (
	"context"
	"sync"

	"github.com/r2clabs/bulkstudy/pkg/models"
)

// Feed keeps the most recent notifications in memory for the web client to
// pick up.
type Feed struct {
	mu    sync.Mutex
	items []models.Notification
	size  int
}

// NewFeed returns a feed holding at most size notifications. size < 1 means 1.
func NewFeed(size int) *Feed {
	if size < 1 {
		size = 1
	}
	return &Feed{size: size}
}

func (f *Feed) Notify(_ context.Context, n models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	if over := len(f.items) - f.size; over > 0 {
		f.items = append([]models.Notification(nil), f.items[over:]...)
	}
	return nil
}

// Recent returns the stored notifications, newest first.
func (f *Feed) Recent() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Notification, len(f.items))
	for i, n := range f.items {
		out[len(f.items)-1-i] = n
	}
	return out
}

var _ Notifier = (*Feed)(nil)
