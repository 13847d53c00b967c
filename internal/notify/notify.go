// Package notify delivers one-shot user-facing notifications.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/r2clabs/bulkstudy/pkg/models"
)

// Notifier delivers a notification. Callers treat delivery as fire-and-forget:
// an error is logged, never retried.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n models.Notification) error {
	slog.Info("notification",
		"notification_id", n.ID,
		"message", n.Message,
		"severity", n.Severity,
		"link", n.Link,
	)
	return nil
}

// Multi fans a notification out to every notifier. All of them are tried;
// the returned error joins the failures.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, nt := range m {
		if nt == nil {
			continue
		}
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = LogNotifier{}
	_ Notifier = Multi(nil)
)
