package handler

import (
	"net/http"

	"github.com/r2clabs/bulkstudy/internal/api/response"
	"github.com/r2clabs/bulkstudy/pkg/models"
)

// Feed holds recent notifications.
type Feed interface {
	Recent() []models.Notification
}

// NewNotificationsHandler returns an http.HandlerFunc for GET /api/v1/notifications.
func NewNotificationsHandler(f Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		items := f.Recent()
		response.Collection(w, items, response.PaginationMeta{
			Page:  1,
			Limit: len(items),
			Total: len(items),
		})
	}
}
