package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity mirrors the snackbar variants the web client understands.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Notification is a one-shot user-facing message.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNotification stamps a message with an id and creation time.
func NewNotification(message string, severity Severity, link string) Notification {
	return Notification{
		ID:        uuid.New(),
		Message:   message,
		Severity:  severity,
		Link:      link,
		CreatedAt: time.Now().UTC(),
	}
}
