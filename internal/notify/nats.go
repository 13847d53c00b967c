package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/r2clabs/bulkstudy/pkg/models"
)

// NATSNotifier publishes notifications as JSON on a subject.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
}

// ConnectNATS dials url and returns a notifier publishing on subject.
func ConnectNATS(url, subject string) (*NATSNotifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("r2c-bulkstudy"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewNATSNotifier(nc, subject), nil
}

// NewNATSNotifier publishes through an existing connection.
func NewNATSNotifier(nc *nats.Conn, subject string) *NATSNotifier {
	return &NATSNotifier{nc: nc, subject: subject}
}

func (n *NATSNotifier) Notify(_ context.Context, note models.Notification) error {
	b, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.nc.Publish(n.subject, b); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (n *NATSNotifier) Close() {
	if n.nc != nil {
		_ = n.nc.Drain()
	}
}

var _ Notifier = (*NATSNotifier)(nil)
