package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/r2clabs/bulkstudy/internal/notify"
	"github.com/r2clabs/bulkstudy/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestNATSNotifier_Publishes(t *testing.T) {
	server := startTestNATSServer(t)

	sub, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	ch := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("r2c.bulk.completed", ch)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	n, err := notify.ConnectNATS(server.ClientURL(), "r2c.bulk.completed")
	require.NoError(t, err)
	defer n.Close()

	sent := models.NewNotification("Bulk analysis complete: 2 succeeded, 0 failed.", models.SeveritySuccess, "/create-study/bulk")
	require.NoError(t, n.Notify(context.Background(), sent))

	select {
	case msg := <-ch:
		var got models.Notification
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, sent.Message, got.Message)
		assert.Equal(t, models.SeveritySuccess, got.Severity)
		assert.Equal(t, "/create-study/bulk", got.Link)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestConnectNATS_Unreachable(t *testing.T) {
	_, err := notify.ConnectNATS("nats://127.0.0.1:1", "x")
	assert.Error(t, err)
}
