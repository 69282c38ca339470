package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// subjectPrefix namespaces build plane events on the broker.
const subjectPrefix = "buildplane."

// NATSNotifier publishes events to a NATS broker so that other
// replicas and external consumers receive the same fan-out as local
// websocket subscribers.
type NATSNotifier struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSNotifier connects to the broker at url.
func NewNATSNotifier(url string, logger *slog.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("buildplane"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	logger.Info("connected to NATS", "url", url)
	return &NATSNotifier{conn: conn, logger: logger}, nil
}

// Publish sends the event on subject buildplane.<topic>.
func (n *NATSNotifier) Publish(ctx context.Context, topic string, payload any) error {
	msg, err := json.Marshal(event{Topic: topic, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", topic, err)
	}

	if err := n.conn.Publish(subjectPrefix+topic, msg); err != nil {
		return fmt.Errorf("publishing %s event: %w", topic, err)
	}

	return nil
}

// Close drains and closes the broker connection.
func (n *NATSNotifier) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("draining NATS connection: %w", err)
	}
	return nil
}
