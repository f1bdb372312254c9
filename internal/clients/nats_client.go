package clients

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Quid-proquo/Quid/internal/config"
	"github.com/Quid-proquo/Quid/internal/metrics"

	"github.com/nats-io/nats.go"
)

// NATSClient JetStream connection used to publish ledger events
type NATSClient struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	streamName    string
	subjectPrefix string
}

// NewNATSClient connects and makes sure the ledger stream exists
func NewNATSClient(cfg config.NATSConfig) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}
	log.Printf("🔌 Connecting to NATS %s (timeout %v)", cfg.URL, connectTimeout)

	conn, err := nats.Connect(cfg.URL,
		nats.Name("quid-escrow"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ NATS disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ NATS reconnected to %s", nc.ConnectedUrl())
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		metrics.NATSConnectionStatus.Set(0)
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &NATSClient{
		conn:          conn,
		js:            js,
		streamName:    cfg.Stream,
		subjectPrefix: cfg.SubjectPrefix,
	}
	if err := client.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}

	metrics.NATSConnectionStatus.Set(1)
	return client, nil
}

// ensureStream creates the ledger stream when it does not exist yet
func (c *NATSClient) ensureStream() error {
	_, err := c.js.StreamInfo(c.streamName)
	if err == nil {
		log.Printf("Stream %s already exists", c.streamName)
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to read stream %s: %w", c.streamName, err)
	}

	_, err = c.js.AddStream(&nats.StreamConfig{
		Name:      c.streamName,
		Subjects:  []string{c.subjectPrefix + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    30 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", c.streamName, err)
	}

	log.Printf("✅ Stream %s created", c.streamName)
	return nil
}

// SubjectPrefix prefix of every ledger subject
func (c *NATSClient) SubjectPrefix() string {
	return c.subjectPrefix
}

// Publish publishes to JetStream; msgID lets the server drop duplicates
func (c *NATSClient) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	_, err := c.js.Publish(subject, data, nats.Context(ctx), nats.MsgId(msgID))
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection
func (c *NATSClient) Close() {
	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
	}
}
