package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/Quid-proquo/Quid/internal/clients"
	"github.com/Quid-proquo/Quid/internal/config"
	"github.com/Quid-proquo/Quid/internal/metrics"
)

// natsSender is the part of clients.NATSClient the publisher needs
type natsSender interface {
	Publish(ctx context.Context, subject string, data []byte, msgID string) error
}

// NATSPublisher publishes ledger events to JetStream subjects <prefix>.<event_type>
type NATSPublisher struct {
	client natsSender
	prefix string
}

// NewNATSPublisher creates a publisher over an open client
func NewNATSPublisher(client *clients.NATSClient) *NATSPublisher {
	return &NATSPublisher{client: client, prefix: client.SubjectPrefix()}
}

// Subject returns the subject an event type is published on
func (p *NATSPublisher) Subject(eventType EventType) string {
	return fmt.Sprintf("%s.%s", p.prefix, eventType)
}

// Publish marshals the event and publishes it with its id as the dedup key
func (p *NATSPublisher) Publish(ctx context.Context, event LedgerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}
	if err := p.client.Publish(ctx, p.Subject(event.Type), data, event.ID); err != nil {
		metrics.LedgerEventsFailed.WithLabelValues(string(event.Type)).Inc()
		return err
	}
	metrics.LedgerEventsPublished.WithLabelValues(string(event.Type)).Inc()
	return nil
}

var (
	natsClient    *clients.NATSClient
	publisher     Publisher
	publisherOnce sync.Once
	publisherErr  error
)

// InitPublisher builds the process-wide publisher once.
// Without a NATS URL events are dropped by a NoopPublisher.
func InitPublisher(cfg config.NATSConfig) (Publisher, error) {
	publisherOnce.Do(func() {
		if cfg.URL == "" {
			log.Println("NATS not configured, ledger events will not be published")
			publisher = NoopPublisher{}
			return
		}

		client, err := clients.NewNATSClient(cfg)
		if err != nil {
			publisherErr = fmt.Errorf("failed to create NATS client: %w", err)
			return
		}
		natsClient = client
		publisher = NewNATSPublisher(client)
		log.Printf("✅ NATS ledger event publisher initialized")
	})
	return publisher, publisherErr
}

// ClosePublisher closes the NATS connection opened by InitPublisher
func ClosePublisher() {
	if natsClient != nil {
		natsClient.Close()
	}
}
