package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType ledger event type, also the last token of the subject
type EventType string

const (
	EventMissionCreated    EventType = "mission_created"
	EventMissionPaused     EventType = "mission_paused"
	EventMissionResumed    EventType = "mission_resumed"
	EventMissionCancelled  EventType = "mission_cancelled"
	EventSubmissionCreated EventType = "submission_created"
	EventSubmissionUpdated EventType = "submission_updated"
	EventParticipantPaid   EventType = "participant_paid"
	EventStakeSlashed      EventType = "stake_slashed"
	EventTreasurySet       EventType = "treasury_set"
)

// LedgerEvent notification emitted after a committed engine invocation
type LedgerEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	CorrelationID string    `json:"correlation_id"` // shared by every event of one invocation
	MissionID     uint64    `json:"mission_id,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	Hunter        string    `json:"hunter,omitempty"`
	Token         string    `json:"token,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Refunded      int64     `json:"refunded,omitempty"` // stake or pool refunds
	Detail        string    `json:"detail,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewLedgerEvent stamps a new event with a fresh id
func NewLedgerEvent(eventType EventType, correlationID string) LedgerEvent {
	return LedgerEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
	}
}

// Publisher delivers ledger events
type Publisher interface {
	Publish(ctx context.Context, event LedgerEvent) error
}

// NoopPublisher drops every event; used when NATS is not configured
type NoopPublisher struct{}

// Publish does nothing
func (NoopPublisher) Publish(context.Context, LedgerEvent) error { return nil }

// MemoryPublisher keeps published events in order, for tests and local runs
type MemoryPublisher struct {
	mu     sync.Mutex
	events []LedgerEvent
	Err    error // returned by Publish when set
}

// Publish records the event unless Err is set
func (p *MemoryPublisher) Publish(_ context.Context, event LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of the recorded events
func (p *MemoryPublisher) Events() []LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]LedgerEvent(nil), p.events...)
}

// Types returns the recorded event types in order
func (p *MemoryPublisher) Types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]EventType, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}
