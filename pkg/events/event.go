package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names what happened
type Kind string

const (
	KindStatusChanged   Kind = "conversation.status_changed"
	KindAssigned        Kind = "conversation.assigned"
	KindUnassigned      Kind = "conversation.unassigned"
	KindMessageReceived Kind = "conversation.message_received"
)

// Event is the envelope delivered to subscribers
type Event struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Topic      string          `json:"topic"`
	Origin     string          `json:"origin,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// NewEvent encodes data into a fresh envelope
func NewEvent(kind Kind, topic string, data interface{}, at time.Time) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Topic:      topic,
		OccurredAt: at,
		Data:       raw,
	}, nil
}

// ConversationTopic is the topic every conversation event of a workspace
// is published on.
func ConversationTopic(workspaceID string) string {
	return "workspace:" + workspaceID + ":conversations"
}

// Publisher fans an event out to real-time subscribers. Publishing is
// best effort; callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev Event) error
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error { return nil }

// Multi publishes to every publisher and joins their errors
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, topic string, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
