package conversations

import (
	"context"
	"time"

	"github.com/platinummonkey/tenantdesk/pkg/events"
)

const publishTimeout = 5 * time.Second

// ChangePayload is the data of every conversation event
type ChangePayload struct {
	ConversationID string  `json:"conversation_id"`
	WorkspaceID    string  `json:"workspace_id"`
	From           Status  `json:"from,omitempty"`
	To             Status  `json:"to,omitempty"`
	AssignedUserID *string `json:"assigned_user_id,omitempty"`
	MessageID      string  `json:"message_id,omitempty"`
}

func (m *StateMachine) publish(ctx context.Context, kind events.Kind, p ChangePayload) {
	topic := events.ConversationTopic(p.WorkspaceID)
	ev, err := events.NewEvent(kind, topic, p, m.clock.Now())
	if err != nil {
		m.logger.WithError(err).Error("failed to build event")
		return
	}
	m.tasks.Go(ctx, publishTimeout, "publish "+string(kind), func(ctx context.Context) error {
		err := m.publisher.Publish(ctx, topic, ev)
		if m.metrics != nil {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.metrics.EventsPublishedTotal.WithLabelValues(string(kind), result).Inc()
		}
		return err
	})
}
