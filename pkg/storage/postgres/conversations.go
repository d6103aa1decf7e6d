package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantdesk/pkg/conversations"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

const conversationColumns = `id, workspace_id, assigned_user_id, assigned_at, status, status_updated_at, created_at`

func scanConversation(row scanner) (*conversations.Conversation, error) {
	var (
		c          conversations.Conversation
		assignee   sql.NullString
		assignedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.WorkspaceID, &assignee, &assignedAt, &c.Status, &c.StatusUpdatedAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	if assignee.Valid {
		c.AssignedUserID = &assignee.String
	}
	if assignedAt.Valid {
		c.AssignedAt = &assignedAt.Time
	}
	return &c, nil
}

func conversationNotFound(id string) error {
	return &tenancy.NotFoundError{Level: "conversation", ID: id}
}

// Create inserts a conversation
func (s *Store) Create(ctx context.Context, c *conversations.Conversation) error {
	_, err := s.conns.Primary().ExecContext(ctx,
		`INSERT INTO conversations (`+conversationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.WorkspaceID, c.AssignedUserID, c.AssignedAt, c.Status, c.StatusUpdatedAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

// Get reads from the primary so a following conditional update compares
// against the latest committed status.
func (s *Store) Get(ctx context.Context, id string) (*conversations.Conversation, error) {
	c, err := scanConversation(s.conns.Primary().QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversationNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	return c, nil
}

// CompareAndSetStatus updates the status only while it still equals from.
// Zero rows means either the conversation is gone or another writer won.
func (s *Store) CompareAndSetStatus(ctx context.Context, id string, from, to conversations.Status, at time.Time) (*conversations.Conversation, error) {
	c, err := scanConversation(s.conns.Primary().QueryRowContext(ctx,
		`UPDATE conversations SET status = $3, status_updated_at = $4
		 WHERE id = $1 AND status = $2
		 RETURNING `+conversationColumns,
		id, from, to, at))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update conversation %s: %w", id, err)
	}

	var exists bool
	if err := s.conns.Primary().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check conversation %s: %w", id, err)
	}
	if !exists {
		return nil, conversationNotFound(id)
	}
	return nil, conversations.ErrConcurrentModification
}

// SetAssignee sets or clears the assignee
func (s *Store) SetAssignee(ctx context.Context, id string, userID *string, at time.Time) (*conversations.Conversation, error) {
	var assignedAt *time.Time
	if userID != nil {
		assignedAt = &at
	}
	c, err := scanConversation(s.conns.Primary().QueryRowContext(ctx,
		`UPDATE conversations SET assigned_user_id = $2, assigned_at = $3
		 WHERE id = $1
		 RETURNING `+conversationColumns,
		id, userID, assignedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversationNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to assign conversation %s: %w", id, err)
	}
	return c, nil
}

// ListByWorkspace lists conversations newest first
func (s *Store) ListByWorkspace(ctx context.Context, workspaceID string, status conversations.Status) ([]conversations.Conversation, error) {
	rows, err := s.conns.Replica().QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE workspace_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC, id`,
		workspaceID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []conversations.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// AppendMessage inserts a message
func (s *Store) AppendMessage(ctx context.Context, msg *conversations.Message) error {
	_, err := s.conns.Primary().ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, direction, author_id, body, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.Direction, msg.AuthorID, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListMessages returns a thread oldest first
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]conversations.Message, error) {
	rows, err := s.conns.Replica().QueryContext(ctx,
		`SELECT id, conversation_id, direction, author_id, body, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY created_at, id`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []conversations.Message
	for rows.Next() {
		var m conversations.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.AuthorID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
