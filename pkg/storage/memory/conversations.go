package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/platinummonkey/tenantdesk/pkg/conversations"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

func conversationNotFound(id string) error {
	return &tenancy.NotFoundError{Level: "conversation", ID: id}
}

// Create inserts a conversation
func (s *Store) Create(_ context.Context, c *conversations.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[c.WorkspaceID]; !ok {
		return &tenancy.NotFoundError{Level: tenancy.LevelWorkspace, ID: c.WorkspaceID}
	}
	if _, ok := s.conversations[c.ID]; ok {
		return fmt.Errorf("conversation %s already exists", c.ID)
	}
	s.conversations[c.ID] = *c
	return nil
}

// Get returns a copy of the conversation
func (s *Store) Get(_ context.Context, id string) (*conversations.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, conversationNotFound(id)
	}
	return &c, nil
}

// CompareAndSetStatus writes to only while the status still equals from
func (s *Store) CompareAndSetStatus(_ context.Context, id string, from, to conversations.Status, at time.Time) (*conversations.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, conversationNotFound(id)
	}
	if c.Status != from {
		return nil, conversations.ErrConcurrentModification
	}
	c.Status = to
	c.StatusUpdatedAt = at
	s.conversations[id] = c
	return &c, nil
}

// SetAssignee sets or clears the assignee
func (s *Store) SetAssignee(_ context.Context, id string, userID *string, at time.Time) (*conversations.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, conversationNotFound(id)
	}
	c.AssignedUserID = nil
	c.AssignedAt = nil
	if userID != nil {
		who := *userID
		c.AssignedUserID = &who
		c.AssignedAt = &at
	}
	s.conversations[id] = c
	return &c, nil
}

// ListByWorkspace lists conversations newest first
func (s *Store) ListByWorkspace(_ context.Context, workspaceID string, status conversations.Status) ([]conversations.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []conversations.Conversation
	for _, c := range s.conversations {
		if c.WorkspaceID == workspaceID && (status == "" || c.Status == status) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AppendMessage stores a message
func (s *Store) AppendMessage(_ context.Context, msg *conversations.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return conversationNotFound(msg.ConversationID)
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

// ListMessages returns a copy of the thread
func (s *Store) ListMessages(_ context.Context, conversationID string) ([]conversations.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]conversations.Message(nil), s.messages[conversationID]...), nil
}
