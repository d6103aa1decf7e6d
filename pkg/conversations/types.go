package conversations

import (
	"context"
	"time"

	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// Conversation is owned by a workspace. AssignedUserID and Status are
// independent fields.
type Conversation struct {
	ID              string     `json:"id"`
	WorkspaceID     string     `json:"workspace_id"`
	AssignedUserID  *string    `json:"assigned_user_id,omitempty"`
	AssignedAt      *time.Time `json:"assigned_at,omitempty"`
	Status          Status     `json:"status"`
	StatusUpdatedAt time.Time  `json:"status_updated_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Direction tells customer messages from agent replies
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is one entry in a conversation thread
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Direction      Direction `json:"direction"`
	AuthorID       string    `json:"author_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// Scope is the verified workspace a request operates in
type Scope struct {
	AccountID   string
	WorkspaceID string
}

// ScopeOf extracts the account and workspace of a resolved context
func ScopeOf(tc *tenancy.TenantContext) Scope {
	if tc == nil {
		return Scope{}
	}
	return Scope{AccountID: tc.AccountID, WorkspaceID: tc.WorkspaceID}
}

// Store persists conversations. Implementations must be safe for
// concurrent use.
type Store interface {
	// Create inserts c.
	Create(ctx context.Context, c *Conversation) error

	// Get returns the conversation or an error matching
	// tenancy.ErrEntityNotFound.
	Get(ctx context.Context, id string) (*Conversation, error)

	// CompareAndSetStatus writes to and at only if the persisted status
	// still equals from; otherwise ErrConcurrentModification.
	CompareAndSetStatus(ctx context.Context, id string, from, to Status, at time.Time) (*Conversation, error)

	// SetAssignee sets or clears (userID nil) the assignee. Status is
	// never touched.
	SetAssignee(ctx context.Context, id string, userID *string, at time.Time) (*Conversation, error)

	// ListByWorkspace returns the workspace's conversations, newest first,
	// filtered by status unless status is empty.
	ListByWorkspace(ctx context.Context, workspaceID string, status Status) ([]Conversation, error)

	// AppendMessage stores msg.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessages returns the thread oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}
