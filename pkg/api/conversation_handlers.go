package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantdesk/pkg/conversations"
	"github.com/platinummonkey/tenantdesk/pkg/httputil"
	"github.com/platinummonkey/tenantdesk/pkg/rbac"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// conversationAccess is held by anyone working in the workspace
var conversationAccess = rbac.Require(rbac.WorkspaceMember, rbac.WorkspaceAdmin, rbac.AccountAdmin)

// ConversationHandlers handles conversation requests
type ConversationHandlers struct {
	machine      *conversations.StateMachine
	guard        *rbac.Guard
	inboundLimit func(http.Handler) http.Handler
}

// NewConversationHandlers creates ConversationHandlers
func NewConversationHandlers(machine *conversations.StateMachine, guard *rbac.Guard) *ConversationHandlers {
	return &ConversationHandlers{machine: machine, guard: guard}
}

// WithInboundLimit rate limits the inbound ingestion route. The limit
// applies after authorization, so rejected callers never spend a
// workspace's budget.
func (h *ConversationHandlers) WithInboundLimit(mw func(http.Handler) http.Handler) *ConversationHandlers {
	h.inboundLimit = mw
	return h
}

// RegisterRoutes registers conversation routes
func (h *ConversationHandlers) RegisterRoutes(router *mux.Router) {
	route := func(method, path, op string, fn http.HandlerFunc) {
		router.Handle(path, h.guard.ProtectFunc(workspaceScope(op, conversationAccess), fn)).Methods(method)
	}
	inbound := http.Handler(http.HandlerFunc(h.Inbound))
	if h.inboundLimit != nil {
		inbound = h.inboundLimit(inbound)
	}

	route(http.MethodPost, "/conversations", "conversations.open", h.Open)
	route(http.MethodGet, "/conversations", "conversations.list", h.List)
	route(http.MethodGet, "/conversations/{conversation_id}", "conversations.get", h.Get)
	route(http.MethodPost, "/conversations/{conversation_id}/state", "conversations.set_state", h.SetState)
	route(http.MethodPost, "/conversations/{conversation_id}/assign", "conversations.assign", h.Assign)
	route(http.MethodPost, "/conversations/{conversation_id}/unassign", "conversations.unassign", h.Unassign)
	route(http.MethodGet, "/conversations/{conversation_id}/assignment", "conversations.assignment", h.Assignment)
	router.Handle("/conversations/{conversation_id}/inbound",
		h.guard.Protect(workspaceScope("conversations.inbound", conversationAccess), inbound)).Methods(http.MethodPost)
	route(http.MethodGet, "/conversations/{conversation_id}/messages", "conversations.messages", h.Messages)
	route(http.MethodPost, "/conversations/{conversation_id}/messages", "conversations.reply", h.Reply)
}

// SetStateRequest is the body of POST .../state
type SetStateRequest struct {
	Status string `json:"status"`
}

// AssignRequest is the body of POST .../assign
type AssignRequest struct {
	UserID string `json:"user_id"`
}

// MessageRequest is the body of POST .../inbound and .../messages.
// AuthorID is only read for inbound messages; replies are authored by the
// caller.
type MessageRequest struct {
	AuthorID string `json:"author_id,omitempty"`
	Body     string `json:"body"`
}

// InboundResponse carries the normalized conversation and the stored message
type InboundResponse struct {
	Conversation *conversations.Conversation `json:"conversation"`
	Message      *conversations.Message      `json:"message"`
}

// AssignmentResponse is the body of GET .../assignment
type AssignmentResponse struct {
	AssignedUserID *string `json:"assigned_user_id"`
}

func scope(r *http.Request) conversations.Scope {
	return conversations.ScopeOf(tenancy.TenantContextFrom(r.Context()))
}

func conversationID(r *http.Request) string {
	return mux.Vars(r)["conversation_id"]
}

// Open creates a conversation in Todo
func (h *ConversationHandlers) Open(w http.ResponseWriter, r *http.Request) {
	conv, err := h.machine.Open(r.Context(), scope(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteCreated(w, conv)
}

// List returns the workspace's conversations, optionally filtered by ?status=
func (h *ConversationHandlers) List(w http.ResponseWriter, r *http.Request) {
	status := httputil.ParseQueryString(r, "status", "")
	list, err := h.machine.List(r.Context(), scope(r), status)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, list)
}

// Get returns one conversation
func (h *ConversationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.machine.Get(r.Context(), conversationID(r), scope(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, conv)
}

// SetState applies an operator transition
func (h *ConversationHandlers) SetState(w http.ResponseWriter, r *http.Request) {
	var req SetStateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	conv, err := h.machine.SetState(r.Context(), conversationID(r), req.Status, scope(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, conv)
}

// Assign sets the assignee without changing status
func (h *ConversationHandlers) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}
	conv, err := h.machine.Assign(r.Context(), conversationID(r), req.UserID, scope(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, conv)
}

// Unassign clears the assignee
func (h *ConversationHandlers) Unassign(w http.ResponseWriter, r *http.Request) {
	conv, err := h.machine.Unassign(r.Context(), conversationID(r), scope(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, conv)
}

// Assignment returns the cached assignee
func (h *ConversationHandlers) Assignment(w http.ResponseWriter, r *http.Request) {
	userID, err := h.machine.Assignment(r.Context(), conversationID(r), scope(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, AssignmentResponse{AssignedUserID: userID})
}

// Inbound records a customer message and normalizes the status
func (h *ConversationHandlers) Inbound(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Body, "body") || !httputil.RequireNonEmpty(w, req.AuthorID, "author_id") {
		return
	}
	conv, msg, err := h.machine.AppendInbound(r.Context(), conversationID(r), scope(r), req.AuthorID, req.Body)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteCreated(w, InboundResponse{Conversation: conv, Message: msg})
}

// Messages returns the thread
func (h *ConversationHandlers) Messages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.machine.Messages(r.Context(), conversationID(r), scope(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, msgs)
}

// Reply stores an agent reply authored by the caller
func (h *ConversationHandlers) Reply(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Body, "body") {
		return
	}
	msg, err := h.machine.AppendOutbound(r.Context(), conversationID(r), scope(r), principal(r).ID, req.Body)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteCreated(w, msg)
}
