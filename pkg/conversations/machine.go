package conversations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tenantdesk/pkg/async"
	"github.com/platinummonkey/tenantdesk/pkg/cache"
	"github.com/platinummonkey/tenantdesk/pkg/clock"
	"github.com/platinummonkey/tenantdesk/pkg/events"
	"github.com/platinummonkey/tenantdesk/pkg/observability"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

const (
	tracerName = "github.com/platinummonkey/tenantdesk/pkg/conversations"

	// levelConversation labels not-found errors for conversations
	levelConversation tenancy.Level = "conversation"
)

// Deps wires a StateMachine. Store and Entities are required.
type Deps struct {
	Store     Store
	Entities  tenancy.EntityStore
	Cache     *cache.Authority
	Publisher events.Publisher
	Tasks     *async.Group
	Clock     clock.Clock
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// StateMachine owns every conversation mutation: status transitions,
// inbound normalization, assignment and messages.
type StateMachine struct {
	store     Store
	entities  tenancy.EntityStore
	cache     *cache.Authority
	publisher events.Publisher
	tasks     *async.Group
	clock     clock.Clock
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer
}

// NewStateMachine creates a StateMachine, defaulting optional deps
func NewStateMachine(d Deps) *StateMachine {
	m := &StateMachine{
		store:     d.Store,
		entities:  d.Entities,
		cache:     d.Cache,
		publisher: d.Publisher,
		tasks:     d.Tasks,
		clock:     d.Clock,
		logger:    d.Logger,
		metrics:   d.Metrics,
		tracer:    otel.Tracer(tracerName),
	}
	if m.logger == nil {
		m.logger = observability.Nop()
	}
	if m.publisher == nil {
		m.publisher = events.Nop{}
	}
	if m.tasks == nil {
		m.tasks = async.NewGroup(m.logger)
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.cache == nil {
		m.cache = cache.NewAuthority(nil)
	}
	return m
}

func notFound(id string) error {
	return &tenancy.NotFoundError{Level: levelConversation, ID: id}
}

// verifyWorkspace re-derives the account of workspaceID from the entity
// store and compares it with the declared account.
func (m *StateMachine) verifyWorkspace(ctx context.Context, scope Scope) error {
	if scope.WorkspaceID == "" {
		return &tenancy.NotFoundError{Level: tenancy.LevelWorkspace}
	}
	accountID, err := m.entities.ParentID(ctx, tenancy.LevelWorkspace, scope.WorkspaceID)
	if err != nil {
		if errors.Is(err, tenancy.ErrEntityNotFound) {
			return &tenancy.NotFoundError{Level: tenancy.LevelWorkspace, ID: scope.WorkspaceID}
		}
		return fmt.Errorf("load workspace %s: %w", scope.WorkspaceID, err)
	}
	if scope.AccountID != "" && accountID != scope.AccountID {
		return &tenancy.ScopeMismatchError{Level: tenancy.LevelAccount, Declared: scope.AccountID, Actual: accountID}
	}
	return nil
}

// load reads the conversation straight from the store and checks it lives
// in scope. A conversation of another workspace is reported as not found.
func (m *StateMachine) load(ctx context.Context, id string, scope Scope) (*Conversation, error) {
	conv, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, tenancy.ErrEntityNotFound) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	if conv.WorkspaceID != scope.WorkspaceID {
		return nil, notFound(id)
	}
	if err := m.verifyWorkspace(ctx, scope); err != nil {
		return nil, err
	}
	return conv, nil
}

// Open creates a new conversation in Todo
func (m *StateMachine) Open(ctx context.Context, scope Scope) (*Conversation, error) {
	if err := m.verifyWorkspace(ctx, scope); err != nil {
		return nil, err
	}
	now := m.clock.Now()
	conv := &Conversation{
		ID:              uuid.NewString(),
		WorkspaceID:     scope.WorkspaceID,
		Status:          StatusTodo,
		StatusUpdatedAt: now,
		CreatedAt:       now,
	}
	if err := m.store.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	m.cache.BumpEpoch(ctx, cache.ConversationsEpochKey(scope.WorkspaceID))
	return conv, nil
}

// Get returns a conversation visible in scope, read through the cache
func (m *StateMachine) Get(ctx context.Context, id string, scope Scope) (*Conversation, error) {
	ws := scope.WorkspaceID
	conv, err := cache.FetchVersioned(ctx, m.cache, cache.KindConversation, cache.ConversationsEpochKey(ws),
		func(epoch int64) string { return cache.ConversationKey(ws, id, epoch) },
		func(ctx context.Context) (*Conversation, error) { return m.store.Get(ctx, id) })
	if err != nil {
		if errors.Is(err, tenancy.ErrEntityNotFound) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	if conv == nil || conv.WorkspaceID != scope.WorkspaceID {
		return nil, notFound(id)
	}
	if err := m.verifyWorkspace(ctx, scope); err != nil {
		return nil, err
	}
	return conv, nil
}

// SetState moves a conversation to newState when the legal table allows
// it. The write is conditional on the status read at the start; losing a
// race yields ErrConcurrentModification.
func (m *StateMachine) SetState(ctx context.Context, id, newState string, scope Scope) (*Conversation, error) {
	ctx, span := m.tracer.Start(ctx, "conversations.SetState", trace.WithAttributes(
		attribute.String("conversation.id", id),
		attribute.String("conversation.target", newState),
	))
	defer span.End()

	conv, err := m.setState(ctx, id, newState, scope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return conv, nil
}

func (m *StateMachine) setState(ctx context.Context, id, newState string, scope Scope) (*Conversation, error) {
	conv, err := m.load(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	to, err := ParseStatus(newState)
	if err != nil {
		m.countTransition(conv.Status, "invalid", "invalid_state")
		return nil, err
	}
	return m.transition(ctx, conv, to, legalTransitions)
}

// transition is the single gate every status change goes through.
func (m *StateMachine) transition(ctx context.Context, conv *Conversation, to Status, rules transitionRules) (*Conversation, error) {
	if !to.Valid() {
		return nil, &InvalidStateError{Value: string(to)}
	}
	from := conv.Status
	if !rules.allows(from, to) {
		m.countTransition(from, to, "illegal")
		return nil, &TransitionError{From: from, To: to}
	}

	updated, err := m.store.CompareAndSetStatus(ctx, conv.ID, from, to, m.clock.Now())
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			m.countTransition(from, to, "conflict")
			if m.metrics != nil {
				m.metrics.ConcurrentConflictsTotal.Inc()
			}
			return nil, err
		}
		return nil, fmt.Errorf("update conversation %s: %w", conv.ID, err)
	}
	m.countTransition(from, to, "ok")

	m.invalidate(ctx, updated)
	m.checkConsistency(ctx, updated)
	m.publish(ctx, events.KindStatusChanged, ChangePayload{
		ConversationID: updated.ID,
		WorkspaceID:    updated.WorkspaceID,
		From:           from,
		To:             to,
		AssignedUserID: updated.AssignedUserID,
	})
	return updated, nil
}

func (m *StateMachine) countTransition(from, to Status, result string) {
	if m.metrics != nil {
		m.metrics.TransitionsTotal.WithLabelValues(string(from), string(to), result).Inc()
	}
}

// invalidate retires the workspace epoch, orphaning its listings and any
// read of this conversation still in flight, and drops the conversation's
// own keys of the retired epoch.
func (m *StateMachine) invalidate(ctx context.Context, conv *Conversation) {
	ws := conv.WorkspaceID
	m.cache.Retire(ctx, cache.KindConversation, cache.ConversationsEpochKey(ws), func(epoch int64) []string {
		return []string{cache.ConversationKey(ws, conv.ID, epoch), cache.AssignmentKey(ws, conv.ID, epoch)}
	})
}

// checkConsistency reports an assignee on a Todo conversation. It neither
// rejects nor repairs the combination.
func (m *StateMachine) checkConsistency(ctx context.Context, conv *Conversation) {
	if conv.AssignedUserID == nil || conv.Status != StatusTodo {
		return
	}
	if m.metrics != nil {
		m.metrics.InvariantViolationsTotal.WithLabelValues("assigned_while_todo").Inc()
	}
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"conversation_id":  conv.ID,
		"workspace_id":     conv.WorkspaceID,
		"assigned_user_id": *conv.AssignedUserID,
	}).Warn("conversation assigned while in todo")
}

// normalizeInbound applies the inbound mapping through the transition
// gate. Self-mappings, unknown statuses and gate rejections are no-ops.
func (m *StateMachine) normalizeInbound(ctx context.Context, conv *Conversation) (*Conversation, error) {
	logger := observability.FromContext(ctx).WithField("conversation_id", conv.ID).WithField("status", string(conv.Status))

	to, ok := InboundTarget(conv.Status)
	if !ok {
		logger.Warn("inbound message on conversation with unknown status; leaving status unchanged")
		return conv, nil
	}
	if to == conv.Status {
		return conv, nil
	}

	updated, err := m.transition(ctx, conv, to, inboundRules)
	if errors.Is(err, ErrIllegalTransition) || errors.Is(err, ErrInvalidState) {
		logger.WithError(err).Warn("inbound normalization rejected; leaving status unchanged")
		return conv, nil
	}
	return updated, err
}

// ApplyInbound normalizes the status as an inbound message would, without
// storing a message. A lost race is retried once against a fresh read.
func (m *StateMachine) ApplyInbound(ctx context.Context, id string, scope Scope) (*Conversation, error) {
	var result *Conversation
	err := RetryOnConflict(ctx, func(ctx context.Context) error {
		conv, err := m.load(ctx, id, scope)
		if err != nil {
			return err
		}
		result, err = m.normalizeInbound(ctx, conv)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AppendInbound normalizes the status and then stores an externally
// originated message.
func (m *StateMachine) AppendInbound(ctx context.Context, id string, scope Scope, authorID, body string) (*Conversation, *Message, error) {
	conv, err := m.ApplyInbound(ctx, id, scope)
	if err != nil {
		return nil, nil, err
	}
	msg, err := m.appendMessage(ctx, conv, DirectionInbound, authorID, body)
	if err != nil {
		return nil, nil, err
	}
	m.publish(ctx, events.KindMessageReceived, ChangePayload{
		ConversationID: conv.ID,
		WorkspaceID:    conv.WorkspaceID,
		MessageID:      msg.ID,
	})
	return conv, msg, nil
}

// AppendOutbound stores an agent reply. Replies never change status.
func (m *StateMachine) AppendOutbound(ctx context.Context, id string, scope Scope, authorID, body string) (*Message, error) {
	conv, err := m.load(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	return m.appendMessage(ctx, conv, DirectionOutbound, authorID, body)
}

func (m *StateMachine) appendMessage(ctx context.Context, conv *Conversation, dir Direction, authorID, body string) (*Message, error) {
	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Direction:      dir,
		AuthorID:       authorID,
		Body:           body,
		CreatedAt:      m.clock.Now(),
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message to %s: %w", conv.ID, err)
	}
	return msg, nil
}

// Messages returns the conversation's thread, oldest first
func (m *StateMachine) Messages(ctx context.Context, id string, scope Scope) ([]Message, error) {
	conv, err := m.load(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	msgs, err := m.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages of %s: %w", conv.ID, err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// Assign sets the assignee. Status is left alone; callers follow up with
// an explicit transition.
func (m *StateMachine) Assign(ctx context.Context, id, userID string, scope Scope) (*Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("assign %s: empty user id", id)
	}
	return m.setAssignee(ctx, id, &userID, scope)
}

// Unassign clears the assignee without touching status
func (m *StateMachine) Unassign(ctx context.Context, id string, scope Scope) (*Conversation, error) {
	return m.setAssignee(ctx, id, nil, scope)
}

func (m *StateMachine) setAssignee(ctx context.Context, id string, userID *string, scope Scope) (*Conversation, error) {
	if _, err := m.load(ctx, id, scope); err != nil {
		return nil, err
	}
	updated, err := m.store.SetAssignee(ctx, id, userID, m.clock.Now())
	if err != nil {
		if errors.Is(err, tenancy.ErrEntityNotFound) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("assign conversation %s: %w", id, err)
	}

	m.invalidate(ctx, updated)
	m.checkConsistency(ctx, updated)

	kind := events.KindAssigned
	if userID == nil {
		kind = events.KindUnassigned
	}
	m.publish(ctx, kind, ChangePayload{
		ConversationID: updated.ID,
		WorkspaceID:    updated.WorkspaceID,
		AssignedUserID: updated.AssignedUserID,
	})
	return updated, nil
}

// Assignment returns the current assignee, or nil, read through the cache
func (m *StateMachine) Assignment(ctx context.Context, id string, scope Scope) (*string, error) {
	conv, err := m.Get(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	ws := conv.WorkspaceID
	return cache.FetchVersioned(ctx, m.cache, cache.KindAssignment, cache.ConversationsEpochKey(ws),
		func(epoch int64) string { return cache.AssignmentKey(ws, conv.ID, epoch) },
		func(ctx context.Context) (*string, error) {
			fresh, err := m.store.Get(ctx, conv.ID)
			if err != nil {
				return nil, err
			}
			return fresh.AssignedUserID, nil
		})
}

// List returns the workspace's conversations, optionally filtered by a
// status string. Results are cached per workspace epoch.
func (m *StateMachine) List(ctx context.Context, scope Scope, status string) ([]Conversation, error) {
	var filter Status
	if status != "" {
		st, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter = st
	}
	if err := m.verifyWorkspace(ctx, scope); err != nil {
		return nil, err
	}

	ws := scope.WorkspaceID
	list, err := cache.FetchVersioned(ctx, m.cache, cache.KindConversationList, cache.ConversationsEpochKey(ws),
		func(epoch int64) string { return cache.ConversationListKey(ws, epoch, string(filter)) },
		func(ctx context.Context) ([]Conversation, error) { return m.store.ListByWorkspace(ctx, ws, filter) })
	if err != nil {
		return nil, fmt.Errorf("list conversations of %s: %w", ws, err)
	}
	if list == nil {
		list = []Conversation{}
	}
	return list, nil
}

// Wait blocks until queued event publishes finish
func (m *StateMachine) Wait(ctx context.Context) error {
	return m.tasks.Wait(ctx)
}
