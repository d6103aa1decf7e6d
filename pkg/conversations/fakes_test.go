package conversations

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/tenantdesk/pkg/events"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

type fakeStore struct {
	mu       sync.Mutex
	convs    map[string]Conversation
	messages []Message

	// onGet runs before every Get; used to line up racing readers.
	onGet func()
	// afterGet runs once Get has read the row; used to hold a stale read.
	afterGet func()
	// conflicts forces the next n CompareAndSetStatus calls to lose.
	conflicts int
	casCalls  int
	gets      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{convs: make(map[string]Conversation)}
}

func (s *fakeStore) put(c Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[c.ID] = c
}

func (s *fakeStore) status(id string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs[id].Status
}

func (s *fakeStore) Create(_ context.Context, c *Conversation) error {
	s.put(*c)
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*Conversation, error) {
	if s.onGet != nil {
		s.onGet()
	}
	s.mu.Lock()
	s.gets++
	c, ok := s.convs[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, tenancy.ErrEntityNotFound)
	}
	if s.afterGet != nil {
		s.afterGet()
	}
	return &c, nil
}

func (s *fakeStore) CompareAndSetStatus(_ context.Context, id string, from, to Status, at time.Time) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.casCalls++
	if s.conflicts > 0 {
		s.conflicts--
		return nil, ErrConcurrentModification
	}
	c, ok := s.convs[id]
	if !ok {
		return nil, tenancy.ErrEntityNotFound
	}
	if c.Status != from {
		return nil, ErrConcurrentModification
	}
	c.Status = to
	c.StatusUpdatedAt = at
	s.convs[id] = c
	return &c, nil
}

func (s *fakeStore) SetAssignee(_ context.Context, id string, userID *string, at time.Time) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, tenancy.ErrEntityNotFound
	}
	c.AssignedUserID = userID
	if userID != nil {
		c.AssignedAt = &at
	} else {
		c.AssignedAt = nil
	}
	s.convs[id] = c
	return &c, nil
}

func (s *fakeStore) ListByWorkspace(_ context.Context, workspaceID string, status Status) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Conversation
	for _, c := range s.convs {
		if c.WorkspaceID == workspaceID && (status == "" || c.Status == status) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) AppendMessage(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *fakeStore) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

// fakeEntities knows only workspace -> account edges
type fakeEntities map[string]string

func (f fakeEntities) ParentID(_ context.Context, level tenancy.Level, id string) (string, error) {
	if level == tenancy.LevelWorkspace {
		if acct, ok := f[id]; ok {
			return acct, nil
		}
	}
	return "", tenancy.ErrEntityNotFound
}

func (f fakeEntities) AccountOwnerID(context.Context, string) (string, error) {
	return "", tenancy.ErrEntityNotFound
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Kind, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

var (
	scope1 = Scope{AccountID: "acct-1", WorkspaceID: "ws-1"}
	epoch  = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
)

func entities() fakeEntities {
	return fakeEntities{"ws-1": "acct-1", "ws-2": "acct-2"}
}

func conversation(id string, st Status) Conversation {
	return Conversation{ID: id, WorkspaceID: "ws-1", Status: st, StatusUpdatedAt: epoch, CreatedAt: epoch}
}
