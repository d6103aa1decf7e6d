package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantdesk/pkg/auth"
	"github.com/platinummonkey/tenantdesk/pkg/cache"
	"github.com/platinummonkey/tenantdesk/pkg/conversations"
	"github.com/platinummonkey/tenantdesk/pkg/events"
	"github.com/platinummonkey/tenantdesk/pkg/membership"
	"github.com/platinummonkey/tenantdesk/pkg/middleware"
	"github.com/platinummonkey/tenantdesk/pkg/observability"
	"github.com/platinummonkey/tenantdesk/pkg/rbac"
	"github.com/platinummonkey/tenantdesk/pkg/storage/memory"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

const fixture = `
users:
  - {id: owner-1, email: owner1@example.com, platform_owner: true}
  - {id: owner-2, email: owner2@example.com, platform_owner: true}
  - {id: admin-1, email: admin@example.com}
  - {id: agent-1, email: agent@example.com}
  - {id: mgr-1, email: mgr@example.com}
  - {id: invitee-1, email: invitee@example.com}
  - {id: outsider, email: outsider@example.com}
  - {id: newhire-1, email: newhire@example.com}
accounts:
  - {id: acct-1, name: Acme, owner_id: owner-1}
  - {id: acct-2, name: Globex, owner_id: owner-2}
workspaces:
  - {id: ws-1, account_id: acct-1}
  - {id: ws-2, account_id: acct-2}
departments:
  - {id: dept-1, workspace_id: ws-1, name: Billing}
  - {id: dept-9, workspace_id: ws-2, name: Sales}
memberships:
  - {subject_id: admin-1, entity_id: ws-1, level: workspace, role: admin}
  - {subject_id: agent-1, entity_id: ws-1, level: workspace, role: member}
  - {subject_id: agent-1, entity_id: dept-1, level: department, role: human_support}
  - {subject_id: mgr-1, entity_id: ws-1, level: workspace, role: member}
  - {subject_id: mgr-1, entity_id: dept-1, level: department, role: manager}
  - {subject_id: invitee-1, entity_id: ws-1, level: workspace, role: member}
  - {subject_id: outsider, entity_id: ws-2, level: workspace, role: member}
`

const signingKey = "test-signing-key-0123456789abcdef"

type testEnv struct {
	server   *httptest.Server
	verifier *auth.JWTVerifier
	hub      *events.Hub
	machine  *conversations.StateMachine
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()

	store := memory.NewStore()
	require.NoError(t, store.LoadSeed(strings.NewReader(fixture), time.Now().UTC()))

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	logger := observability.Nop()

	mc, err := cache.NewMemoryCache(256, nil)
	require.NoError(t, err)
	authority := cache.NewAuthority(mc, cache.WithMetrics(metrics))

	hub := events.NewHub(logger, metrics)
	directory := membership.NewDirectory(membership.Deps{
		Store:       store,
		Departments: store,
		Entities:    store,
		Cache:       authority,
		Metrics:     metrics,
	})
	resolver := tenancy.NewResolver(store, directory)
	machine := conversations.NewStateMachine(conversations.Deps{
		Store:     store,
		Entities:  store,
		Cache:     authority,
		Publisher: hub,
		Metrics:   metrics,
	})
	verifier := auth.NewJWTVerifier(auth.JWTConfig{SigningKey: signingKey, Issuer: "tenantdesk"})

	deps := Deps{
		Auth:          auth.NewMiddleware(verifier, store, logger),
		Resolver:      resolver,
		Guard:         rbac.NewGuard(resolver, rbac.NewAuthorizer(metrics)),
		Conversations: machine,
		Directory:     directory,
		Hub:           hub,
		Health:        observability.NewHealthChecker(nil, nil, "test"),
		Registry:      registry,
		Metrics:       metrics,
		Logger:        logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	ts := httptest.NewServer(NewServer(deps))
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, verifier: verifier, hub: hub, machine: machine}
}

func (e *testEnv) token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := e.verifier.Issue(subject, auth.TokenTypeAccess)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, subject, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	require.NoError(t, err)
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, subject))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

const ws1 = "/v1/accounts/acct-1/workspaces/ws-1"

func TestServer_Authentication(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, "", http.MethodGet, ws1+"/conversations", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, "ghost", http.MethodGet, ws1+"/conversations", nil)
	assert.Equal(t, http.StatusUnauthorized, status, "unknown subject")

	status, _ = env.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_Context(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, "agent-1", http.MethodGet, "/v1/context?department_id=dept-1", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	resp := decode[ContextResponse](t, body)
	assert.Equal(t, "agent-1", resp.Principal.ID)
	assert.Equal(t, "acct-1", resp.Context.AccountID)
	assert.Equal(t, "ws-1", resp.Context.WorkspaceID)
	assert.Equal(t, tenancy.RoleMember, resp.Context.WorkspaceRole)
	assert.Equal(t, tenancy.RoleHumanSupport, resp.Context.DepartmentRole)
	assert.Empty(t, resp.Context.AccountRole)

	status, body = env.do(t, "owner-1", http.MethodGet, "/v1/context?workspace_id=ws-1", nil)
	require.Equal(t, http.StatusOK, status)
	resp = decode[ContextResponse](t, body)
	assert.Equal(t, tenancy.RoleAdmin, resp.Context.AccountRole)
	assert.Equal(t, tenancy.RoleAdmin, resp.Context.WorkspaceRole)

	status, _ = env.do(t, "owner-1", http.MethodGet, "/v1/context?account_id=acct-2", nil)
	assert.Equal(t, http.StatusNotFound, status, "platform owners only see accounts they own")

	status, _ = env.do(t, "agent-1", http.MethodGet, "/v1/context?account_id=acct-2&workspace_id=ws-1", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, "agent-1", http.MethodGet, "/v1/context", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[ContextResponse](t, body).Context.AccountID)
}

func TestServer_ContextHidesForeignChains(t *testing.T) {
	env := newTestEnv(t)

	for _, query := range []string{"department_id=dept-1", "workspace_id=ws-1", "account_id=acct-1"} {
		status, body := env.do(t, "outsider", http.MethodGet, "/v1/context?"+query, nil)
		assert.Equal(t, http.StatusNotFound, status, query)
		assert.JSONEq(t, `{"error":"not found"}`, string(body))
		assert.NotContains(t, string(body), "acct-1")
	}

	status, body := env.do(t, "outsider", http.MethodGet, "/v1/context?workspace_id=ws-2", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "acct-2", decode[ContextResponse](t, body).Context.AccountID)
}

func TestServer_ScopeMismatchBodyHasNoIDs(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, "outsider", http.MethodGet, "/v1/accounts/acct-2/workspaces/ws-1/conversations", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"scope mismatch"}`, string(body))
	assert.NotContains(t, string(body), "acct-1")
}

func TestServer_ScopeErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		subject string
		path    string
		want    int
	}{
		{"member", "agent-1", ws1 + "/conversations", http.StatusOK},
		{"account mismatch", "agent-1", "/v1/accounts/acct-2/workspaces/ws-1/conversations", http.StatusBadRequest},
		{"unknown workspace", "agent-1", "/v1/accounts/acct-1/workspaces/ws-404/conversations", http.StatusNotFound},
		{"other tenant", "outsider", ws1 + "/conversations", http.StatusForbidden},
		{"platform owner of another account", "owner-2", ws1 + "/conversations", http.StatusNotFound},
		{"platform owner", "owner-1", ws1 + "/conversations", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.subject, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.want, status, string(body))
			if status == http.StatusForbidden {
				assert.JSONEq(t, `{"error":"forbidden"}`, string(body))
			}
		})
	}
}

func TestServer_ConversationLifecycle(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, "agent-1", http.MethodPost, ws1+"/conversations", nil)
	require.Equal(t, http.StatusCreated, status, string(body))
	conv := decode[conversations.Conversation](t, body)
	assert.Equal(t, conversations.StatusTodo, conv.Status)
	base := ws1 + "/conversations/" + conv.ID

	status, body = env.do(t, "agent-1", http.MethodPost, base+"/assign", AssignRequest{UserID: "agent-1"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, conversations.StatusTodo, decode[conversations.Conversation](t, body).Status, "assignment leaves status alone")

	status, body = env.do(t, "agent-1", http.MethodGet, base+"/assignment", nil)
	require.Equal(t, http.StatusOK, status)
	assignee := decode[AssignmentResponse](t, body).AssignedUserID
	require.NotNil(t, assignee)
	assert.Equal(t, "agent-1", *assignee)

	status, _ = env.do(t, "agent-1", http.MethodPost, base+"/state", SetStateRequest{Status: "assigned"})
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, "agent-1", http.MethodPost, base+"/state", SetStateRequest{Status: "todo"})
	assert.Equal(t, http.StatusUnprocessableEntity, status, "assigned cannot go back to todo")

	status, _ = env.do(t, "agent-1", http.MethodPost, base+"/state", SetStateRequest{Status: "archived"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = env.do(t, "agent-1", http.MethodPost, base+"/state", SetStateRequest{Status: "closed"})
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(t, "agent-1", http.MethodPost, base+"/inbound", MessageRequest{AuthorID: "customer-7", Body: "still broken"})
	require.Equal(t, http.StatusCreated, status, string(body))
	inbound := decode[InboundResponse](t, body)
	assert.Equal(t, conversations.StatusTodo, inbound.Conversation.Status, "inbound reopens closed conversations")
	assert.Equal(t, conversations.DirectionInbound, inbound.Message.Direction)

	status, _ = env.do(t, "agent-1", http.MethodPost, base+"/inbound", MessageRequest{Body: "no author"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, "agent-1", http.MethodPost, base+"/messages", MessageRequest{Body: "looking now"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "agent-1", decode[conversations.Message](t, body).AuthorID)

	status, body = env.do(t, "agent-1", http.MethodGet, base+"/messages", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]conversations.Message](t, body), 2)

	status, body = env.do(t, "agent-1", http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, conversations.StatusTodo, decode[conversations.Conversation](t, body).Status)

	status, body = env.do(t, "agent-1", http.MethodGet, ws1+"/conversations?status=todo", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]conversations.Conversation](t, body), 1)

	status, body = env.do(t, "agent-1", http.MethodGet, ws1+"/conversations?status=closed", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]conversations.Conversation](t, body))

	status, _ = env.do(t, "agent-1", http.MethodGet, ws1+"/conversations?status=bogus", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = env.do(t, "agent-1", http.MethodPost, base+"/unassign", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, decode[conversations.Conversation](t, body).AssignedUserID)

	status, _ = env.do(t, "agent-1", http.MethodGet, ws1+"/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_ConversationInOtherWorkspaceIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, "outsider", http.MethodPost, "/v1/accounts/acct-2/workspaces/ws-2/conversations", nil)
	require.Equal(t, http.StatusCreated, status)
	foreign := decode[conversations.Conversation](t, body)

	status, _ = env.do(t, "agent-1", http.MethodGet, ws1+"/conversations/"+foreign.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = env.do(t, "agent-1", http.MethodPost, ws1+"/conversations/"+foreign.ID+"/state", SetStateRequest{Status: "assigned"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_DepartmentMembership(t *testing.T) {
	env := newTestEnv(t)
	dept := ws1 + "/departments/dept-1"

	status, _ := env.do(t, "agent-1", http.MethodPost, dept+"/members", AddMemberRequest{UserID: "invitee-1", Role: "member", Invite: true})
	assert.Equal(t, http.StatusForbidden, status, "human support cannot manage members")

	status, body := env.do(t, "mgr-1", http.MethodPost, dept+"/members", AddMemberRequest{UserID: "invitee-1", Role: "member", Invite: true})
	require.Equal(t, http.StatusCreated, status, string(body))
	assert.Equal(t, tenancy.MembershipInvited, decode[tenancy.Membership](t, body).Status)

	status, _ = env.do(t, "mgr-1", http.MethodPost, dept+"/members", AddMemberRequest{UserID: "invitee-1", Role: "member"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.do(t, "mgr-1", http.MethodPost, dept+"/members", AddMemberRequest{UserID: "someone", Role: "lead"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, "invitee-1", http.MethodPost, dept+"/invitation/accept", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, tenancy.MembershipActive, decode[tenancy.Membership](t, body).Status)

	status, body = env.do(t, "mgr-1", http.MethodGet, dept+"/users", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]tenancy.Membership](t, body), 3)

	status, body = env.do(t, "mgr-1", http.MethodPut, dept+"/members/invitee-1", UpdateMemberRequest{Role: "human_support"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, tenancy.RoleHumanSupport, decode[tenancy.Membership](t, body).Role)

	status, body = env.do(t, "admin-1", http.MethodGet, dept, nil)
	require.Equal(t, http.StatusOK, status, "workspace admins are elevated")
	summary := decode[membership.DepartmentSummary](t, body)
	assert.Equal(t, 3, summary.Members)
	assert.Equal(t, 1, summary.Managers)

	status, _ = env.do(t, "mgr-1", http.MethodDelete, dept+"/members/invitee-1", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = env.do(t, "mgr-1", http.MethodDelete, dept+"/members/invitee-1", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = env.do(t, "agent-1", http.MethodGet, ws1+"/departments", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]membership.DepartmentSummary](t, body), 1)

	status, _ = env.do(t, "agent-1", http.MethodGet, ws1+"/departments/dept-9", nil)
	assert.Equal(t, http.StatusBadRequest, status, "department of another workspace")
}

func TestServer_EventStream(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") +
		"/ws?account_id=acct-1&workspace_id=ws-1&access_token=" + env.token(t, "agent-1")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	require.Eventually(t, func() bool { return env.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	status, body := env.do(t, "agent-1", http.MethodPost, ws1+"/conversations", nil)
	require.Equal(t, http.StatusCreated, status)
	conv := decode[conversations.Conversation](t, body)
	status, _ = env.do(t, "agent-1", http.MethodPost, ws1+"/conversations/"+conv.ID+"/state", SetStateRequest{Status: "escalated"})
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	ev := decode[events.Event](t, raw)
	assert.Equal(t, events.KindStatusChanged, ev.Kind)
	assert.Equal(t, events.ConversationTopic("ws-1"), ev.Topic)

	_, resp, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.server.URL, "http")+
		"/ws?account_id=acct-1&workspace_id=ws-1&access_token="+env.token(t, "outsider"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_AcceptInvitationWithoutWorkspaceMembership(t *testing.T) {
	env := newTestEnv(t)
	dept := ws1 + "/departments/dept-1"

	status, _ := env.do(t, "newhire-1", http.MethodPost, dept+"/invitation/accept", nil)
	assert.Equal(t, http.StatusNotFound, status, "no invitation yet")

	status, body := env.do(t, "mgr-1", http.MethodPost, dept+"/members", AddMemberRequest{UserID: "newhire-1", Role: "member", Invite: true})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = env.do(t, "newhire-1", http.MethodPost, dept+"/invitation/accept", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, tenancy.MembershipActive, decode[tenancy.Membership](t, body).Status)

	status, body = env.do(t, "newhire-1", http.MethodPost, dept+"/invitation/accept", nil)
	require.Equal(t, http.StatusOK, status, "accepting twice is harmless")
	assert.Equal(t, tenancy.MembershipActive, decode[tenancy.Membership](t, body).Status)

	status, body = env.do(t, "mgr-1", http.MethodGet, dept+"/users", nil)
	require.Equal(t, http.StatusOK, status)
	var ids []string
	for _, m := range decode[[]tenancy.Membership](t, body) {
		ids = append(ids, m.SubjectID)
	}
	assert.Contains(t, ids, "newhire-1")

	status, _ = env.do(t, "outsider", http.MethodPost, dept+"/invitation/accept", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, "agent-1", http.MethodGet, ws1+"/conversations", nil)

	status, body := env.do(t, "", http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `route="/v1/accounts/{account_id}/workspaces/{workspace_id}/conversations"`)
	assert.Contains(t, string(body), "tenantdesk_authz_decisions_total")
}

func TestServer_InboundRateLimit(t *testing.T) {
	once := &middleware.RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	env := newTestEnv(t, func(d *Deps) {
		d.InboundLimit = middleware.NewRateLimitMiddleware("inbound",
			middleware.NewRateLimiter(once, nil), middleware.PathKey("workspace_id"), d.Metrics)
		d.RateLimit = middleware.NewRateLimitMiddleware("principal",
			middleware.NewRateLimiter(middleware.PerUserRateLimitConfig(), nil), middleware.PrincipalKey, d.Metrics)
	})

	status, body := env.do(t, "agent-1", http.MethodPost, ws1+"/conversations", nil)
	require.Equal(t, http.StatusCreated, status, string(body))
	base := ws1 + "/conversations/" + decode[conversations.Conversation](t, body).ID

	msg := MessageRequest{AuthorID: "customer-7", Body: "hello"}
	status, _ = env.do(t, "agent-1", http.MethodPost, base+"/inbound", msg)
	assert.Equal(t, http.StatusCreated, status)

	status, _ = env.do(t, "agent-1", http.MethodPost, base+"/inbound", msg)
	assert.Equal(t, http.StatusTooManyRequests, status)

	status, _ = env.do(t, "outsider", http.MethodPost, base+"/inbound", msg)
	assert.Equal(t, http.StatusForbidden, status, "unauthorized callers are rejected before the limiter")

	status, _ = env.do(t, "agent-1", http.MethodGet, base+"/messages", nil)
	assert.Equal(t, http.StatusOK, status, "other routes are unaffected")
}
