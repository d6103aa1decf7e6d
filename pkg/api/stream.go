package api

import (
	"net/http"

	"github.com/platinummonkey/tenantdesk/pkg/events"
	"github.com/platinummonkey/tenantdesk/pkg/httputil"
	"github.com/platinummonkey/tenantdesk/pkg/rbac"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// streamScope reads the workspace from the query string; browsers cannot
// set headers on websocket handshakes.
var streamScope = rbac.ScopeDescriptor{
	Operation: "events.stream",
	Query: map[tenancy.Level]string{
		tenancy.LevelAccount:   "account_id",
		tenancy.LevelWorkspace: "workspace_id",
	},
	Required: rbac.Require(rbac.WorkspaceMember, rbac.WorkspaceAdmin, rbac.AccountAdmin),
}

// NewStreamHandler subscribes an authorized caller to the conversation
// events of one workspace.
func NewStreamHandler(hub *events.Hub, guard *rbac.Guard) http.Handler {
	return guard.ProtectFunc(streamScope, func(w http.ResponseWriter, r *http.Request) {
		tc := tenancy.TenantContextFrom(r.Context())
		if tc.WorkspaceID == "" {
			httputil.WriteBadRequest(w, "workspace_id is required")
			return
		}
		hub.Serve(w, r, events.ConversationTopic(tc.WorkspaceID))
	})
}
