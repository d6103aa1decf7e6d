// Package api is the HTTP surface of tenantdesk.
//
// Every protected operation is registered together with an
// rbac.ScopeDescriptor naming where its account, workspace, department
// and team ids come from and which roles it accepts. The guard resolves
// and authorizes the request before the handler runs, so handlers read
// the verified scope with tenancy.TenantContextFrom and never parse ids
// for authorization themselves.
//
// Routes:
//
//	GET    /v1/context
//	GET    /v1/accounts/{account_id}/workspaces/{workspace_id}/conversations
//	POST   /v1/accounts/{account_id}/workspaces/{workspace_id}/conversations
//	GET    .../conversations/{conversation_id}
//	POST   .../conversations/{conversation_id}/state
//	POST   .../conversations/{conversation_id}/assign
//	POST   .../conversations/{conversation_id}/unassign
//	GET    .../conversations/{conversation_id}/assignment
//	POST   .../conversations/{conversation_id}/inbound
//	GET    .../conversations/{conversation_id}/messages
//	POST   .../conversations/{conversation_id}/messages
//	GET    /v1/accounts/{account_id}/workspaces/{workspace_id}/departments
//	GET    .../departments/{department_id}
//	GET    .../departments/{department_id}/users
//	POST   .../departments/{department_id}/members
//	PUT    .../departments/{department_id}/members/{subject_id}
//	DELETE .../departments/{department_id}/members/{subject_id}
//	POST   .../departments/{department_id}/invitation/accept
//	GET    /ws?account_id=&workspace_id=
//	GET    /healthz, /readyz, /metrics
package api
