// Package rbac decides whether a resolved tenant context satisfies the
// roles an operation requires.
//
// # Evaluation order
//
// Authorize walks a fixed rule list and the first match wins:
//
//  1. platform owner, when AccountAdmin or the PlatformOwner marker is required
//  2. account Admin for AccountAdmin
//  3. any account role for AccountMember
//  4. workspace Admin for WorkspaceAdmin
//  5. any workspace role for WorkspaceMember
//  6. elevation: workspace or account Admin satisfies any department requirement
//  7. department role: Manager exact, HumanSupport accepts Manager, Member accepts any
//  8. team role: Lead exact, Member accepts any
//  9. deny
//
// Rule 6 must stay ahead of rule 7 so administrators can manage departments
// they hold no membership in.
//
// # HTTP
//
// Every route registers a ScopeDescriptor naming the path, query and body
// fields that carry scope ids, plus its Requirement:
//
//	guard.Protect(rbac.ScopeDescriptor{
//		Operation: "conversation.set_state",
//		Path: map[tenancy.Level]string{
//			tenancy.LevelAccount:   "account_id",
//			tenancy.LevelWorkspace: "workspace_id",
//		},
//		Required: rbac.Require(rbac.WorkspaceMember),
//	}, handler)
//
// Denials always render as a uniform 403. ProtectResolved checks
// containment only, for handlers that authorize against the caller's own
// row, such as accepting an invitation.
package rbac
