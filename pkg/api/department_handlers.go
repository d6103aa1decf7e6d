package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantdesk/pkg/httputil"
	"github.com/platinummonkey/tenantdesk/pkg/membership"
	"github.com/platinummonkey/tenantdesk/pkg/rbac"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

var (
	departmentRead   = rbac.Require(rbac.DepartmentMember)
	departmentManage = rbac.Require(rbac.DepartmentManager)
	workspaceRead    = rbac.Require(rbac.WorkspaceMember, rbac.WorkspaceAdmin, rbac.AccountAdmin)
)

// DepartmentHandlers handles department membership requests
type DepartmentHandlers struct {
	directory *membership.Directory
	guard     *rbac.Guard
}

// NewDepartmentHandlers creates DepartmentHandlers
func NewDepartmentHandlers(directory *membership.Directory, guard *rbac.Guard) *DepartmentHandlers {
	return &DepartmentHandlers{directory: directory, guard: guard}
}

// RegisterRoutes registers department routes
func (h *DepartmentHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/departments",
		h.guard.ProtectFunc(workspaceScope("departments.list", workspaceRead), h.ListDepartments)).Methods(http.MethodGet)

	dept := func(method, path, op string, required rbac.Requirement, fn http.HandlerFunc) {
		router.Handle("/departments/{department_id}"+path, h.guard.ProtectFunc(departmentScope(op, required), fn)).Methods(method)
	}

	dept(http.MethodGet, "", "departments.get", departmentRead, h.GetDepartment)
	dept(http.MethodGet, "/users", "departments.users", departmentRead, h.ListUsers)

	// Members
	dept(http.MethodPost, "/members", "departments.add_member", departmentManage, h.AddMember)
	dept(http.MethodPut, "/members/{subject_id}", "departments.update_member", departmentManage, h.UpdateMember)
	dept(http.MethodDelete, "/members/{subject_id}", "departments.remove_member", departmentManage, h.RemoveMember)

	// The invitee may hold no active role anywhere in the workspace yet;
	// their own Invited row is the credential, checked in the handler.
	router.Handle("/departments/{department_id}/invitation/accept",
		h.guard.ProtectResolved(departmentScope("departments.accept_invitation", nil), http.HandlerFunc(h.AcceptInvitation))).
		Methods(http.MethodPost)
}

// AddMemberRequest is the body of POST .../members. Invite records the
// membership as Invited instead of Active.
type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Invite bool   `json:"invite"`
}

// UpdateMemberRequest is the body of PUT .../members/{subject_id}
type UpdateMemberRequest struct {
	Role string `json:"role"`
}

func departmentID(r *http.Request) string {
	return tenancy.TenantContextFrom(r.Context()).DepartmentID
}

// ListDepartments lists the workspace's departments with member counts
func (h *DepartmentHandlers) ListDepartments(w http.ResponseWriter, r *http.Request) {
	tc := tenancy.TenantContextFrom(r.Context())
	list, err := h.directory.WorkspaceDepartments(r.Context(), tc.WorkspaceID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, list)
}

// GetDepartment returns the department summary
func (h *DepartmentHandlers) GetDepartment(w http.ResponseWriter, r *http.Request) {
	summary, err := h.directory.Department(r.Context(), departmentID(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, summary)
}

// ListUsers returns the department's active members
func (h *DepartmentHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.DepartmentUsers(r.Context(), departmentID(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, users)
}

// AddMember adds or invites a member
func (h *DepartmentHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") || !httputil.RequireNonEmpty(w, req.Role, "role") {
		return
	}

	add := h.directory.Add
	if req.Invite {
		add = h.directory.Invite
	}
	m, err := add(r.Context(), tenancy.LevelDepartment, departmentID(r), req.UserID, tenancy.Role(req.Role))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteCreated(w, m)
}

// UpdateMember changes a member's role
func (h *DepartmentHandlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var req UpdateMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Role, "role") {
		return
	}
	m, err := h.directory.UpdateRole(r.Context(), tenancy.LevelDepartment, departmentID(r), mux.Vars(r)["subject_id"], tenancy.Role(req.Role))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, m)
}

// RemoveMember deletes a membership
func (h *DepartmentHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.Remove(r.Context(), tenancy.LevelDepartment, departmentID(r), mux.Vars(r)["subject_id"]); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AcceptInvitation activates the caller's own invitation. Callers without
// a membership row in the department get 404; accepting twice returns the
// active row.
func (h *DepartmentHandlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	deptID, subjectID := departmentID(r), principal(r).ID
	m, err := h.directory.Membership(r.Context(), tenancy.LevelDepartment, deptID, subjectID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if m.IsActive() {
		_ = httputil.WriteSuccess(w, m)
		return
	}

	m, err = h.directory.Activate(r.Context(), tenancy.LevelDepartment, deptID, subjectID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, m)
}
