package cache

import "fmt"

// Key classes. Keys that writers invalidate are versioned by an epoch
// counter; a write retires the epoch. The per-subject ones are never
// invalidated and age out after DefaultTTL.
const (
	KindDepartment           = "department"
	KindDepartmentUsers      = "departmentUsers"
	KindWorkspaceDepartments = "workspaceDepartments"
	KindDepartmentRole       = "departmentRole"
	KindIsDepartmentManager  = "isDepartmentManager"
	KindIsDepartmentMember   = "isDepartmentMember"
	KindConversation         = "conversation"
	KindAssignment           = "conversationAssignment"
	KindConversationList     = "conversations"
)

func epochKey(kind, id string) string {
	return "epoch:" + kind + ":" + id
}

// DepartmentEpochKey versions the department and departmentUsers keys
func DepartmentEpochKey(departmentID string) string {
	return epochKey(KindDepartment, departmentID)
}

func DepartmentKey(departmentID string, epoch int64) string {
	return fmt.Sprintf("%s:%s:v%d", KindDepartment, departmentID, epoch)
}

func DepartmentUsersKey(departmentID string, epoch int64) string {
	return fmt.Sprintf("%s:%s:v%d", KindDepartmentUsers, departmentID, epoch)
}

// WorkspaceDepartmentsEpochKey versions a workspace's department listing
func WorkspaceDepartmentsEpochKey(workspaceID string) string {
	return epochKey(KindWorkspaceDepartments, workspaceID)
}

func WorkspaceDepartmentsKey(workspaceID string, epoch int64) string {
	return fmt.Sprintf("%s:%s:v%d", KindWorkspaceDepartments, workspaceID, epoch)
}

// DepartmentRoleKey is per-subject and never invalidated
func DepartmentRoleKey(userID, departmentID string) string {
	return fmt.Sprintf("%s:%s:%s", KindDepartmentRole, userID, departmentID)
}

// IsDepartmentManagerKey is per-subject and never invalidated
func IsDepartmentManagerKey(userID, departmentID string) string {
	return fmt.Sprintf("%s:%s:%s", KindIsDepartmentManager, userID, departmentID)
}

// IsDepartmentMemberKey is per-subject and never invalidated
func IsDepartmentMemberKey(userID, departmentID string) string {
	return fmt.Sprintf("%s:%s:%s", KindIsDepartmentMember, userID, departmentID)
}

// ConversationsEpochKey holds the conversation epoch of a workspace. It
// versions the conversation, assignment and listing keys of that workspace.
func ConversationsEpochKey(workspaceID string) string {
	return epochKey(KindConversationList, workspaceID)
}

// ConversationKey includes the workspace the reader scoped the lookup to,
// so the entry is versioned by that workspace's epoch.
func ConversationKey(workspaceID, conversationID string, epoch int64) string {
	return fmt.Sprintf("%s:%s:%s:v%d", KindConversation, workspaceID, conversationID, epoch)
}

func AssignmentKey(workspaceID, conversationID string, epoch int64) string {
	return fmt.Sprintf("%s:%s:%s:v%d", KindAssignment, workspaceID, conversationID, epoch)
}

// ConversationListKey is versioned by the workspace epoch, so bumping the
// epoch orphans every listing of that workspace at once. status "" lists all.
func ConversationListKey(workspaceID string, epoch int64, status string) string {
	if status == "" {
		status = "all"
	}
	return fmt.Sprintf("%s:%s:v%d:%s", KindConversationList, workspaceID, epoch, status)
}
