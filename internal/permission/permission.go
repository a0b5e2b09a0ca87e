// Package permission holds the closed set of workspace roles and the static
// table mapping each role to the permissions it grants.
package permission

import "taskhub/internal/apperr"

type Permission string

const (
	CreateWorkspace         Permission = "CREATE_WORKSPACE"
	DeleteWorkspace         Permission = "DELETE_WORKSPACE"
	EditWorkspace           Permission = "EDIT_WORKSPACE"
	ManageWorkspaceSettings Permission = "MANAGE_WORKSPACE_SETTINGS"
	AddMember               Permission = "ADD_MEMBER"
	ChangeMemberRole        Permission = "CHANGE_MEMBER_ROLE"
	RemoveMember            Permission = "REMOVE_MEMBER"
	CreateProject           Permission = "CREATE_PROJECT"
	EditProject             Permission = "EDIT_PROJECT"
	DeleteProject           Permission = "DELETE_PROJECT"
	CreateTask              Permission = "CREATE_TASK"
	EditTask                Permission = "EDIT_TASK"
	DeleteTask              Permission = "DELETE_TASK"
	ViewOnly                Permission = "VIEW_ONLY"
)

type Role int

const (
	roleUnknown Role = iota
	Owner
	Admin
	Member
)

var roleNames = map[Role]string{
	Owner:  "OWNER",
	Admin:  "ADMIN",
	Member: "MEMBER",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

type set map[Permission]struct{}

func newSet(perms ...Permission) set {
	s := make(set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

var table = map[Role]set{
	Owner: newSet(
		CreateWorkspace, DeleteWorkspace, EditWorkspace, ManageWorkspaceSettings,
		AddMember, ChangeMemberRole, RemoveMember,
		CreateProject, EditProject, DeleteProject,
		CreateTask, EditTask, DeleteTask,
		ViewOnly,
	),
	Admin: newSet(
		AddMember,
		CreateProject, EditProject, DeleteProject,
		CreateTask, EditTask, DeleteTask,
		ManageWorkspaceSettings,
		ViewOnly,
	),
	Member: newSet(
		ViewOnly,
		CreateTask, EditTask,
	),
}

// ParseRole converts a stored role name into a Role. Names must match exactly;
// anything else is rejected here so it never reaches an authorization decision.
func ParseRole(name string) (Role, bool) {
	for role, roleName := range roleNames {
		if roleName == name {
			return role, true
		}
	}
	return roleUnknown, false
}

// Permissions lists the permissions granted to role in declaration order.
func Permissions(role Role) []Permission {
	granted, ok := table[role]
	if !ok {
		return nil
	}
	out := make([]Permission, 0, len(granted))
	for _, p := range All() {
		if _, ok := granted[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func All() []Permission {
	return []Permission{
		CreateWorkspace, DeleteWorkspace, EditWorkspace, ManageWorkspaceSettings,
		AddMember, ChangeMemberRole, RemoveMember,
		CreateProject, EditProject, DeleteProject,
		CreateTask, EditTask, DeleteTask,
		ViewOnly,
	}
}

// Has reports whether role grants every permission in required.
func Has(role Role, required ...Permission) bool {
	granted, ok := table[role]
	if !ok {
		return false
	}
	for _, p := range required {
		if _, ok := granted[p]; !ok {
			return false
		}
	}
	return true
}

// Guard authorizes a caller holding roleName for an operation requiring the
// given permissions. An unknown role fails even when nothing is required.
func Guard(roleName string, required ...Permission) error {
	role, ok := ParseRole(roleName)
	if !ok {
		return apperr.Unauthorized(apperr.CodeRoleNotFound, "You do not have the necessary permissions to perform this action")
	}
	if !Has(role, required...) {
		return apperr.Unauthorized(apperr.CodeAccessUnauthorized, "You do not have the necessary permissions to perform this action")
	}
	return nil
}
