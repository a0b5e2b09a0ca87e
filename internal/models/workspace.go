package models

import "time"

type Workspace struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	InviteCode  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Member struct {
	ID          string
	UserID      string
	WorkspaceID string
	RoleID      string
	JoinedAt    time.Time
}

// RoleRecord is the persisted role row. Its permissions column is informational;
// authorization decisions use the static table in the permission package.
type RoleRecord struct {
	ID          string
	Name        string
	Permissions []string
}
