package repository

import (
	"context"

	"taskhub/internal/models"
)

type WorkspaceRepository struct {
	db DBTX
}

func NewWorkspaceRepository(db DBTX) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

func (r *WorkspaceRepository) Create(ctx context.Context, workspace models.Workspace) error {
	const query = `
		INSERT INTO workspaces (id, name, description, owner_id, invite_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		workspace.ID,
		workspace.Name,
		workspace.Description,
		workspace.OwnerID,
		workspace.InviteCode,
	)
	return mapError(err)
}

type MemberRepository struct {
	db DBTX
}

func NewMemberRepository(db DBTX) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(ctx context.Context, member models.Member) error {
	const query = `
		INSERT INTO members (id, user_id, workspace_id, role_id, joined_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := r.db.Exec(ctx, query, member.ID, member.UserID, member.WorkspaceID, member.RoleID)
	return mapError(err)
}

func (r *MemberRepository) RoleName(ctx context.Context, userID string, workspaceID string) (string, error) {
	const query = `
		SELECT r.name
		FROM members m
		JOIN roles r ON r.id = m.role_id
		WHERE m.user_id = $1 AND m.workspace_id = $2
	`
	var name string
	if err := r.db.QueryRow(ctx, query, userID, workspaceID).Scan(&name); err != nil {
		return "", mapError(err)
	}
	return name, nil
}

type RoleRepository struct {
	db DBTX
}

func NewRoleRepository(db DBTX) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) FindByName(ctx context.Context, name string) (models.RoleRecord, error) {
	const query = `SELECT id, name, permissions FROM roles WHERE name = $1`
	var role models.RoleRecord
	if err := r.db.QueryRow(ctx, query, name).Scan(&role.ID, &role.Name, &role.Permissions); err != nil {
		return models.RoleRecord{}, mapError(err)
	}
	return role, nil
}
