package service

import (
	"context"
	"errors"
	"fmt"

	"taskhub/internal/apperr"
	"taskhub/internal/ids"
	"taskhub/internal/models"
	"taskhub/internal/permission"
	"taskhub/internal/repository"
	"taskhub/internal/security"
)

// provision writes a new user with its provider account, a default workspace
// and the OWNER membership, and points the user at that workspace. It must
// run inside a transaction.
func provision(ctx context.Context, repos repository.Repositories, user models.User, provider models.Provider, providerID string) (models.User, error) {
	owner, err := repos.Roles().FindByName(ctx, permission.Owner.String())
	if err != nil {
		return models.User{}, notFoundAs(err, apperr.NotFound(apperr.CodeRoleNotFound, "Owner role not found"))
	}

	if err := repos.Users().Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return models.User{}, apperr.AlreadyExists(apperr.CodeAuthEmailAlreadyExists, "Email already exists")
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}

	account := models.Account{
		ID:         ids.New(),
		UserID:     user.ID,
		Provider:   provider,
		ProviderID: providerID,
	}
	if err := repos.Accounts().Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return models.User{}, apperr.AlreadyExists(apperr.CodeAuthEmailAlreadyExists, "Account already exists")
		}
		return models.User{}, fmt.Errorf("create account: %w", err)
	}

	workspace := models.Workspace{
		ID:          ids.New(),
		Name:        "My Workspace",
		Description: "Workspace created for " + user.Name,
		OwnerID:     user.ID,
		InviteCode:  security.NewInviteCode(),
	}
	if err := repos.Workspaces().Create(ctx, workspace); err != nil {
		return models.User{}, fmt.Errorf("create workspace: %w", err)
	}

	member := models.Member{
		ID:          ids.New(),
		UserID:      user.ID,
		WorkspaceID: workspace.ID,
		RoleID:      owner.ID,
	}
	if err := repos.Members().Create(ctx, member); err != nil {
		return models.User{}, fmt.Errorf("create member: %w", err)
	}

	if err := repos.Users().SetCurrentWorkspace(ctx, user.ID, workspace.ID); err != nil {
		return models.User{}, fmt.Errorf("set current workspace: %w", err)
	}

	return repos.Users().GetByID(ctx, user.ID)
}
