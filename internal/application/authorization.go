package application

import (
	"context"
	"errors"
	"slices"

	"pipeline-orchestrator/internal/domain"
	"pipeline-orchestrator/internal/ports"
)

// AuthorizationService evaluates permission snapshots against the entity-kind
// access policies and resolves the snapshot of a user from its groups.
type AuthorizationService struct {
	users  ports.UserStore
	groups ports.UserGroupStore
}

func NewAuthorizationService(users ports.UserStore, groups ports.UserGroupStore) *AuthorizationService {
	return &AuthorizationService{users: users, groups: groups}
}

func (s *AuthorizationService) Allows(identity domain.Identity, kind domain.EntityKind, scope domain.Scope, action domain.Action) bool {
	return Allows(identity, kind, scope, action)
}

// Allows is a pure check of identity's permission snapshot.
func Allows(identity domain.Identity, kind domain.EntityKind, scope domain.Scope, action domain.Action) bool {
	policy := domain.PolicyFor(kind)
	need := requiredType(policy.View, action)
	for _, p := range identity.Permissions {
		if p.Type.Rank() < need.Rank() || p.Type == domain.PermissionNone {
			continue
		}
		if grantCovers(p, policy.Scope, scope) {
			return true
		}
	}
	return false
}

func requiredType(view domain.PermissionType, action domain.Action) domain.PermissionType {
	switch action {
	case domain.ActionView:
		return view
	case domain.ActionOperate:
		if view.Rank() > domain.PermissionOperator.Rank() {
			return view
		}
		return domain.PermissionOperator
	default:
		return domain.PermissionAdmin
	}
}

func grantCovers(p domain.Permission, policyScope domain.PermissionScope, scope domain.Scope) bool {
	switch p.Scope {
	case domain.ScopeServer:
		return true
	case domain.ScopePipelineGroup:
		return policyScope == domain.ScopePipeline && scope.PipelineGroupID != "" && matchesEntity(p.PermittedEntityID, scope.PipelineGroupID)
	case domain.ScopePipeline:
		return policyScope == domain.ScopePipeline && scope.PipelineID != "" && matchesEntity(p.PermittedEntityID, scope.PipelineID)
	default:
		return false
	}
}

func matchesEntity(permitted, id string) bool {
	return permitted == domain.AnyEntity || permitted == id
}

// PermissionsFor returns the user's direct grants plus the grants of every group
// whose membership is confirmed on both sides.
func (s *AuthorizationService) PermissionsFor(ctx context.Context, userID string) ([]domain.Permission, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.permissionsOf(ctx, user)
}

func (s *AuthorizationService) permissionsOf(ctx context.Context, user domain.User) ([]domain.Permission, error) {
	perms := slices.Clone(user.Permissions)
	for _, groupID := range user.UserGroupIDs {
		group, err := s.groups.Get(ctx, groupID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if slices.Contains(group.UserIDs, user.ID) {
			perms = append(perms, group.Permissions...)
		}
	}
	return perms, nil
}

func (s *AuthorizationService) IdentityFor(ctx context.Context, userID string) (domain.Identity, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return domain.Identity{}, err
	}
	perms, err := s.permissionsOf(ctx, user)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{UserID: user.ID, Email: user.Email, Permissions: perms}, nil
}

// SessionRefresher recomputes the cached permission snapshot of every live
// session of a user after its memberships or grants change.
type SessionRefresher struct {
	authz    *AuthorizationService
	sessions ports.SessionTable
	logger   ports.Logger
}

func NewSessionRefresher(authz *AuthorizationService, sessions ports.SessionTable, logger ports.Logger) *SessionRefresher {
	return &SessionRefresher{authz: authz, sessions: sessions, logger: logger}
}

func (r *SessionRefresher) Refresh(ctx context.Context, userIDs ...string) {
	if r == nil || r.sessions == nil {
		return
	}
	for _, userID := range userIDs {
		perms, err := r.authz.PermissionsFor(ctx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			perms, err = nil, nil
		}
		if err != nil {
			r.logger.Warn(ctx, "permission snapshot refresh failed", "user_id", userID, "error", err)
			continue
		}
		if n := r.sessions.UpdatePermissions(userID, perms); n > 0 {
			r.logger.Debug(ctx, "permission snapshot refreshed", "user_id", userID, "sessions", n)
		}
	}
}
