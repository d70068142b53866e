package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"pipeline-orchestrator/internal/domain"
	"pipeline-orchestrator/internal/ports"
)

// UserGroupService manages user groups and the membership edges between users
// and groups. Membership only changes through AssignUserToGroup and
// UnassignUserFromGroup; Update keeps the stored member list.
type UserGroupService struct {
	*CrudCore[domain.UserGroup]
	users     ports.UserStore
	refresher *SessionRefresher
}

func NewUserGroupService(groups ports.UserGroupStore, users ports.UserStore, notifier ports.Notifier, logger ports.Logger, locks *KeyedMutex, refresher *SessionRefresher) *UserGroupService {
	core := NewCrudCore(domain.KindUserGroup, groups, notifier, logger, locks, CrudOptions[domain.UserGroup]{
		Stamp:       stampGroup,
		Validate:    validateGroup,
		UniqueKey:   func(g domain.UserGroup) string { return g.Name },
		UniqueLabel: "name",
		Merge: func(stored, incoming domain.UserGroup) domain.UserGroup {
			incoming.UserIDs = slices.Clone(stored.UserIDs)
			incoming.CreatedAt = stored.CreatedAt
			return incoming
		},
	})
	return &UserGroupService{CrudCore: core, users: users, refresher: refresher}
}

func stampGroup(g domain.UserGroup, now time.Time, created bool) domain.UserGroup {
	g.UpdatedAt = now
	if created {
		if g.ID == "" {
			g.ID = newID()
		}
		g.CreatedAt = now
		g.UserIDs = nil
	}
	return g
}

func validateGroup(g domain.UserGroup) error {
	if strings.TrimSpace(g.Name) == "" {
		return errors.New("UserGroup name is required.")
	}
	for _, p := range g.Permissions {
		if p.Type != domain.PermissionNone && p.Type.Rank() == 0 {
			return fmt.Errorf("Permission type %q is not supported.", p.Type)
		}
		switch p.Scope {
		case domain.ScopeServer, domain.ScopePipelineGroup, domain.ScopePipeline:
		default:
			return fmt.Errorf("Permission scope %q is not supported.", p.Scope)
		}
	}
	return nil
}

func (s *UserGroupService) failDTO(ctx context.Context, op string, err error) domain.ServiceResult[domain.UserGroupDTO] {
	return resultFromError(ctx, s.logger, domain.KindUserGroup, op, domain.UserGroupDTO{}, err)
}

// Update changes the group's name and grants and refreshes the permission
// snapshot of every member.
func (s *UserGroupService) Update(ctx context.Context, group domain.UserGroup) domain.ServiceResult[domain.UserGroup] {
	res := s.CrudCore.Update(ctx, group)
	if !res.HasError() {
		s.refresher.Refresh(ctx, res.Object.UserIDs...)
	}
	return res
}

// GetAllWithUsers lists every group with its members resolved. Member ids that
// no longer resolve to a user are skipped.
func (s *UserGroupService) GetAllWithUsers(ctx context.Context) domain.ServiceResult[[]domain.UserGroupDTO] {
	groups, err := s.store.GetAll(ctx)
	if err != nil {
		return resultFromError(ctx, s.logger, domain.KindUserGroup, "getAllWithUsers", []domain.UserGroupDTO{}, err)
	}
	users, err := s.users.GetAll(ctx)
	if err != nil {
		return resultFromError(ctx, s.logger, domain.KindUserGroup, "getAllWithUsers", []domain.UserGroupDTO{}, err)
	}
	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	dtos := make([]domain.UserGroupDTO, 0, len(groups))
	for _, g := range groups {
		dtos = append(dtos, toDTO(g, byID))
	}
	return domain.Succeeded(dtos, domain.NotificationNone, "User Groups retrieved successfully.")
}

func toDTO(g domain.UserGroup, users map[string]domain.User) domain.UserGroupDTO {
	dto := domain.UserGroupDTO{UserGroup: g, Users: []domain.User{}}
	for _, id := range g.UserIDs {
		if u, ok := users[id]; ok {
			dto.Users = append(dto.Users, u)
		}
	}
	return dto
}

// AssignUserToGroup confirms a membership the user already requested: the
// supplied user must list groupID while the group does not yet list the user.
// Any other edge state is reported as a conflict.
func (s *UserGroupService) AssignUserToGroup(ctx context.Context, user domain.User, groupID string) domain.ServiceResult[domain.UserGroupDTO] {
	return s.changeMembership(ctx, "assignUserToGroup", user, groupID, true)
}

// UnassignUserFromGroup is the mirror of AssignUserToGroup: the supplied user
// must no longer list groupID while the group still lists the user.
func (s *UserGroupService) UnassignUserFromGroup(ctx context.Context, user domain.User, groupID string) domain.ServiceResult[domain.UserGroupDTO] {
	return s.changeMembership(ctx, "unassignUserFromGroup", user, groupID, false)
}

func (s *UserGroupService) changeMembership(ctx context.Context, op string, user domain.User, groupID string, assign bool) domain.ServiceResult[domain.UserGroupDTO] {
	ctx = context.WithoutCancel(ctx)
	if user.ID == "" {
		return s.failDTO(ctx, op, notFound(domain.KindUser))
	}
	if groupID == "" {
		return s.failDTO(ctx, op, notFound(domain.KindUserGroup))
	}
	unlock := s.locks.Lock(aggregateKey(domain.KindUser, user.ID), s.key(groupID))
	defer unlock()

	storedUser, err := s.users.Get(ctx, user.ID)
	if errors.Is(err, domain.ErrNotFound) {
		err = notFound(domain.KindUser)
	}
	if err != nil {
		return s.failDTO(ctx, op, err)
	}
	group, err := s.store.Get(ctx, groupID)
	if err != nil {
		return s.failDTO(ctx, op, err)
	}

	requested := slices.Contains(user.UserGroupIDs, groupID)
	confirmed := slices.Contains(group.UserIDs, user.ID)
	now := s.now()
	var userMsg string
	if assign {
		if !requested || confirmed {
			return s.failDTO(ctx, op, fail(domain.ErrConflict, "User already assigned to User Group."))
		}
		if !slices.Contains(storedUser.UserGroupIDs, groupID) {
			storedUser.UserGroupIDs = append(storedUser.UserGroupIDs, groupID)
		}
		group.UserIDs = append(group.UserIDs, user.ID)
		userMsg = "User assigned successfully."
	} else {
		if requested || !confirmed {
			return s.failDTO(ctx, op, fail(domain.ErrConflict, "User already unassigned from User Group."))
		}
		storedUser.UserGroupIDs = slices.DeleteFunc(storedUser.UserGroupIDs, func(v string) bool { return v == groupID })
		group.UserIDs = slices.DeleteFunc(group.UserIDs, func(v string) bool { return v == user.ID })
		userMsg = "User unassigned successfully."
	}
	storedUser.UpdatedAt = now
	group.UpdatedAt = now

	if err := s.users.Replace(ctx, storedUser.ID, storedUser); err != nil {
		return s.failDTO(ctx, op, err)
	}
	if err := s.store.Replace(ctx, group.ID, group); err != nil {
		s.logger.Error(ctx, "membership left one-sided", "user_id", storedUser.ID, "user_group_id", group.ID, "error", err)
		return s.failDTO(ctx, op, fmt.Errorf("%w: user %s saved but group %s was not", domain.ErrStorageUnavailable, storedUser.ID, group.ID))
	}

	userRes := domain.Succeeded(storedUser, domain.NotificationUpdated, userMsg)
	s.notifier.Notify(ctx, domain.NewEvent(domain.KindUser, "update", domain.Scope{}, userRes))
	groupRes := domain.Succeeded(group, domain.NotificationUpdated, "UserGroup updated successfully.")
	s.notify(ctx, "update", groupRes)
	s.refresher.Refresh(ctx, storedUser.ID)

	return domain.Succeeded(s.membersDTO(ctx, group, storedUser), domain.NotificationUpdated, "UserGroup updated successfully.")
}

// membersDTO resolves every member of group. A member that cannot be read is
// left out; changed is the user just written and is always included.
func (s *UserGroupService) membersDTO(ctx context.Context, group domain.UserGroup, changed domain.User) domain.UserGroupDTO {
	byID := make(map[string]domain.User, len(group.UserIDs))
	for _, id := range group.UserIDs {
		if id == changed.ID {
			byID[id] = changed
			continue
		}
		u, err := s.users.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.logger.Warn(ctx, "group member lookup failed", "user_group_id", group.ID, "user_id", id, "error", err)
			}
			continue
		}
		byID[id] = u
	}
	return toDTO(group, byID)
}

// Delete strips the group from every user listing it, then removes the group.
// The first failing user update aborts the delete, leaving the group stored.
func (s *UserGroupService) Delete(ctx context.Context, id string) domain.ServiceResult[domain.UserGroup] {
	ctx = context.WithoutCancel(ctx)
	if id == "" {
		return s.fail(ctx, "delete", domain.UserGroup{}, notFound(domain.KindUserGroup))
	}
	// The user collection key keeps user adds and updates from listing the
	// group while the cascade runs.
	base := []string{collectionKey(domain.KindUser), s.key(id)}
	userIDs, unlock, err := s.locks.LockScanned(ctx, base, func(userID string) string {
		return aggregateKey(domain.KindUser, userID)
	}, s.usersListing(id))
	if err != nil {
		return s.fail(ctx, "delete", domain.UserGroup{}, err)
	}
	defer unlock()

	group, err := s.store.Get(ctx, id)
	if err != nil {
		return s.fail(ctx, "delete", domain.UserGroup{}, err)
	}
	for _, userID := range userIDs {
		user, err := s.users.Get(ctx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err == nil {
			user.UserGroupIDs = slices.DeleteFunc(user.UserGroupIDs, func(v string) bool { return v == id })
			user.UpdatedAt = s.now()
			err = s.users.Replace(ctx, user.ID, user)
		}
		if err != nil {
			s.logger.Error(ctx, "user group delete cascade failed", "user_group_id", id, "user_id", userID, "error", err)
			msg := fmt.Sprintf("User %s could not be updated.", userID)
			return domain.Failed(domain.UserGroup{}, fail(domain.ErrPartialCascade, "%s", msg), msg)
		}
		userRes := domain.Succeeded(user, domain.NotificationUpdated, fmt.Sprintf("User %s updated successfully.", user.ID))
		s.notifier.Notify(ctx, domain.NewEvent(domain.KindUser, "update", domain.Scope{}, userRes))
	}
	res := s.deleteLocked(ctx, id)
	if !res.HasError() {
		s.refresher.Refresh(ctx, append(userIDs, group.UserIDs...)...)
	}
	return res
}

func (s *UserGroupService) usersListing(groupID string) func(context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		users, err := s.users.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		var ids []string
		for _, u := range users {
			if slices.Contains(u.UserGroupIDs, groupID) {
				ids = append(ids, u.ID)
			}
		}
		return ids, nil
	}
}
