package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"pipeline-orchestrator/internal/domain"
	"pipeline-orchestrator/internal/ports"
)

type UserService struct {
	*CrudCore[domain.User]
	groups    ports.UserGroupStore
	refresher *SessionRefresher
}

func NewUserService(users ports.UserStore, groups ports.UserGroupStore, notifier ports.Notifier, logger ports.Logger, locks *KeyedMutex, refresher *SessionRefresher) *UserService {
	core := NewCrudCore(domain.KindUser, users, notifier, logger, locks, CrudOptions[domain.User]{
		Stamp:       stampUser,
		Validate:    validateUser,
		UniqueKey:   func(u domain.User) string { return u.Email },
		UniqueLabel: "email",
		Merge: func(stored, incoming domain.User) domain.User {
			if incoming.PasswordHash == "" {
				incoming.PasswordHash = stored.PasswordHash
			}
			incoming.CreatedAt = stored.CreatedAt
			return incoming
		},
	})
	return &UserService{CrudCore: core, groups: groups, refresher: refresher}
}

func stampUser(u domain.User, now time.Time, created bool) domain.User {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.UpdatedAt = now
	if created {
		if u.ID == "" {
			u.ID = newID()
		}
		u.CreatedAt = now
	}
	return u
}

func validateUser(u domain.User) error {
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("User email is required.")
	}
	if u.PasswordHash == "" && u.Provider == "" {
		return errors.New("User requires a password or an identity provider.")
	}
	return nil
}

// Register hashes password, when given, and adds the user.
func (s *UserService) Register(ctx context.Context, user domain.User, password string) domain.ServiceResult[domain.User] {
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Failed(user, fail(domain.ErrInvalidInput, "User password could not be hashed."), "User password could not be hashed.")
		}
		user.PasswordHash = string(hash)
	}
	return s.Add(ctx, user)
}

// CheckPassword reports whether password matches the user's stored hash.
func CheckPassword(user domain.User, password string) bool {
	if user.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

func (s *UserService) Update(ctx context.Context, user domain.User) domain.ServiceResult[domain.User] {
	res := s.CrudCore.Update(ctx, user)
	if !res.HasError() {
		s.refresher.Refresh(ctx, res.Object.ID)
	}
	return res
}

// Delete strips the user from every group listing it before removing the user.
// The first failing group update aborts the delete and nothing after it runs.
func (s *UserService) Delete(ctx context.Context, id string) domain.ServiceResult[domain.User] {
	ctx = context.WithoutCancel(ctx)
	if id == "" {
		return s.fail(ctx, "delete", domain.User{}, notFound(domain.KindUser))
	}
	groupIDs, unlock, err := s.locks.LockScanned(ctx, []string{s.key(id)}, func(groupID string) string {
		return aggregateKey(domain.KindUserGroup, groupID)
	}, s.groupsListing(id))
	if err != nil {
		return s.fail(ctx, "delete", domain.User{}, err)
	}
	defer unlock()

	if _, err := s.store.Get(ctx, id); err != nil {
		return s.fail(ctx, "delete", domain.User{}, err)
	}
	for _, groupID := range groupIDs {
		group, err := s.groups.Get(ctx, groupID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err == nil {
			group.UserIDs = slices.DeleteFunc(group.UserIDs, func(v string) bool { return v == id })
			group.UpdatedAt = s.now()
			err = s.groups.Replace(ctx, group.ID, group)
		}
		if err != nil {
			s.logger.Error(ctx, "user delete cascade failed", "user_id", id, "user_group_id", groupID, "error", err)
			msg := fmt.Sprintf("UserGroup %s could not be updated.", groupID)
			return domain.Failed(domain.User{}, fail(domain.ErrPartialCascade, "%s", msg), msg)
		}
		groupRes := domain.Succeeded(group, domain.NotificationUpdated, "UserGroup updated successfully.")
		s.notifier.Notify(ctx, domain.NewEvent(domain.KindUserGroup, "update", domain.Scope{}, groupRes))
	}
	res := s.deleteLocked(ctx, id)
	if !res.HasError() {
		s.refresher.Refresh(ctx, id)
	}
	return res
}

func (s *UserService) groupsListing(userID string) func(context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		groups, err := s.groups.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		var ids []string
		for _, g := range groups {
			if slices.Contains(g.UserIDs, userID) {
				ids = append(ids, g.ID)
			}
		}
		return ids, nil
	}
}
