package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// MembershipService manages who belongs to a group and with which role.
type MembershipService struct {
	deps
}

// NewMembershipService creates a MembershipService with the given storage backend.
func NewMembershipService(store storage.Store, opts ...Option) *MembershipService {
	return &MembershipService{deps: newDeps(store, opts)}
}

// AddMember adds userID to an active group.
// A deactivated member is reactivated with the new role and a fresh join time.
func (s *MembershipService) AddMember(ctx context.Context, groupID, userID string, role models.Role) (*models.Membership, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "user id is required")
	}
	if !role.Valid() {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "unknown role %q", role)
	}

	var m *models.Membership
	err := s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := requireActiveGroup(ctx, tx, groupID); err != nil {
			return err
		}
		var err error
		m, err = addMemberTx(ctx, tx, groupID, userID, role, s.now())
		return err
	})
	if err != nil {
		slog.Warn("AddMember failed", "group_id", groupID, "user_id", userID, "error", err)
		return nil, translate(err)
	}

	slog.Info("Member added", "group_id", groupID, "user_id", userID, "role", role)
	return m, nil
}

// addMemberTx inserts or reactivates a membership inside an open transaction.
func addMemberTx(ctx context.Context, tx storage.Tx, groupID, userID string, role models.Role, now time.Time) (*models.Membership, error) {
	existing, err := tx.GetMembership(ctx, groupID, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		m := &models.Membership{GroupID: groupID, UserID: userID, Role: role, Active: true, JoinedAt: now}
		if err := tx.InsertMembership(ctx, m); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return nil, apperrors.Wrap(apperrors.KindDuplicateMembership, err, "user %s is already a member of %s", userID, groupID)
			}
			return nil, err
		}
		return m, nil
	case err != nil:
		return nil, err
	case existing.Active:
		return nil, apperrors.New(apperrors.KindDuplicateMembership, "user %s is already a member of %s", userID, groupID)
	}

	existing.Active = true
	existing.Role = role
	existing.JoinedAt = now
	if err := tx.UpdateMembership(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Deactivate removes userID from the group. The row is kept so historical
// shares stay attributable. The last active admin cannot leave.
func (s *MembershipService) Deactivate(ctx context.Context, groupID, userID string) error {
	err := s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := requireActiveGroup(ctx, tx, groupID); err != nil {
			return err
		}
		m, err := activeMembership(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperrors.New(apperrors.KindNotFound, "user %s is not a member of %s", userID, groupID)
		}
		if m.Role == models.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, tx, groupID, userID); err != nil {
				return err
			}
		}

		m.Active = false
		return tx.UpdateMembership(ctx, m)
	})
	if err != nil {
		slog.Warn("Deactivate member failed", "group_id", groupID, "user_id", userID, "error", err)
		return translate(err)
	}

	slog.Info("Member deactivated", "group_id", groupID, "user_id", userID)
	return nil
}

// ChangeRole sets the role of an active member.
// Demoting the last active admin is refused.
func (s *MembershipService) ChangeRole(ctx context.Context, groupID, userID string, role models.Role) error {
	if !role.Valid() {
		return apperrors.New(apperrors.KindInvalidArgument, "unknown role %q", role)
	}

	err := s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := requireActiveGroup(ctx, tx, groupID); err != nil {
			return err
		}
		m, err := activeMembership(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperrors.New(apperrors.KindNotFound, "user %s is not a member of %s", userID, groupID)
		}
		if m.Role == role {
			return nil
		}
		if m.Role == models.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, tx, groupID, userID); err != nil {
				return err
			}
		}

		m.Role = role
		return tx.UpdateMembership(ctx, m)
	})
	if err != nil {
		slog.Warn("ChangeRole failed", "group_id", groupID, "user_id", userID, "role", role, "error", err)
		return translate(err)
	}

	slog.Info("Member role changed", "group_id", groupID, "user_id", userID, "role", role)
	return nil
}

// ensureAnotherAdmin fails unless an active admin other than userID exists.
func ensureAnotherAdmin(ctx context.Context, tx storage.Tx, groupID, userID string) error {
	members, err := tx.ListMemberships(ctx, groupID, true)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.UserID != userID && m.IsAdmin() {
			return nil
		}
	}
	return apperrors.New(apperrors.KindLastAdminViolation, "user %s is the last admin of %s", userID, groupID)
}

// ListActiveMembers returns the group's active members ordered by join time,
// then user id.
func (s *MembershipService) ListActiveMembers(ctx context.Context, groupID string) ([]models.Membership, error) {
	var members []models.Membership
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.GetGroup(ctx, groupID); err != nil {
			return err
		}
		var err error
		members, err = tx.ListMemberships(ctx, groupID, true)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return members, nil
}

// Authorize checks that userID is an active member of an active group with at
// least minRole, and returns the membership.
func (s *MembershipService) Authorize(ctx context.Context, groupID, userID string, minRole models.Role) (*models.Membership, error) {
	var m *models.Membership
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := requireActiveGroup(ctx, tx, groupID); err != nil {
			return err
		}
		var err error
		m, err = activeMembership(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperrors.New(apperrors.KindNotAuthorized, "user %s is not a member of %s", userID, groupID)
		}
		if minRole == models.RoleAdmin && m.Role != models.RoleAdmin {
			return apperrors.New(apperrors.KindNotAuthorized, "user %s is not an admin of %s", userID, groupID)
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}
