package service

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/currency"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/money"
	"github.com/mmynk/groupledger/internal/storage"
)

// GroupService manages the lifecycle of groups.
type GroupService struct {
	deps
}

// NewGroupService creates a GroupService with the given storage backend.
func NewGroupService(store storage.Store, opts ...Option) *GroupService {
	return &GroupService{deps: newDeps(store, opts)}
}

// CreateGroupParams describes a new group.
type CreateGroupParams struct {
	CreatorID   string
	Description string
	Category    string
	Currency    string // defaults to the configured currency
}

// CreateGroup creates a group and makes its creator an admin, in one transaction.
func (s *GroupService) CreateGroup(ctx context.Context, p CreateGroupParams) (*models.Group, error) {
	slog.Info("CreateGroup request received", "creator_id", p.CreatorID, "description", p.Description)

	if p.CreatorID == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "creator is required")
	}
	description := strings.TrimSpace(p.Description)
	if description == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "description is required")
	}
	category := strings.ToLower(strings.TrimSpace(p.Category))
	if !models.ValidGroupCategory(category) {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "unknown category %q", p.Category)
	}
	code := p.Currency
	if code == "" {
		code = s.defaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArgument, err, "unknown currency %q", code)
	}

	now := s.now()
	group := &models.Group{
		ID:          s.newID(),
		Description: description,
		Category:    category,
		Currency:    money.Zero(unit.String()).Currency,
		CreatorID:   p.CreatorID,
		Active:      true,
		CreatedAt:   now,
	}

	err = s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.CreateGroup(ctx, group); err != nil {
			return err
		}
		_, err := addMemberTx(ctx, tx, group.ID, p.CreatorID, models.RoleAdmin, now)
		return err
	})
	if err != nil {
		slog.Error("CreateGroup failed", "error", err)
		return nil, translate(err)
	}

	slog.Info("Group created", "group_id", group.ID, "currency", group.Currency)
	return group, nil
}

// GetGroup retrieves a group by ID, active or not.
func (s *GroupService) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	var group *models.Group
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		group, err = tx.GetGroup(ctx, groupID)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return group, nil
}

// UpdateGroupParams holds the editable group fields. Nil fields are left as is.
type UpdateGroupParams struct {
	Description *string
	Category    *string
}

// UpdateGroup changes the description and category of an active group.
func (s *GroupService) UpdateGroup(ctx context.Context, groupID string, p UpdateGroupParams) (*models.Group, error) {
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "description cannot be empty")
	}
	var category string
	if p.Category != nil {
		category = strings.ToLower(strings.TrimSpace(*p.Category))
		if !models.ValidGroupCategory(category) {
			return nil, apperrors.New(apperrors.KindInvalidArgument, "unknown category %q", *p.Category)
		}
	}

	var group *models.Group
	err := s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		group, err = requireActiveGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if p.Description != nil {
			group.Description = strings.TrimSpace(*p.Description)
		}
		if p.Category != nil {
			group.Category = category
		}
		return tx.UpdateGroup(ctx, group)
	})
	if err != nil {
		slog.Error("UpdateGroup failed", "group_id", groupID, "error", err)
		return nil, translate(err)
	}

	slog.Info("Group updated", "group_id", groupID)
	return group, nil
}

// DeactivateGroup marks a group inactive. Its rows are kept.
func (s *GroupService) DeactivateGroup(ctx context.Context, groupID string) error {
	err := s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		group, err := requireActiveGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		group.Active = false
		return tx.UpdateGroup(ctx, group)
	})
	if err != nil {
		slog.Error("DeactivateGroup failed", "group_id", groupID, "error", err)
		return translate(err)
	}

	slog.Info("Group deactivated", "group_id", groupID)
	return nil
}

// ListGroupsForUser returns the active groups userID belongs to, with the
// user's role in each.
func (s *GroupService) ListGroupsForUser(ctx context.Context, userID string) ([]models.GroupRole, error) {
	var out []models.GroupRole
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		memberships, err := tx.ListMembershipsByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, m := range memberships {
			g, err := tx.GetGroup(ctx, m.GroupID)
			if err != nil {
				return err
			}
			if !g.Active {
				continue
			}
			out = append(out, models.GroupRole{Group: *g, Role: m.Role})
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}
