package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// InvitationService drives invitations through pending → accepted | rejected.
type InvitationService struct {
	deps
}

// NewInvitationService creates an InvitationService with the given storage backend.
func NewInvitationService(store storage.Store, opts ...Option) *InvitationService {
	return &InvitationService{deps: newDeps(store, opts)}
}

// Issue invites inviteeID into groupID on behalf of inviterID.
//
// Checks run in order: the group exists and is active, the inviter is an
// active member, the invitee is not, and no open invitation exists for the
// pair. An expired pending invitation is retired in the same transaction.
func (s *InvitationService) Issue(ctx context.Context, groupID, inviterID, inviteeID string) (*models.Invitation, error) {
	slog.Info("Issue invitation request received", "group_id", groupID, "inviter_id", inviterID, "invitee_id", inviteeID)

	if inviteeID == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "invitee is required")
	}

	now := s.now()
	inv := &models.Invitation{
		ID:        s.newID(),
		GroupID:   groupID,
		UserID:    inviteeID,
		InviterID: inviterID,
		Status:    models.StatusPending,
		Active:    true,
		CreatedAt: now,
	}
	if s.invitationTTL > 0 {
		inv.ExpiresAt = now.Add(s.invitationTTL)
	}

	err := s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := requireActiveGroup(ctx, tx, groupID); err != nil {
			return err
		}

		inviter, err := activeMembership(ctx, tx, groupID, inviterID)
		if err != nil {
			return err
		}
		if inviter == nil {
			return apperrors.New(apperrors.KindNotAuthorized, "user %s cannot invite to %s", inviterID, groupID)
		}

		invitee, err := activeMembership(ctx, tx, groupID, inviteeID)
		if err != nil {
			return err
		}
		if invitee != nil {
			return apperrors.New(apperrors.KindAlreadyMember, "user %s is already a member of %s", inviteeID, groupID)
		}

		pending, err := tx.FindPendingInvitation(ctx, groupID, inviteeID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return err
		case pending.Expired(now):
			if err := tx.SwapInvitationStatus(ctx, pending.ID, models.StatusPending, models.StatusRejected, false, now); err != nil {
				return err
			}
			slog.Info("Expired invitation retired", "invitation_id", pending.ID)
		default:
			return apperrors.New(apperrors.KindDuplicatePending, "user %s already has a pending invitation to %s", inviteeID, groupID)
		}

		if err := tx.CreateInvitation(ctx, inv); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return apperrors.Wrap(apperrors.KindDuplicatePending, err, "user %s already has a pending invitation to %s", inviteeID, groupID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		slog.Warn("Issue invitation failed", "group_id", groupID, "invitee_id", inviteeID, "error", err)
		return nil, translate(err)
	}

	slog.Info("Invitation issued", "invitation_id", inv.ID, "group_id", groupID)
	s.metrics.InvitationTransition(string(models.StatusPending))
	s.emit(ctx, models.Event{
		Type:         models.EventInvitationIssued,
		InvitationID: inv.ID,
		GroupID:      groupID,
		UserID:       inviteeID,
		OccurredAt:   now,
	})
	return inv, nil
}

// Accept moves a pending invitation to accepted and creates the invitee's
// membership in the same transaction. Only the invitee may accept.
func (s *InvitationService) Accept(ctx context.Context, invitationID, actorID string) (*models.Membership, error) {
	var (
		inv        *models.Invitation
		membership *models.Membership
	)
	now := s.now()

	err := s.respond(ctx, invitationID, actorID, func(ctx context.Context, tx storage.Tx, cur *models.Invitation) error {
		if _, err := requireActiveGroup(ctx, tx, cur.GroupID); err != nil {
			return err
		}
		if err := tx.SwapInvitationStatus(ctx, cur.ID, models.StatusPending, models.StatusAccepted, true, now); err != nil {
			return err
		}
		m, err := addMemberTx(ctx, tx, cur.GroupID, cur.UserID, models.RoleMember, now)
		if errors.Is(err, apperrors.ErrDuplicateMembership) {
			return apperrors.Wrap(apperrors.KindAlreadyMember, err, "user %s is already a member of %s", cur.UserID, cur.GroupID)
		}
		if err != nil {
			return err
		}
		inv, membership = cur, m
		return nil
	})
	if err != nil {
		slog.Warn("Accept invitation failed", "invitation_id", invitationID, "actor_id", actorID, "error", err)
		return nil, err
	}

	slog.Info("Invitation accepted", "invitation_id", invitationID, "group_id", inv.GroupID, "user_id", inv.UserID)
	s.metrics.InvitationTransition(string(models.StatusAccepted))
	s.emit(ctx, models.Event{
		Type:         models.EventInvitationAccepted,
		InvitationID: invitationID,
		GroupID:      inv.GroupID,
		UserID:       inv.UserID,
		OccurredAt:   now,
	})
	return membership, nil
}

// Reject moves a pending invitation to rejected and hides it. Only the
// invitee may reject.
func (s *InvitationService) Reject(ctx context.Context, invitationID, actorID string) error {
	var inv *models.Invitation
	now := s.now()

	err := s.respond(ctx, invitationID, actorID, func(ctx context.Context, tx storage.Tx, cur *models.Invitation) error {
		if err := tx.SwapInvitationStatus(ctx, cur.ID, models.StatusPending, models.StatusRejected, false, now); err != nil {
			return err
		}
		inv = cur
		return nil
	})
	if err != nil {
		slog.Warn("Reject invitation failed", "invitation_id", invitationID, "actor_id", actorID, "error", err)
		return err
	}

	slog.Info("Invitation rejected", "invitation_id", invitationID, "group_id", inv.GroupID, "user_id", inv.UserID)
	s.metrics.InvitationTransition(string(models.StatusRejected))
	s.emit(ctx, models.Event{
		Type:         models.EventInvitationRejected,
		InvitationID: invitationID,
		GroupID:      inv.GroupID,
		UserID:       inv.UserID,
		OccurredAt:   now,
	})
	return nil
}

// respond runs a terminal transition. It loads the invitation, checks the
// actor and that the invitation is still open, then calls transition.
// A lost status compare-and-swap is retried once; a second loss means
// another response won and surfaces as not_pending.
func (s *InvitationService) respond(
	ctx context.Context,
	invitationID, actorID string,
	transition func(ctx context.Context, tx storage.Tx, cur *models.Invitation) error,
) error {
	attempt := func() error {
		return s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
			cur, err := tx.GetInvitation(ctx, invitationID)
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.New(apperrors.KindNotFound, "invitation %s not found", invitationID)
			}
			if err != nil {
				return err
			}
			if cur.UserID != actorID {
				return apperrors.New(apperrors.KindNotAuthorized, "invitation %s is not addressed to %s", invitationID, actorID)
			}
			if !cur.Open(s.now()) {
				return apperrors.New(apperrors.KindNotPending, "invitation %s is no longer pending", invitationID)
			}
			return transition(ctx, tx, cur)
		})
	}

	err := attempt()
	if errors.Is(err, storage.ErrConflict) && !isKinded(err) {
		slog.Debug("Invitation changed concurrently, retrying", "invitation_id", invitationID)
		err = attempt()
		if errors.Is(err, storage.ErrConflict) && !isKinded(err) {
			return apperrors.Wrap(apperrors.KindNotPending, err, "invitation %s was answered concurrently", invitationID)
		}
	}
	return translate(err)
}

// isKinded reports whether err already carries an error kind.
func isKinded(err error) bool {
	var appErr *apperrors.Error
	return errors.As(err, &appErr)
}

// ListPendingForUser returns the invitations userID can still answer, oldest first.
func (s *InvitationService) ListPendingForUser(ctx context.Context, userID string) ([]models.Invitation, error) {
	var out []models.Invitation
	now := s.now()
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		pending, err := tx.ListInvitationsByUser(ctx, userID, models.StatusPending)
		if err != nil {
			return err
		}
		for _, inv := range pending {
			if inv.Open(now) {
				out = append(out, inv)
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}
