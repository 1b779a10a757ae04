package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

const invitationColumns = "id, group_id, user_id, inviter_id, status, active, created_at, expires_at, responded_at"

// CreateInvitation inserts an invitation. The partial unique index on
// (group_id, user_id) WHERE status = 'pending' rejects a second pending row.
func (t *tx) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO invitations ("+invitationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		inv.ID, inv.GroupID, inv.UserID, inv.InviterID, string(inv.Status), inv.Active,
		toNanos(inv.CreatedAt), toNanos(inv.ExpiresAt), toNanos(inv.RespondedAt),
	)
	if isConstraintViolation(err) {
		return fmt.Errorf("invitation %s/%s: %w", inv.GroupID, inv.UserID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert invitation: %w", err)
	}
	return nil
}

// GetInvitation retrieves an invitation by ID.
func (t *tx) GetInvitation(ctx context.Context, invitationID string) (*models.Invitation, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+invitationColumns+" FROM invitations WHERE id = ?",
		invitationID,
	)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invitation %s: %w", invitationID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// FindPendingInvitation returns the pending invitation for (group, user).
func (t *tx) FindPendingInvitation(ctx context.Context, groupID, userID string) (*models.Invitation, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+invitationColumns+" FROM invitations WHERE group_id = ? AND user_id = ? AND status = ?",
		groupID, userID, string(models.StatusPending),
	)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending invitation %s/%s: %w", groupID, userID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending invitation: %w", err)
	}
	return inv, nil
}

// SwapInvitationStatus performs the status compare-and-swap.
func (t *tx) SwapInvitationStatus(ctx context.Context, invitationID string, from, to models.InvitationStatus, active bool, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE invitations SET status = ?, active = ?, responded_at = ? WHERE id = ? AND status = ?",
		string(to), active, toNanos(at), invitationID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update invitation status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Tell a missing row apart from a lost race.
	if _, err := t.GetInvitation(ctx, invitationID); err != nil {
		return err
	}
	return fmt.Errorf("invitation %s is no longer %s: %w", invitationID, from, storage.ErrConflict)
}

// ListInvitationsByUser lists a user's active invitations in status.
func (t *tx) ListInvitationsByUser(ctx context.Context, userID string, status models.InvitationStatus) ([]models.Invitation, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT "+invitationColumns+` FROM invitations
		 WHERE user_id = ? AND status = ? AND active = 1
		 ORDER BY created_at, id`,
		userID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var out []models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invitations: %w", err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row scanner) (*models.Invitation, error) {
	inv := &models.Invitation{}
	var createdAt, expiresAt, respondedAt int64
	if err := row.Scan(&inv.ID, &inv.GroupID, &inv.UserID, &inv.InviterID, &inv.Status,
		&inv.Active, &createdAt, &expiresAt, &respondedAt); err != nil {
		return nil, err
	}
	inv.CreatedAt = fromNanos(createdAt)
	inv.ExpiresAt = fromNanos(expiresAt)
	inv.RespondedAt = fromNanos(respondedAt)
	return inv, nil
}
