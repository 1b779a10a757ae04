package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// CreateGroup inserts a new group.
func (t *tx) CreateGroup(ctx context.Context, group *models.Group) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO groups (id, description, category, currency, creator_id, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.Description, group.Category, group.Currency, group.CreatorID,
		group.Active, toNanos(group.CreatedAt),
	)
	if isConstraintViolation(err) {
		return fmt.Errorf("group %s: %w", group.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (t *tx) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	var createdAt int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, description, category, currency, creator_id, active, created_at
		 FROM groups WHERE id = ?`,
		groupID,
	).Scan(&group.ID, &group.Description, &group.Category, &group.Currency,
		&group.CreatorID, &group.Active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	group.CreatedAt = fromNanos(createdAt)
	return group, nil
}

// UpdateGroup overwrites the mutable group fields.
func (t *tx) UpdateGroup(ctx context.Context, group *models.Group) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE groups SET description = ?, category = ?, active = ? WHERE id = ?",
		group.Description, group.Category, group.Active, group.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	return expectOneRow(res, fmt.Errorf("group %s: %w", group.ID, storage.ErrNotFound))
}

// GetMembership retrieves the (group, user) membership row.
func (t *tx) GetMembership(ctx context.Context, groupID, userID string) (*models.Membership, error) {
	m := &models.Membership{}
	var joinedAt int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT group_id, user_id, role, active, joined_at FROM memberships WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	).Scan(&m.GroupID, &m.UserID, &m.Role, &m.Active, &joinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("membership %s/%s: %w", groupID, userID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.JoinedAt = fromNanos(joinedAt)
	return m, nil
}

// InsertMembership adds a membership row.
func (t *tx) InsertMembership(ctx context.Context, m *models.Membership) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO memberships (group_id, user_id, role, active, joined_at) VALUES (?, ?, ?, ?, ?)",
		m.GroupID, m.UserID, string(m.Role), m.Active, toNanos(m.JoinedAt),
	)
	if isConstraintViolation(err) {
		return fmt.Errorf("membership %s/%s: %w", m.GroupID, m.UserID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// UpdateMembership overwrites role, active and joined_at.
func (t *tx) UpdateMembership(ctx context.Context, m *models.Membership) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE memberships SET role = ?, active = ?, joined_at = ? WHERE group_id = ? AND user_id = ?",
		string(m.Role), m.Active, toNanos(m.JoinedAt), m.GroupID, m.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	return expectOneRow(res, fmt.Errorf("membership %s/%s: %w", m.GroupID, m.UserID, storage.ErrNotFound))
}

// ListMemberships lists a group's memberships in join order.
func (t *tx) ListMemberships(ctx context.Context, groupID string, activeOnly bool) ([]models.Membership, error) {
	query := "SELECT group_id, user_id, role, active, joined_at FROM memberships WHERE group_id = ?"
	if activeOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY joined_at, user_id"

	rows, err := t.tx.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return scanMemberships(rows)
}

// ListMembershipsByUser lists the active memberships of a user.
func (t *tx) ListMembershipsByUser(ctx context.Context, userID string) ([]models.Membership, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT group_id, user_id, role, active, joined_at FROM memberships
		 WHERE user_id = ? AND active = 1 ORDER BY joined_at, group_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships by user: %w", err)
	}
	return scanMemberships(rows)
}

func scanMemberships(rows *sql.Rows) ([]models.Membership, error) {
	defer rows.Close()

	var out []models.Membership
	for rows.Next() {
		var m models.Membership
		var joinedAt int64
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &m.Active, &joinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.JoinedAt = fromNanos(joinedAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return out, nil
}

// expectOneRow returns notFound when the statement touched no row.
func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
