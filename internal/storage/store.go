// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/groupledger/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrConflict is returned when a uniqueness constraint or a
	// compare-and-swap precondition fails.
	ErrConflict = errors.New("storage: conflict")
)

// Store defines the transactional boundary of the ledger.
// This abstraction allows swapping storage backends (SQLite, in-memory, ...)
// without changing the service layer.
type Store interface {
	// Update runs fn in a read-write transaction. If fn returns an error,
	// or the context ends before commit, nothing fn wrote is kept.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}

// ExpenseFilter selects expenses of one group.
type ExpenseFilter struct {
	GroupID string

	// AsOf keeps expenses dated at or before it. Zero means no bound.
	AsOf time.Time

	IncludeDeleted bool
}

// Tx is the set of primitives available inside a transaction.
// Every method sees the writes made earlier in the same transaction.
type Tx interface {
	CreateGroup(ctx context.Context, group *models.Group) error
	// GetGroup returns ErrNotFound if the group does not exist.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	// UpdateGroup overwrites description, category and active.
	UpdateGroup(ctx context.Context, group *models.Group) error

	// GetMembership returns the (group, user) row, active or not.
	GetMembership(ctx context.Context, groupID, userID string) (*models.Membership, error)
	// InsertMembership returns ErrConflict if a row exists for the pair.
	InsertMembership(ctx context.Context, m *models.Membership) error
	// UpdateMembership overwrites role, active and joined_at.
	UpdateMembership(ctx context.Context, m *models.Membership) error
	// ListMemberships orders by joined_at, then user id.
	ListMemberships(ctx context.Context, groupID string, activeOnly bool) ([]models.Membership, error)
	// ListMembershipsByUser returns the user's active memberships.
	ListMembershipsByUser(ctx context.Context, userID string) ([]models.Membership, error)

	// CreateInvitation returns ErrConflict if a pending invitation already
	// exists for the same (group, user).
	CreateInvitation(ctx context.Context, inv *models.Invitation) error
	GetInvitation(ctx context.Context, invitationID string) (*models.Invitation, error)
	// FindPendingInvitation returns ErrNotFound if there is none.
	FindPendingInvitation(ctx context.Context, groupID, userID string) (*models.Invitation, error)
	// SwapInvitationStatus moves the invitation from status from to status to
	// and sets active. It returns ErrConflict if the current status is not from.
	SwapInvitationStatus(ctx context.Context, invitationID string, from, to models.InvitationStatus, active bool, at time.Time) error
	// ListInvitationsByUser returns active invitations in status, ordered by
	// created_at then id.
	ListInvitationsByUser(ctx context.Context, userID string, status models.InvitationStatus) ([]models.Invitation, error)

	// CreateExpense persists the expense and its shares.
	CreateExpense(ctx context.Context, e *models.Expense) error
	// GetExpense returns deleted expenses too.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)
	// ReplaceExpense overwrites the expense and all of its shares if the
	// stored version equals expectedVersion, then stores e.Version.
	// It returns ErrConflict on a version mismatch.
	ReplaceExpense(ctx context.Context, e *models.Expense, expectedVersion int64) error
	// ListExpenses orders by date then id.
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]models.Expense, error)
}
