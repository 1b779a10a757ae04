// Package storagetest holds the behavioral contract every storage.Store
// backend must satisfy. Backends call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/money"
	"github.com/mmynk/groupledger/internal/storage"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the contract against stores produced by newStore.
// Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("Groups", func(t *testing.T) { testGroups(t, newStore(t)) })
	t.Run("Memberships", func(t *testing.T) { testMemberships(t, newStore(t)) })
	t.Run("Invitations", func(t *testing.T) { testInvitations(t, newStore(t)) })
	t.Run("Expenses", func(t *testing.T) { testExpenses(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("Cancelled", func(t *testing.T) { testCancelled(t, newStore(t)) })
}

func update(t *testing.T, s storage.Store, fn func(ctx context.Context, tx storage.Tx) error) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), fn))
}

func view(t *testing.T, s storage.Store, fn func(ctx context.Context, tx storage.Tx) error) {
	t.Helper()
	require.NoError(t, s.View(context.Background(), fn))
}

func seedGroup(t *testing.T, s storage.Store, id string) {
	t.Helper()
	update(t, s, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateGroup(ctx, &models.Group{
			ID: id, Description: "Flat", Category: "home", Currency: "eur",
			CreatorID: "alice", Active: true, CreatedAt: base,
		})
	})
}

func testGroups(t *testing.T, s storage.Store) {
	seedGroup(t, s, "g1")

	view(t, s, func(ctx context.Context, tx storage.Tx) error {
		g, err := tx.GetGroup(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "Flat", g.Description)
		assert.Equal(t, "eur", g.Currency)
		assert.True(t, g.Active)
		assert.True(t, g.CreatedAt.Equal(base))

		_, err = tx.GetGroup(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	})

	update(t, s, func(ctx context.Context, tx storage.Tx) error {
		return tx.UpdateGroup(ctx, &models.Group{ID: "g1", Description: "Flat 3B", Category: "work", Active: false})
	})
	view(t, s, func(ctx context.Context, tx storage.Tx) error {
		g, err := tx.GetGroup(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "Flat 3B", g.Description)
		assert.Equal(t, "work", g.Category)
		assert.False(t, g.Active)
		assert.Equal(t, "alice", g.CreatorID)
		return nil
	})

	err := s.Update(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.UpdateGroup(ctx, &models.Group{ID: "missing"})
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testMemberships(t *testing.T, s storage.Store) {
	seedGroup(t, s, "g1")
	seedGroup(t, s, "g2")

	update(t, s, func(ctx context.Context, tx storage.Tx) error {
		for i, id := range []string{"carol", "alice", "bob"} {
			role := models.RoleMember
			if id == "alice" {
				role = models.RoleAdmin
			}
			if err := tx.InsertMembership(ctx, &models.Membership{
				GroupID: "g1", UserID: id, Role: role, Active: true,
				JoinedAt: base.Add(time.Duration(i) * time.Minute),
			}); err != nil {
				return err
			}
		}
		return tx.InsertMembership(ctx, &models.Membership{
			GroupID: "g2", UserID: "alice", Role: models.RoleAdmin, Active: true, JoinedAt: base,
		})
	})

	err := s.Update(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertMembership(ctx, &models.Membership{GroupID: "g1", UserID: "bob", Role: models.RoleMember, Active: true, JoinedAt: base})
	})
	assert.ErrorIs(t, err, storage.ErrConflict)

	update(t, s, func(ctx context.Context, tx storage.Tx) error {
		m, err := tx.GetMembership(ctx, "g1", "carol")
		require.NoError(t, err)
		m.Active = false
		return tx.UpdateMembership(ctx, m)
	})

	view(t, s, func(ctx context.Context, tx storage.Tx) error {
		active, err := tx.ListMemberships(ctx, "g1", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, userIDs(active))

		all, err := tx.ListMemberships(ctx, "g1", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"carol", "alice", "bob"}, userIDs(all))

		byUser, err := tx.ListMembershipsByUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, byUser, 2)
		assert.Equal(t, models.RoleAdmin, byUser[0].Role)

		byUser, err = tx.ListMembershipsByUser(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, byUser)

		_, err = tx.GetMembership(ctx, "g1", "dave")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	})

	err = s.Update(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.UpdateMembership(ctx, &models.Membership{GroupID: "g1", UserID: "dave", Role: models.RoleMember})
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testInvitations(t *testing.T, s storage.Store) {
	seedGroup(t, s, "g1")

	pending := func(id string, created time.Time) *models.Invitation {
		return &models.Invitation{
			ID: id, GroupID: "g1", UserID: "bob", InviterID: "alice",
			Status: models.StatusPending, Active: true, CreatedAt: created,
		}
	}

	update(t, s, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateInvitation(ctx, pending("inv-1", base))
	})

	err := s.Update(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateInvitation(ctx, pending("inv-2", base))
	})
	assert.ErrorIs(t, err, storage.ErrConflict, "second pending invitation for the same pair")

	view(t, s, func(ctx context.Context, tx storage.Tx) error {
		inv, err := tx.FindPendingInvitation(ctx, "g1", "bob")
		require.NoError(t, err)
		assert.Equal(t, "inv-1", inv.ID)

		_, err = tx.FindPendingInvitation(ctx, "g1", "carol")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	})

	respondedAt := base.Add(time.Hour)
	update(t, s, func(ctx context.Context, tx storage.Tx) error {
		return tx.SwapInvitationStatus(ctx, "inv-1", models.StatusPending, models.StatusRejected, false, respondedAt)
	})

	err = s.Update(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.SwapInvitationStatus(ctx, "inv-1", models.StatusPending, models.StatusAccepted, true, respondedAt)
	})
	assert.ErrorIs(t, err, storage.ErrConflict, "swap from a status the row is no longer in")

	err = s.Update(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.SwapInvitationStatus(ctx, "missing", models.StatusPending, models.StatusAccepted, true, respondedAt)
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Once the first is terminal a new pending invitation is allowed.
	update(t, s, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.CreateInvitation(ctx, pending("inv-3", base.Add(2*time.Hour))); err != nil {
			return err
		}
		inv := pending("inv-0", base.Add(time.Minute))
		inv.GroupID = "g1"
		inv.UserID = "bob"
		inv.Status = models.StatusAccepted
		return tx.CreateInvitation(ctx, inv)
	})

	view(t, s, func(ctx context.Context, tx storage.Tx) error {
		inv, err := tx.GetInvitation(ctx, "inv-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, inv.Status)
		assert.False(t, inv.Active)
		assert.True(t, inv.RespondedAt.Equal(respondedAt))

		list, err := tx.ListInvitationsByUser(ctx, "bob", models.StatusPending)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "inv-3", list[0].ID)

		list, err = tx.ListInvitationsByUser(ctx, "bob", models.StatusRejected)
		require.NoError(t, err)
		assert.Empty(t, list, "inactive rows are hidden")
		return nil
	})
}

func testExpenses(t *testing.T, s storage.Store) {
	seedGroup(t, s, "g1")
	seedGroup(t, s, "g2")

	eur := func(minor int64) money.Money { return money.New(minor, "eur") }
	expense := func(id, group string, day int) *models.Expense {
		return &models.Expense{
			ID: id, GroupID: group, PayerID: "alice", CreatedBy: "alice",
			Amount: eur(9000), Category: "food", Description: id,
			Date:    base.AddDate(0, 0, day),
			Shares:  []models.Share{{UserID: "alice", Amount: eur(3000)}, {UserID: "bob", Amount: eur(3000)}, {UserID: "carol", Amount: eur(3000)}},
			Version: 1, CreatedAt: base, UpdatedAt: base,
		}
	}

	update(t, s, func(ctx context.Context, tx storage.Tx) error {
		for _, e := range []*models.Expense{
			expense("e-b", "g1", 2),
			expense("e-a", "g1", 2),
			expense("e-c", "g1", 1),
			expense("e-z", "g2", 0),
		} {
			if err := tx.CreateExpense(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})

	view(t, s, func(ctx context.Context, tx storage.Tx) error {
		e, err := tx.GetExpense(ctx, "e-a")
		require.NoError(t, err)
		assert.Equal(t, eur(9000), e.Amount)
		require.Len(t, e.Shares, 3)
		assert.Equal(t, "alice", e.Shares[0].UserID)
		assert.Equal(t, eur(9000), e.ShareTotal())

		list, err := tx.ListExpenses(ctx, storage.ExpenseFilter{GroupID: "g1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"e-c", "e-a", "e-b"}, expenseIDs(list))

		list, err = tx.ListExpenses(ctx, storage.ExpenseFilter{GroupID: "g1", AsOf: base.AddDate(0, 0, 1)})
		require.NoError(t, err)
		assert.Equal(t, []string{"e-c"}, expenseIDs(list))

		_, err = tx.GetExpense(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	})

	// Replace amount and shares atomically.
	update(t, s, func(ctx context.Context, tx storage.Tx) error {
		e, err := tx.GetExpense(ctx, "e-a")
		require.NoError(t, err)
		e.Amount = eur(1001)
		e.Shares = []models.Share{{UserID: "alice", Amount: eur(334)}, {UserID: "bob", Amount: eur(667)}}
		e.Version = 2
		return tx.ReplaceExpense(ctx, e, 1)
	})

	err := s.Update(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		e, err := tx.GetExpense(ctx, "e-a")
		require.NoError(t, err)
		e.Version = 2
		return tx.ReplaceExpense(ctx, e, 1)
	})
	assert.ErrorIs(t, err, storage.ErrConflict, "stale version")

	err = s.Update(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.ReplaceExpense(ctx, expense("missing", "g1", 0), 1)
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Logical delete.
	update(t, s, func(ctx context.Context, tx storage.Tx) error {
		e, err := tx.GetExpense(ctx, "e-b")
		require.NoError(t, err)
		e.Deleted = true
		e.DeletedAt = base.AddDate(0, 0, 3)
		e.Version = 2
		return tx.ReplaceExpense(ctx, e, 1)
	})

	view(t, s, func(ctx context.Context, tx storage.Tx) error {
		e, err := tx.GetExpense(ctx, "e-a")
		require.NoError(t, err)
		assert.Equal(t, int64(2), e.Version)
		assert.Equal(t, eur(1001), e.Amount)
		require.Len(t, e.Shares, 2)
		assert.Equal(t, eur(667), e.Shares[1].Amount)

		list, err := tx.ListExpenses(ctx, storage.ExpenseFilter{GroupID: "g1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"e-c", "e-a"}, expenseIDs(list))

		list, err = tx.ListExpenses(ctx, storage.ExpenseFilter{GroupID: "g1", IncludeDeleted: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"e-c", "e-a", "e-b"}, expenseIDs(list))

		deleted, err := tx.GetExpense(ctx, "e-b")
		require.NoError(t, err)
		assert.True(t, deleted.Deleted)
		return nil
	})
}

func testRollback(t *testing.T, s storage.Store) {
	seedGroup(t, s, "g1")
	boom := errors.New("boom")

	err := s.Update(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertMembership(ctx, &models.Membership{GroupID: "g1", UserID: "bob", Role: models.RoleMember, Active: true, JoinedAt: base}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	view(t, s, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.GetMembership(ctx, "g1", "bob")
		assert.ErrorIs(t, err, storage.ErrNotFound, "failed transaction must leave nothing behind")
		return nil
	})
}

func testCancelled(t *testing.T, s storage.Store) {
	seedGroup(t, s, "g1")

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertMembership(ctx, &models.Membership{GroupID: "g1", UserID: "bob", Role: models.RoleMember, Active: true, JoinedAt: base}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.Error(t, err)

	view(t, s, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.GetMembership(ctx, "g1", "bob")
		assert.ErrorIs(t, err, storage.ErrNotFound, "cancelled transaction must not commit")
		return nil
	})
}

func userIDs(ms []models.Membership) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.UserID
	}
	return out
}

func expenseIDs(es []models.Expense) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}
