package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
	"github.com/mmynk/groupledger/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to create store")
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newTestStore(t)
	})
}

func TestReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "ledger.db")
	ctx := context.Background()

	store, err := New(dbPath)
	require.NoError(t, err)
	err = store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateGroup(ctx, &models.Group{ID: "g1", Description: "Trip", Currency: "eur", CreatorID: "alice", Active: true})
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Migrations are already applied; opening again must be a no-op for them.
	store, err = New(dbPath)
	require.NoError(t, err)
	defer store.Close()

	err = store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		g, err := tx.GetGroup(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "Trip", g.Description)
		assert.True(t, g.CreatedAt.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestSharesRequireExpense(t *testing.T) {
	store := newTestStore(t)

	// expense_shares references expenses; foreign keys are enforced.
	err := store.Update(context.Background(), func(ctx context.Context, stx storage.Tx) error {
		return stx.(*tx).insertShares(ctx, &models.Expense{
			ID:     "ghost",
			Shares: []models.Share{{UserID: "alice"}},
		})
	})
	assert.Error(t, err)
}
