package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
	"github.com/mmynk/groupledger/internal/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}

func TestViewIsReadOnly(t *testing.T) {
	s := New()
	err := s.View(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateGroup(ctx, &models.Group{ID: "g1"})
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestReturnedExpensesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateExpense(ctx, &models.Expense{
			ID: "e1", GroupID: "g1", Version: 1,
			Shares: []models.Share{{UserID: "alice"}},
		})
	}))

	require.NoError(t, s.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		e, err := tx.GetExpense(ctx, "e1")
		require.NoError(t, err)
		e.Shares[0].UserID = "mallory"
		return nil
	}))

	require.NoError(t, s.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		e, err := tx.GetExpense(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "alice", e.Shares[0].UserID)
		return nil
	}))
}

func TestClosed(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())

	err := s.Update(context.Background(), func(ctx context.Context, tx storage.Tx) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	err = s.View(context.Background(), func(ctx context.Context, tx storage.Tx) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}
