package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/money"
)

func TestBalancesAndSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob", "carol")

	balances, err := f.balances.ComputeBalances(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]money.Money{"alice": eur(0), "bob": eur(0), "carol": eur(0)}, balances)

	_, err = f.expenses.Record(ctx, RecordParams{
		GroupID:    g.ID,
		PayerID:    "alice",
		Amount:     eur(9000),
		SplitAmong: []string{"alice", "bob", "carol"},
	})
	require.NoError(t, err)

	balances, err = f.balances.ComputeBalances(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]money.Money{"alice": eur(6000), "bob": eur(-3000), "carol": eur(-3000)}, balances)

	transfers, err := f.balances.ComputeSettlement(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Transfer{
		{From: "bob", To: "alice", Amount: eur(3000)},
		{From: "carol", To: "alice", Amount: eur(3000)},
	}, transfers)

	t.Run("payment moves balances", func(t *testing.T) {
		_, err := f.expenses.RecordPayment(ctx, PaymentParams{GroupID: g.ID, FromID: "bob", ToID: "alice", Amount: eur(3000)})
		require.NoError(t, err)

		balances, err := f.balances.ComputeBalances(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]money.Money{"alice": eur(3000), "bob": eur(0), "carol": eur(-3000)}, balances)

		transfers, err := f.balances.ComputeSettlement(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, []models.Transfer{{From: "carol", To: "alice", Amount: eur(3000)}}, transfers)
	})
}

func TestBalancesIgnoreDeletedExpenses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")

	e, err := f.expenses.Record(ctx, RecordParams{GroupID: g.ID, PayerID: "bob", Amount: eur(500), SplitAmong: []string{"alice", "bob"}})
	require.NoError(t, err)
	require.NoError(t, f.expenses.Delete(ctx, g.ID, e.ID))

	transfers, err := f.balances.ComputeSettlement(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestBalancesKeepFormerMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")

	_, err := f.expenses.Record(ctx, RecordParams{GroupID: g.ID, PayerID: "alice", Amount: eur(1000), SplitAmong: []string{"alice", "bob"}})
	require.NoError(t, err)
	require.NoError(t, f.members.Deactivate(ctx, g.ID, "bob"))

	balances, err := f.balances.ComputeBalances(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, eur(-500), balances["bob"], "history stays attributed after leaving")
	assert.Equal(t, eur(500), balances["alice"])

	transfers, err := f.balances.ComputeSettlement(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Transfer{{From: "bob", To: "alice", Amount: eur(500)}}, transfers)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")

	_, err := f.expenses.Record(ctx, RecordParams{GroupID: g.ID, PayerID: "alice", Amount: eur(1000), SplitAmong: []string{"alice", "bob"}})
	require.NoError(t, err)
	_, err = f.expenses.Record(ctx, RecordParams{
		GroupID: g.ID, PayerID: "bob", Amount: eur(300),
		Shares: []models.Share{{UserID: "alice", Amount: eur(300)}},
	})
	require.NoError(t, err)
	_, err = f.expenses.RecordPayment(ctx, PaymentParams{GroupID: g.ID, FromID: "bob", ToID: "alice", Amount: eur(200)})
	require.NoError(t, err)

	sum, err := f.balances.Summary(ctx, g.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, &Summary{
		GroupID:       g.ID,
		UserID:        "bob",
		Currency:      "eur",
		TotalExpenses: eur(1300),
		Paid:          eur(300),
		Owed:          eur(500),
		Balance:       eur(0),
	}, sum)

	outsider, err := f.balances.Summary(ctx, g.ID, "eve")
	require.NoError(t, err)
	assert.Equal(t, eur(1300), outsider.TotalExpenses)
	assert.True(t, outsider.Balance.IsZero())
}

func TestSummaryTotalsOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")

	// Opposite expenses cancel out in the balances but not in the totals.
	_, err := f.expenses.Record(ctx, RecordParams{
		GroupID: g.ID, PayerID: "alice", Amount: eur(money.MaxMinor),
		Shares: []models.Share{{UserID: "bob", Amount: eur(money.MaxMinor)}},
	})
	require.NoError(t, err)
	_, err = f.expenses.Record(ctx, RecordParams{
		GroupID: g.ID, PayerID: "bob", Amount: eur(money.MaxMinor),
		Shares: []models.Share{{UserID: "alice", Amount: eur(money.MaxMinor)}},
	})
	require.NoError(t, err)

	balances, err := f.balances.ComputeBalances(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]money.Money{"alice": eur(0), "bob": eur(0)}, balances)

	_, err = f.balances.Summary(ctx, g.ID, "alice")
	assert.ErrorIs(t, err, apperrors.ErrInternalConsistencyFault)
}

func TestRecordRejectsOutOfRangeAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")

	_, err := f.expenses.Record(ctx, RecordParams{
		GroupID: g.ID, PayerID: "alice", Amount: eur(money.MaxMinor + 1),
		SplitAmong: []string{"alice", "bob"},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestBalancesMissingGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.balances.ComputeBalances(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.balances.ComputeSettlement(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.balances.Summary(ctx, "missing", "alice")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
