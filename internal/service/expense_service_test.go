package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/money"
	"github.com/mmynk/groupledger/internal/storage"
)

func TestRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob", "carol")

	t.Run("explicit shares", func(t *testing.T) {
		e, err := f.expenses.Record(ctx, RecordParams{
			GroupID: g.ID,
			PayerID: "alice",
			Amount:  eur(1000),
			Shares: []models.Share{
				{UserID: "carol", Amount: eur(250)},
				{UserID: "alice", Amount: eur(750)},
			},
			Description: "Groceries",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), e.Version)
		assert.Equal(t, "alice", e.CreatedBy)
		assert.Equal(t, f.clock.Now(), e.Date)
		assert.Equal(t, []models.Share{
			{UserID: "alice", Amount: eur(750)},
			{UserID: "carol", Amount: eur(250)},
		}, e.Shares)
	})

	t.Run("split among", func(t *testing.T) {
		e, err := f.expenses.Record(ctx, RecordParams{
			GroupID:    g.ID,
			PayerID:    "bob",
			Amount:     eur(1001),
			SplitAmong: []string{"carol", "bob", "alice"},
		})
		require.NoError(t, err)
		assert.Equal(t, []models.Share{
			{UserID: "alice", Amount: eur(334)},
			{UserID: "bob", Amount: eur(334)},
			{UserID: "carol", Amount: eur(333)},
		}, e.Shares)
	})
}

func TestRecordRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")
	require.NoError(t, f.members.Deactivate(ctx, g.ID, "bob"))

	even := []models.Share{{UserID: "alice", Amount: eur(500)}, {UserID: "bob", Amount: eur(500)}}

	tests := []struct {
		name    string
		params  RecordParams
		wantErr error
	}{
		{
			name:    "shares do not sum to amount",
			params:  RecordParams{GroupID: g.ID, PayerID: "alice", Amount: eur(1000), Shares: []models.Share{{UserID: "alice", Amount: eur(999)}}},
			wantErr: apperrors.ErrInvalidSplit,
		},
		{
			name:    "no shares",
			params:  RecordParams{GroupID: g.ID, PayerID: "alice", Amount: eur(1000)},
			wantErr: apperrors.ErrInvalidSplit,
		},
		{
			name:    "non-positive amount",
			params:  RecordParams{GroupID: g.ID, PayerID: "alice", Amount: eur(0), SplitAmong: []string{"alice"}},
			wantErr: apperrors.ErrInvalidArgument,
		},
		{
			name:    "shares and split among",
			params:  RecordParams{GroupID: g.ID, PayerID: "alice", Amount: eur(1000), Shares: even, SplitAmong: []string{"alice"}},
			wantErr: apperrors.ErrInvalidArgument,
		},
		{
			name:    "foreign currency",
			params:  RecordParams{GroupID: g.ID, PayerID: "alice", Amount: money.New(1000, "usd"), SplitAmong: []string{"alice"}},
			wantErr: apperrors.ErrInvalidArgument,
		},
		{
			name:    "payer not a member",
			params:  RecordParams{GroupID: g.ID, PayerID: "eve", Amount: eur(1000), SplitAmong: []string{"alice"}},
			wantErr: apperrors.ErrPayerNotMember,
		},
		{
			name:    "deactivated payer",
			params:  RecordParams{GroupID: g.ID, PayerID: "bob", Amount: eur(1000), SplitAmong: []string{"alice"}},
			wantErr: apperrors.ErrPayerNotMember,
		},
		{
			name:    "deactivated share holder",
			params:  RecordParams{GroupID: g.ID, PayerID: "alice", Amount: eur(1000), Shares: even},
			wantErr: apperrors.ErrShareUserNotMember,
		},
		{
			name:    "missing group",
			params:  RecordParams{GroupID: "missing", PayerID: "alice", Amount: eur(1000), SplitAmong: []string{"alice"}},
			wantErr: apperrors.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.expenses.Record(ctx, tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	list, err := f.expenses.ListForGroup(ctx, g.ID, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, list, "rejected expenses leave nothing behind")
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob", "carol")

	e, err := f.expenses.Record(ctx, RecordParams{GroupID: g.ID, PayerID: "alice", Amount: eur(9000), SplitAmong: []string{"alice", "bob", "carol"}})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	amount := eur(1000)
	desc := "Dinner"
	edited, err := f.expenses.Edit(ctx, EditParams{
		GroupID:     g.ID,
		ExpenseID:   e.ID,
		Version:     1,
		Amount:      &amount,
		Shares:      []models.Share{{UserID: "bob", Amount: eur(1000)}},
		Description: &desc,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), edited.Version)
	assert.Equal(t, eur(1000), edited.Amount)
	assert.Equal(t, "Dinner", edited.Description)
	assert.Equal(t, f.clock.Now(), edited.UpdatedAt)
	assert.Equal(t, []models.Share{{UserID: "bob", Amount: eur(1000)}}, edited.Shares)

	got, err := f.expenses.GetExpense(ctx, g.ID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, edited, got)

	t.Run("stale version", func(t *testing.T) {
		_, err := f.expenses.Edit(ctx, EditParams{GroupID: g.ID, ExpenseID: e.ID, Version: 1, Description: &desc})
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("amount without shares", func(t *testing.T) {
		_, err := f.expenses.Edit(ctx, EditParams{GroupID: g.ID, ExpenseID: e.ID, Amount: &amount})
		assert.ErrorIs(t, err, apperrors.ErrInvalidSplit)
	})

	t.Run("invalid shares keep the old version", func(t *testing.T) {
		_, err := f.expenses.Edit(ctx, EditParams{
			GroupID: g.ID, ExpenseID: e.ID,
			Shares: []models.Share{{UserID: "bob", Amount: eur(999)}},
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidSplit)

		got, err := f.expenses.GetExpense(ctx, g.ID, e.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("payer must be a member", func(t *testing.T) {
		_, err := f.expenses.Edit(ctx, EditParams{GroupID: g.ID, ExpenseID: e.ID, PayerID: "eve"})
		assert.ErrorIs(t, err, apperrors.ErrPayerNotMember)
	})

	t.Run("wrong group", func(t *testing.T) {
		other := f.group(t, "alice")
		_, err := f.expenses.Edit(ctx, EditParams{GroupID: other.ID, ExpenseID: e.ID, Description: &desc})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

// racingStore makes the first conditional write of each Update lose, as if
// another writer got there first.
type racingStore struct {
	storage.Store
	losses int
}

func (s *racingStore) Update(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.Store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, &racingTx{Tx: tx, store: s})
	})
}

type racingTx struct {
	storage.Tx
	store *racingStore
}

func (t *racingTx) ReplaceExpense(ctx context.Context, e *models.Expense, expectedVersion int64) error {
	if t.store.losses > 0 {
		t.store.losses--
		return storage.ErrConflict
	}
	return t.Tx.ReplaceExpense(ctx, e, expectedVersion)
}

func TestEditRetriesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")

	e, err := f.expenses.Record(ctx, RecordParams{GroupID: g.ID, PayerID: "alice", Amount: eur(1000), SplitAmong: []string{"alice", "bob"}})
	require.NoError(t, err)

	racing := &racingStore{Store: f.store}
	svc := NewExpenseService(racing, WithClock(f.clock.Now))
	desc := "Taxi"

	racing.losses = 1
	edited, err := svc.Edit(ctx, EditParams{GroupID: g.ID, ExpenseID: e.ID, Description: &desc})
	require.NoError(t, err, "one lost race is retried")
	assert.Equal(t, int64(2), edited.Version)

	racing.losses = 2
	_, err = svc.Edit(ctx, EditParams{GroupID: g.ID, ExpenseID: e.ID, Description: &desc})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")

	e, err := f.expenses.Record(ctx, RecordParams{GroupID: g.ID, PayerID: "alice", Amount: eur(1000), SplitAmong: []string{"alice", "bob"}})
	require.NoError(t, err)

	require.NoError(t, f.expenses.Delete(ctx, g.ID, e.ID))
	require.NoError(t, f.expenses.Delete(ctx, g.ID, e.ID), "deleting twice is a no-op")

	got, err := f.expenses.GetExpense(ctx, g.ID, e.ID)
	require.NoError(t, err, "deleted expenses stay readable")
	assert.True(t, got.Deleted)
	assert.Equal(t, int64(2), got.Version)

	list, err := f.expenses.ListForGroup(ctx, g.ID, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, list)

	desc := "too late"
	_, err = f.expenses.Edit(ctx, EditParams{GroupID: g.ID, ExpenseID: e.ID, Description: &desc})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.ErrorIs(t, f.expenses.Delete(ctx, g.ID, "missing"), apperrors.ErrNotFound)
}

func TestListForGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")

	day := func(d int) time.Time { return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC) }
	for _, d := range []int{3, 1, 2} {
		_, err := f.expenses.Record(ctx, RecordParams{
			GroupID: g.ID, PayerID: "alice", Amount: eur(int64(d) * 100),
			SplitAmong: []string{"alice", "bob"}, Date: day(d),
		})
		require.NoError(t, err)
	}

	all, err := f.expenses.ListForGroup(ctx, g.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, day(1), all[0].Date)
	assert.Equal(t, day(3), all[2].Date)

	upTo, err := f.expenses.ListForGroup(ctx, g.ID, day(2))
	require.NoError(t, err)
	assert.Len(t, upTo, 2)

	_, err = f.expenses.ListForGroup(ctx, "missing", time.Time{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRecordPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")

	p, err := f.expenses.RecordPayment(ctx, PaymentParams{GroupID: g.ID, FromID: "bob", ToID: "alice", Amount: eur(1500)})
	require.NoError(t, err)
	assert.Equal(t, models.CategorySettlement, p.Category)
	assert.Equal(t, "bob", p.PayerID)
	assert.Equal(t, "Settle up", p.Description)
	assert.Equal(t, []models.Share{{UserID: "alice", Amount: eur(1500)}}, p.Shares)

	_, err = f.expenses.RecordPayment(ctx, PaymentParams{GroupID: g.ID, FromID: "bob", ToID: "bob", Amount: eur(1500)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = f.expenses.RecordPayment(ctx, PaymentParams{GroupID: g.ID, FromID: "bob", ToID: "eve", Amount: eur(1500)})
	assert.ErrorIs(t, err, apperrors.ErrShareUserNotMember)
}
