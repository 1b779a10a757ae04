package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/calculator"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/money"
	"github.com/mmynk/groupledger/internal/storage"
)

// BalanceService derives balances and settlement plans from the ledger.
// Nothing it computes is stored.
type BalanceService struct {
	deps
}

// NewBalanceService creates a BalanceService with the given storage backend.
func NewBalanceService(store storage.Store, opts ...Option) *BalanceService {
	return &BalanceService{deps: newDeps(store, opts)}
}

// snapshot is the part of the ledger balances are computed from, read in one
// consistent view.
type snapshot struct {
	group    *models.Group
	members  []string
	expenses []models.Expense
}

func (s *BalanceService) snapshot(ctx context.Context, groupID string) (*snapshot, error) {
	snap := &snapshot{}
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		snap.group, err = tx.GetGroup(ctx, groupID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.KindNotFound, "group %s not found", groupID)
		}
		if err != nil {
			return err
		}

		members, err := tx.ListMemberships(ctx, groupID, true)
		if err != nil {
			return err
		}
		for _, m := range members {
			snap.members = append(snap.members, m.UserID)
		}

		snap.expenses, err = tx.ListExpenses(ctx, storage.ExpenseFilter{GroupID: groupID})
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return snap, nil
}

func (s *BalanceService) balances(snap *snapshot) (map[string]money.Money, error) {
	balances, err := calculator.ComputeBalances(snap.group.Currency, snap.members, snap.expenses)
	if err != nil {
		if errors.Is(err, apperrors.ErrInternalConsistencyFault) {
			slog.Error("Ledger does not balance",
				"group_id", snap.group.ID,
				"expenses_count", len(snap.expenses),
				"error", err,
			)
			s.metrics.ConsistencyFault()
		}
		return nil, err
	}
	return balances, nil
}

// ComputeBalances returns every active member's net balance, plus former
// members that still appear in the ledger. Positive means the group owes them.
func (s *BalanceService) ComputeBalances(ctx context.Context, groupID string) (map[string]money.Money, error) {
	snap, err := s.snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return s.balances(snap)
}

// ComputeSettlement returns transfers that settle every balance of the group.
func (s *BalanceService) ComputeSettlement(ctx context.Context, groupID string) ([]models.Transfer, error) {
	balances, err := s.ComputeBalances(ctx, groupID)
	if err != nil {
		return nil, err
	}

	transfers, err := calculator.ComputeSettlement(balances)
	if err != nil {
		slog.Error("Settlement failed", "group_id", groupID, "error", err)
		s.metrics.ConsistencyFault()
		return nil, err
	}

	slog.Debug("Settlement computed", "group_id", groupID, "transfers_count", len(transfers))
	return transfers, nil
}

// Summary is one member's view of a group ledger.
type Summary struct {
	GroupID  string
	UserID   string
	Currency string

	// TotalExpenses is the sum of all non-deleted expenses except settle-up payments.
	TotalExpenses money.Money

	// Paid and Owed cover the same expenses from the user's side.
	Paid money.Money
	Owed money.Money

	// Balance includes settle-up payments. Positive means the group owes the user.
	Balance money.Money
}

// Summary returns the group totals and userID's position in them.
func (s *BalanceService) Summary(ctx context.Context, groupID, userID string) (*Summary, error) {
	snap, err := s.snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	balances, err := s.balances(snap)
	if err != nil {
		return nil, err
	}

	zero := money.Zero(snap.group.Currency)
	sum := &Summary{
		GroupID:       groupID,
		UserID:        userID,
		Currency:      snap.group.Currency,
		TotalExpenses: zero,
		Paid:          zero,
		Owed:          zero,
		Balance:       zero,
	}
	if b, ok := balances[userID]; ok {
		sum.Balance = b
	}

	for _, e := range snap.expenses {
		if e.Category == models.CategorySettlement {
			continue
		}
		if err := accumulate(&sum.TotalExpenses, e.Amount); err != nil {
			return nil, err
		}
		if e.PayerID == userID {
			if err := accumulate(&sum.Paid, e.Amount); err != nil {
				return nil, err
			}
		}
		for _, share := range e.Shares {
			if share.UserID != userID {
				continue
			}
			if err := accumulate(&sum.Owed, share.Amount); err != nil {
				return nil, err
			}
		}
	}
	return sum, nil
}

func accumulate(total *money.Money, amount money.Money) error {
	next, err := total.CheckedAdd(amount)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternalConsistencyFault, err, "summary totals")
	}
	*total = next
	return nil
}
