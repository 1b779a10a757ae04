package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/calculator"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/money"
	"github.com/mmynk/groupledger/internal/storage"
)

// ExpenseService records, edits and deletes the expenses of a group.
type ExpenseService struct {
	deps
}

// NewExpenseService creates an ExpenseService with the given storage backend.
func NewExpenseService(store storage.Store, opts ...Option) *ExpenseService {
	return &ExpenseService{deps: newDeps(store, opts)}
}

// RecordParams describes a new expense.
// Exactly one of Shares and SplitAmong must be set; SplitAmong divides Amount
// evenly among the listed users.
type RecordParams struct {
	GroupID     string
	PayerID     string
	CreatedBy   string // defaults to PayerID
	Amount      money.Money
	Shares      []models.Share
	SplitAmong  []string
	Category    string
	Description string
	Date        time.Time // defaults to now
}

// Record adds an expense to an active group. The payer and every share holder
// must be active members, the amount must be in the group currency, and the
// shares must sum to the amount exactly.
func (s *ExpenseService) Record(ctx context.Context, p RecordParams) (_ *models.Expense, err error) {
	defer func() { s.metrics.LedgerOp("record", outcome(err)) }()

	slog.Info("Record expense request received",
		"group_id", p.GroupID,
		"payer_id", p.PayerID,
		"amount", p.Amount.String(),
		"shares_count", len(p.Shares),
		"split_among_count", len(p.SplitAmong),
	)

	shares, err := buildShares(p.Amount, p.Shares, p.SplitAmong)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expense := &models.Expense{
		ID:          s.newID(),
		GroupID:     p.GroupID,
		PayerID:     p.PayerID,
		CreatedBy:   p.CreatedBy,
		Amount:      p.Amount,
		Category:    strings.TrimSpace(p.Category),
		Description: strings.TrimSpace(p.Description),
		Date:        p.Date,
		Shares:      shares,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if expense.CreatedBy == "" {
		expense.CreatedBy = p.PayerID
	}
	if expense.Date.IsZero() {
		expense.Date = now
	}

	err = s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := checkLedgerEntry(ctx, tx, expense); err != nil {
			return err
		}
		return tx.CreateExpense(ctx, expense)
	})
	if err != nil {
		slog.Warn("Record expense failed", "group_id", p.GroupID, "error", err)
		return nil, translate(err)
	}

	slog.Info("Expense recorded", "expense_id", expense.ID, "group_id", expense.GroupID, "amount", expense.Amount.String())
	return expense, nil
}

// buildShares validates explicit shares or computes an even split.
func buildShares(amount money.Money, shares []models.Share, splitAmong []string) ([]models.Share, error) {
	if !amount.IsPositive() {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "amount must be positive, got %s", amount)
	}
	if amount.Amount > money.MaxMinor {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "amount %s is out of range", amount)
	}
	switch {
	case len(shares) > 0 && len(splitAmong) > 0:
		return nil, apperrors.New(apperrors.KindInvalidArgument, "give either shares or split_among, not both")
	case len(splitAmong) > 0:
		return calculator.SplitEven(amount, splitAmong)
	default:
		return calculator.NormalizeShares(amount, shares)
	}
}

// checkLedgerEntry validates an expense against the current group state:
// the group is active, the currency matches, and the payer and every share
// holder are active members.
func checkLedgerEntry(ctx context.Context, tx storage.Tx, e *models.Expense) error {
	group, err := requireActiveGroup(ctx, tx, e.GroupID)
	if err != nil {
		return err
	}
	if e.Amount.Currency != group.Currency {
		return apperrors.New(apperrors.KindInvalidArgument, "group %s keeps its ledger in %q, got %q", group.ID, group.Currency, e.Amount.Currency)
	}

	payer, err := activeMembership(ctx, tx, e.GroupID, e.PayerID)
	if err != nil {
		return err
	}
	if payer == nil {
		return apperrors.New(apperrors.KindPayerNotMember, "payer %s is not a member of %s", e.PayerID, e.GroupID)
	}

	for _, share := range e.Shares {
		m, err := activeMembership(ctx, tx, e.GroupID, share.UserID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperrors.New(apperrors.KindShareUserNotMember, "user %s is not a member of %s", share.UserID, e.GroupID)
		}
	}
	return nil
}

// EditParams describes changes to an expense. Nil and empty fields are kept.
// When Amount is set, shares must be given again through Shares or SplitAmong.
type EditParams struct {
	GroupID     string
	ExpenseID   string
	Version     int64 // expected version; zero skips the check
	PayerID     string
	Amount      *money.Money
	Shares      []models.Share
	SplitAmong  []string
	Category    *string
	Description *string
	Date        *time.Time
}

// Edit replaces an expense and its shares as one unit. The write is
// conditional on the version read; a concurrent edit is retried once.
func (s *ExpenseService) Edit(ctx context.Context, p EditParams) (_ *models.Expense, err error) {
	defer func() { s.metrics.LedgerOp("edit", outcome(err)) }()

	slog.Info("Edit expense request received", "group_id", p.GroupID, "expense_id", p.ExpenseID)

	var updated *models.Expense
	err = s.withVersionRetry(ctx, p.ExpenseID, func() error {
		cur, err := s.loadLive(ctx, p.GroupID, p.ExpenseID)
		if err != nil {
			return err
		}
		if p.Version != 0 && p.Version != cur.Version {
			return apperrors.New(apperrors.KindConflict, "expense %s is at version %d, not %d", p.ExpenseID, cur.Version, p.Version)
		}

		next, err := applyEdit(cur, p, s.now())
		if err != nil {
			return err
		}

		err = s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := checkLedgerEntry(ctx, tx, next); err != nil {
				return err
			}
			return tx.ReplaceExpense(ctx, next, cur.Version)
		})
		if err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		slog.Warn("Edit expense failed", "expense_id", p.ExpenseID, "error", err)
		return nil, err
	}

	slog.Info("Expense edited", "expense_id", updated.ID, "version", updated.Version)
	return updated, nil
}

// applyEdit builds the next version of cur.
func applyEdit(cur *models.Expense, p EditParams, now time.Time) (*models.Expense, error) {
	next := cur.Clone()
	if p.PayerID != "" {
		next.PayerID = p.PayerID
	}
	if p.Amount != nil {
		next.Amount = *p.Amount
	}
	if p.Category != nil {
		next.Category = strings.TrimSpace(*p.Category)
	}
	if p.Description != nil {
		next.Description = strings.TrimSpace(*p.Description)
	}
	if p.Date != nil {
		next.Date = *p.Date
	}

	switch {
	case len(p.Shares) > 0 || len(p.SplitAmong) > 0:
		shares, err := buildShares(next.Amount, p.Shares, p.SplitAmong)
		if err != nil {
			return nil, err
		}
		next.Shares = shares
	case p.Amount != nil:
		return nil, apperrors.New(apperrors.KindInvalidSplit, "changing the amount requires new shares")
	}

	next.Version = cur.Version + 1
	next.UpdatedAt = now
	return &next, nil
}

// Delete marks an expense deleted. Deleting a deleted expense does nothing.
func (s *ExpenseService) Delete(ctx context.Context, groupID, expenseID string) (err error) {
	defer func() { s.metrics.LedgerOp("delete", outcome(err)) }()

	err = s.withVersionRetry(ctx, expenseID, func() error {
		cur, err := s.load(ctx, groupID, expenseID)
		if err != nil {
			return err
		}
		if cur.Deleted {
			return nil
		}

		now := s.now()
		next := cur.Clone()
		next.Deleted = true
		next.DeletedAt = now
		next.UpdatedAt = now
		next.Version = cur.Version + 1

		return s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
			if _, err := requireActiveGroup(ctx, tx, groupID); err != nil {
				return err
			}
			return tx.ReplaceExpense(ctx, &next, cur.Version)
		})
	})
	if err != nil {
		slog.Warn("Delete expense failed", "expense_id", expenseID, "error", err)
		return err
	}

	slog.Info("Expense deleted", "expense_id", expenseID)
	return nil
}

// withVersionRetry runs fn and runs it again once if the conditional write
// lost to a concurrent change. A second loss is reported as conflict.
func (s *ExpenseService) withVersionRetry(ctx context.Context, expenseID string, fn func() error) error {
	err := fn()
	if errors.Is(err, storage.ErrConflict) && !isKinded(err) {
		slog.Debug("Expense changed concurrently, retrying", "expense_id", expenseID)
		err = fn()
		if errors.Is(err, storage.ErrConflict) && !isKinded(err) {
			return apperrors.Wrap(apperrors.KindConflict, err, "expense %s was modified concurrently", expenseID)
		}
	}
	return translate(err)
}

// GetExpense returns an expense of the group, including deleted ones.
func (s *ExpenseService) GetExpense(ctx context.Context, groupID, expenseID string) (*models.Expense, error) {
	e, err := s.load(ctx, groupID, expenseID)
	if err != nil {
		return nil, translate(err)
	}
	return e, nil
}

func (s *ExpenseService) load(ctx context.Context, groupID, expenseID string) (*models.Expense, error) {
	var e *models.Expense
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		e, err = tx.GetExpense(ctx, expenseID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.KindNotFound, "expense %s not found", expenseID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if e.GroupID != groupID {
		return nil, apperrors.New(apperrors.KindNotFound, "expense %s not found in group %s", expenseID, groupID)
	}
	return e, nil
}

// loadLive is load for expenses that can still change.
func (s *ExpenseService) loadLive(ctx context.Context, groupID, expenseID string) (*models.Expense, error) {
	e, err := s.load(ctx, groupID, expenseID)
	if err != nil {
		return nil, err
	}
	if e.Deleted {
		return nil, apperrors.New(apperrors.KindNotFound, "expense %s was deleted", expenseID)
	}
	return e, nil
}

// ListForGroup returns the non-deleted expenses dated at or before asOf,
// ordered by date then id. A zero asOf returns every expense.
func (s *ExpenseService) ListForGroup(ctx context.Context, groupID string, asOf time.Time) ([]models.Expense, error) {
	var expenses []models.Expense
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.GetGroup(ctx, groupID); err != nil {
			return err
		}
		var err error
		expenses, err = tx.ListExpenses(ctx, storage.ExpenseFilter{GroupID: groupID, AsOf: asOf})
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return expenses, nil
}

// PaymentParams describes a settle-up payment from one member to another.
type PaymentParams struct {
	GroupID     string
	FromID      string
	ToID        string
	CreatedBy   string
	Amount      money.Money
	Description string
	Date        time.Time
}

// RecordPayment records that FromID paid ToID. It is stored as an expense in
// the settlement category paid by FromID with a single share owed by ToID, so
// it moves both balances toward zero.
func (s *ExpenseService) RecordPayment(ctx context.Context, p PaymentParams) (*models.Expense, error) {
	if p.FromID == "" || p.ToID == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "payment needs both a payer and a recipient")
	}
	if p.FromID == p.ToID {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "cannot pay yourself")
	}

	description := p.Description
	if strings.TrimSpace(description) == "" {
		description = "Settle up"
	}

	return s.Record(ctx, RecordParams{
		GroupID:     p.GroupID,
		PayerID:     p.FromID,
		CreatedBy:   p.CreatedBy,
		Amount:      p.Amount,
		Shares:      []models.Share{{UserID: p.ToID, Amount: p.Amount}},
		Category:    models.CategorySettlement,
		Description: description,
		Date:        p.Date,
	})
}
