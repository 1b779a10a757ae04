package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/money"
	"github.com/mmynk/groupledger/internal/storage"
)

const expenseColumns = `id, group_id, payer_id, created_by, amount, currency, category, description,
	expense_date, deleted, deleted_at, version, created_at, updated_at`

// CreateExpense persists an expense together with its shares.
func (t *tx) CreateExpense(ctx context.Context, e *models.Expense) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO expenses ("+expenseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.GroupID, e.PayerID, e.CreatedBy, e.Amount.Amount, e.Amount.Currency,
		e.Category, e.Description, toNanos(e.Date), e.Deleted, toNanos(e.DeletedAt),
		e.Version, toNanos(e.CreatedAt), toNanos(e.UpdatedAt),
	)
	if isConstraintViolation(err) {
		return fmt.Errorf("expense %s: %w", e.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return t.insertShares(ctx, e)
}

func (t *tx) insertShares(ctx context.Context, e *models.Expense) error {
	for _, share := range e.Shares {
		_, err := t.tx.ExecContext(ctx,
			"INSERT INTO expense_shares (expense_id, user_id, amount) VALUES (?, ?, ?)",
			e.ID, share.UserID, share.Amount.Amount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert share: %w", err)
		}
	}
	return nil
}

// GetExpense retrieves an expense and its shares, deleted or not.
func (t *tx) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ?",
		expenseID,
	)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	if err := t.loadShares(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ReplaceExpense swaps the expense row and its shares in one step.
func (t *tx) ReplaceExpense(ctx context.Context, e *models.Expense, expectedVersion int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE expenses SET payer_id = ?, amount = ?, currency = ?, category = ?, description = ?,
		 expense_date = ?, deleted = ?, deleted_at = ?, version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		e.PayerID, e.Amount.Amount, e.Amount.Currency, e.Category, e.Description,
		toNanos(e.Date), e.Deleted, toNanos(e.DeletedAt), e.Version, toNanos(e.UpdatedAt),
		e.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		if _, err := t.GetExpense(ctx, e.ID); err != nil {
			return err
		}
		return fmt.Errorf("expense %s changed since version %d: %w", e.ID, expectedVersion, storage.ErrConflict)
	}

	if _, err := t.tx.ExecContext(ctx, "DELETE FROM expense_shares WHERE expense_id = ?", e.ID); err != nil {
		return fmt.Errorf("failed to delete shares: %w", err)
	}
	return t.insertShares(ctx, e)
}

// ListExpenses lists a group's expenses ordered by date then id.
func (t *tx) ListExpenses(ctx context.Context, filter storage.ExpenseFilter) ([]models.Expense, error) {
	query := "SELECT " + expenseColumns + " FROM expenses WHERE group_id = ?"
	args := []any{filter.GroupID}
	if !filter.IncludeDeleted {
		query += " AND deleted = 0"
	}
	if !filter.AsOf.IsZero() {
		query += " AND expense_date <= ?"
		args = append(args, toNanos(filter.AsOf))
	}
	query += " ORDER BY expense_date, id"

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	var expenses []models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, *e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	// Shares are loaded after the expense cursor is closed; the pool has a
	// single connection.
	for i := range expenses {
		if err := t.loadShares(ctx, &expenses[i]); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

func (t *tx) loadShares(ctx context.Context, e *models.Expense) error {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT user_id, amount FROM expense_shares WHERE expense_id = ? ORDER BY user_id",
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get shares: %w", err)
	}
	defer rows.Close()

	e.Shares = nil
	for rows.Next() {
		var userID string
		var amount int64
		if err := rows.Scan(&userID, &amount); err != nil {
			return fmt.Errorf("failed to scan share: %w", err)
		}
		e.Shares = append(e.Shares, models.Share{
			UserID: userID,
			Amount: money.New(amount, e.Amount.Currency),
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate shares: %w", err)
	}
	return nil
}

func scanExpense(row scanner) (*models.Expense, error) {
	e := &models.Expense{}
	var amount int64
	var currency string
	var date, deletedAt, createdAt, updatedAt int64
	if err := row.Scan(&e.ID, &e.GroupID, &e.PayerID, &e.CreatedBy, &amount, &currency,
		&e.Category, &e.Description, &date, &e.Deleted, &deletedAt, &e.Version,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.Amount = money.New(amount, currency)
	e.Date = fromNanos(date)
	e.DeletedAt = fromNanos(deletedAt)
	e.CreatedAt = fromNanos(createdAt)
	e.UpdatedAt = fromNanos(updatedAt)
	return e, nil
}
