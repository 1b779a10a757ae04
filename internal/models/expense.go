package models

import (
	"time"

	"github.com/mmynk/groupledger/internal/money"
)

// CategorySettlement marks expenses that record a settle-up payment.
const CategorySettlement = "settlement"

// Expense is a payment made by PayerID on behalf of the group.
// The sum of Shares always equals Amount exactly.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID      string
	GroupID string

	// PayerID is the member who paid the full Amount.
	PayerID string

	// CreatedBy is the member who recorded the expense.
	CreatedBy string

	Amount      money.Money
	Category    string
	Description string

	// Date is when the expense happened, as reported by the user.
	Date time.Time

	// Shares are ordered by ascending UserID.
	Shares []Share

	// Deleted expenses are kept for audit but excluded from balances.
	Deleted   bool
	DeletedAt time.Time

	// Version increases on every edit or delete.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Share is the part of an expense owed by one member.
type Share struct {
	UserID string
	Amount money.Money
}

// ShareTotal sums the shares in the expense currency.
func (e Expense) ShareTotal() money.Money {
	total := money.Zero(e.Amount.Currency)
	for _, s := range e.Shares {
		total = total.Add(s.Amount)
	}
	return total
}

// Clone returns a copy that shares no slices with e.
func (e Expense) Clone() Expense {
	out := e
	out.Shares = append([]Share(nil), e.Shares...)
	return out
}

// Transfer is one payment of a settlement plan.
type Transfer struct {
	From   string // debtor
	To     string // creditor
	Amount money.Money
}
