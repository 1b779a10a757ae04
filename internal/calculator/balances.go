package calculator

import (
	"container/heap"
	"slices"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/money"
)

// ComputeBalances computes each member's net position in a group.
// Positive = owed money, negative = owes money.
//
// Algorithm:
// - every listed member starts at zero
// - for each non-deleted expense: payer += amount, each share holder -= share
// - users that only appear in expenses (former members) get an entry too
//
// The balances of a consistent ledger sum to zero. Anything else is reported
// as an internal consistency fault together with the computed map.
func ComputeBalances(currency string, members []string, expenses []models.Expense) (map[string]money.Money, error) {
	zero := money.Zero(currency)
	balances := make(map[string]money.Money, len(members))
	for _, m := range members {
		balances[m] = zero
	}

	credit := func(user string, amount money.Money) error {
		cur, ok := balances[user]
		if !ok {
			cur = zero
		}
		next, err := cur.CheckedAdd(amount)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInternalConsistencyFault, err, "balance of %s", user)
		}
		balances[user] = next
		return nil
	}

	for _, e := range expenses {
		if e.Deleted {
			continue
		}
		if !e.Amount.SameCurrency(zero) {
			return nil, apperrors.New(apperrors.KindInternalConsistencyFault,
				"expense %s is in %q, ledger is in %q", e.ID, e.Amount.Currency, zero.Currency)
		}
		if err := credit(e.PayerID, e.Amount); err != nil {
			return nil, err
		}
		for _, s := range e.Shares {
			if !s.Amount.SameCurrency(zero) {
				return nil, apperrors.New(apperrors.KindInternalConsistencyFault,
					"share of %s in expense %s is in %q", s.UserID, e.ID, s.Amount.Currency)
			}
			if err := credit(s.UserID, s.Amount.Neg()); err != nil {
				return nil, err
			}
		}
	}

	sum := zero
	for _, b := range balances {
		var err error
		if sum, err = sum.CheckedAdd(b); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternalConsistencyFault, err, "balances sum")
		}
	}
	if !sum.IsZero() {
		return balances, apperrors.New(apperrors.KindInternalConsistencyFault,
			"balances sum to %s instead of zero", sum)
	}
	return balances, nil
}

// position is a member's outstanding credit or debt, always stored positive.
type position struct {
	user   string
	amount int64
}

// positionHeap is a max-heap on amount; equal amounts pop in ascending user order.
type positionHeap []position

func (h positionHeap) Len() int { return len(h) }
func (h positionHeap) Less(i, j int) bool {
	if h[i].amount != h[j].amount {
		return h[i].amount > h[j].amount
	}
	return h[i].user < h[j].user
}
func (h positionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *positionHeap) Push(x any)   { *h = append(*h, x.(position)) }
func (h *positionHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	*h = old[:n-1]
	return p
}

// ComputeSettlement turns balances into a list of transfers that brings every
// balance to zero.
//
// Greedy matching: the largest creditor is paid by the largest debtor, the
// smaller side is closed out and the rest goes back on its heap. Each round
// closes at least one member, so there are at most n-1 transfers. The plan is
// not guaranteed to be the global minimum.
func ComputeSettlement(balances map[string]money.Money) ([]models.Transfer, error) {
	var currency string
	var sum money.Money
	creditors := &positionHeap{}
	debtors := &positionHeap{}

	// Map iteration order is random; sort so equal inputs give equal plans.
	users := make([]string, 0, len(balances))
	for u := range balances {
		users = append(users, u)
	}
	slices.Sort(users)

	for _, u := range users {
		b := balances[u]
		if currency == "" {
			currency = b.Currency
			sum = money.Zero(currency)
		} else if b.Currency != currency {
			return nil, apperrors.New(apperrors.KindInternalConsistencyFault,
				"balance of %s is in %q, expected %q", u, b.Currency, currency)
		}
		var err error
		if sum, err = sum.CheckedAdd(b); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternalConsistencyFault, err, "balances sum")
		}
		switch {
		case b.IsPositive():
			*creditors = append(*creditors, position{user: u, amount: b.Amount})
		case b.IsNegative():
			*debtors = append(*debtors, position{user: u, amount: -b.Amount})
		}
	}
	if !sum.IsZero() {
		return nil, apperrors.New(apperrors.KindInternalConsistencyFault,
			"balances sum to %s instead of zero", sum)
	}

	heap.Init(creditors)
	heap.Init(debtors)

	var transfers []models.Transfer
	for creditors.Len() > 0 && debtors.Len() > 0 {
		c := heap.Pop(creditors).(position)
		d := heap.Pop(debtors).(position)

		amount := min(c.amount, d.amount)
		transfers = append(transfers, models.Transfer{
			From:   d.user,
			To:     c.user,
			Amount: money.New(amount, currency),
		})

		if c.amount > amount {
			heap.Push(creditors, position{user: c.user, amount: c.amount - amount})
		}
		if d.amount > amount {
			heap.Push(debtors, position{user: d.user, amount: d.amount - amount})
		}
	}
	return transfers, nil
}
