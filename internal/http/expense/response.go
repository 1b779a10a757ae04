package expense

import (
	"slices"
	"time"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/money"
)

type shareResponse struct {
	UserID string      `json:"user_id"`
	Amount money.Money `json:"amount"`
}

type expenseResponse struct {
	ID          string          `json:"id"`
	GroupID     string          `json:"group_id"`
	PayerID     string          `json:"payer_id"`
	CreatedBy   string          `json:"created_by"`
	Amount      money.Money     `json:"amount"`
	Shares      []shareResponse `json:"shares"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
	Date        time.Time       `json:"date"`
	Version     int64           `json:"version"`
	Deleted     bool            `json:"deleted,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toExpenseResponse(e *models.Expense) expenseResponse {
	resp := expenseResponse{
		ID:          e.ID,
		GroupID:     e.GroupID,
		PayerID:     e.PayerID,
		CreatedBy:   e.CreatedBy,
		Amount:      e.Amount,
		Shares:      make([]shareResponse, 0, len(e.Shares)),
		Category:    e.Category,
		Description: e.Description,
		Date:        e.Date,
		Version:     e.Version,
		Deleted:     e.Deleted,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	for _, s := range e.Shares {
		resp.Shares = append(resp.Shares, shareResponse(s))
	}
	return resp
}

type balanceResponse struct {
	UserID  string      `json:"user_id"`
	Balance money.Money `json:"balance"`
}

type balancesResponse struct {
	GroupID  string            `json:"group_id"`
	Balances []balanceResponse `json:"balances"`
}

// toBalancesResponse lists balances by user id so responses are stable.
func toBalancesResponse(groupID string, balances map[string]money.Money) balancesResponse {
	users := make([]string, 0, len(balances))
	for u := range balances {
		users = append(users, u)
	}
	slices.Sort(users)

	resp := balancesResponse{GroupID: groupID, Balances: make([]balanceResponse, 0, len(users))}
	for _, u := range users {
		resp.Balances = append(resp.Balances, balanceResponse{UserID: u, Balance: balances[u]})
	}
	return resp
}

type transferResponse struct {
	From   string      `json:"from"`
	To     string      `json:"to"`
	Amount money.Money `json:"amount"`
}

type settlementResponse struct {
	GroupID   string             `json:"group_id"`
	Transfers []transferResponse `json:"transfers"`
}

func toSettlementResponse(groupID string, transfers []models.Transfer) settlementResponse {
	resp := settlementResponse{GroupID: groupID, Transfers: make([]transferResponse, 0, len(transfers))}
	for _, t := range transfers {
		resp.Transfers = append(resp.Transfers, transferResponse(t))
	}
	return resp
}

type summaryResponse struct {
	GroupID       string      `json:"group_id"`
	UserID        string      `json:"user_id"`
	Currency      string      `json:"currency"`
	TotalExpenses money.Money `json:"total_expenses"`
	Paid          money.Money `json:"paid"`
	Owed          money.Money `json:"owed"`
	Balance       money.Money `json:"balance"`
}
