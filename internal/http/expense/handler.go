package expense

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/http/render"
	"github.com/mmynk/groupledger/internal/middleware"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/money"
	"github.com/mmynk/groupledger/internal/service"
)

// Handler serves the ledger of one group: expenses, payments and the
// balances derived from them. Every route requires an active membership.
type Handler struct {
	expenses *service.ExpenseService
	balances *service.BalanceService
	members  *service.MembershipService
}

func NewHandler(expenses *service.ExpenseService, balances *service.BalanceService, members *service.MembershipService) *Handler {
	return &Handler{expenses: expenses, balances: balances, members: members}
}

// Routes registers the ledger routes below a group path.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireMember)

		r.Post("/{groupID}/expenses", h.record)
		r.Get("/{groupID}/expenses", h.list)
		r.Get("/{groupID}/expenses/{expenseID}", h.get)
		r.Put("/{groupID}/expenses/{expenseID}", h.edit)
		r.Delete("/{groupID}/expenses/{expenseID}", h.delete)
		r.Post("/{groupID}/payments", h.recordPayment)
		r.Get("/{groupID}/balances", h.computeBalances)
		r.Get("/{groupID}/settlement", h.computeSettlement)
		r.Get("/{groupID}/summary", h.summary)
	})
}

func (h *Handler) requireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		groupID := chi.URLParam(r, "groupID")
		if _, err := h.members.Authorize(r.Context(), groupID, middleware.GetUserID(r.Context()), models.RoleMember); err != nil {
			render.Error(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type shareRequest struct {
	UserID string      `json:"user_id" validate:"required"`
	Amount money.Money `json:"amount"`
}

func toShares(req []shareRequest) []models.Share {
	if len(req) == 0 {
		return nil
	}
	shares := make([]models.Share, 0, len(req))
	for _, s := range req {
		shares = append(shares, models.Share{UserID: s.UserID, Amount: s.Amount})
	}
	return shares
}

type recordExpenseRequest struct {
	PayerID     string         `json:"payer_id"`
	Amount      money.Money    `json:"amount"`
	Shares      []shareRequest `json:"shares" validate:"omitempty,dive"`
	SplitAmong  []string       `json:"split_among" validate:"omitempty,dive,required"`
	Category    string         `json:"category" validate:"max=100"`
	Description string         `json:"description" validate:"max=500"`
	Date        *time.Time     `json:"date,omitempty"`
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var req recordExpenseRequest
	if err := render.Decode(w, r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	actorID := middleware.GetUserID(r.Context())
	params := service.RecordParams{
		GroupID:     chi.URLParam(r, "groupID"),
		PayerID:     req.PayerID,
		CreatedBy:   actorID,
		Amount:      req.Amount,
		Shares:      toShares(req.Shares),
		SplitAmong:  req.SplitAmong,
		Category:    req.Category,
		Description: req.Description,
	}
	if params.PayerID == "" {
		params.PayerID = actorID
	}
	if req.Date != nil {
		params.Date = *req.Date
	}

	e, err := h.expenses.Record(r.Context(), params)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusCreated, toExpenseResponse(e))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r.URL.Query().Get("as_of"))
	if err != nil {
		render.Error(w, r, err)
		return
	}

	expenses, err := h.expenses.ListForGroup(r.Context(), chi.URLParam(r, "groupID"), asOf)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	resp := make([]expenseResponse, 0, len(expenses))
	for i := range expenses {
		resp = append(resp, toExpenseResponse(&expenses[i]))
	}
	render.JSON(w, http.StatusOK, resp)
}

// parseAsOf accepts RFC 3339 timestamps and plain dates. A plain date covers
// the whole day.
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, apperrors.Wrap(apperrors.KindInvalidArgument, err, "as_of must be a date or an RFC 3339 timestamp")
	}
	return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	e, err := h.expenses.GetExpense(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "expenseID"))
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toExpenseResponse(e))
}

type editExpenseRequest struct {
	Version     int64          `json:"version" validate:"gte=0"`
	PayerID     string         `json:"payer_id,omitempty"`
	Amount      *money.Money   `json:"amount,omitempty"`
	Shares      []shareRequest `json:"shares,omitempty" validate:"omitempty,dive"`
	SplitAmong  []string       `json:"split_among,omitempty" validate:"omitempty,dive,required"`
	Category    *string        `json:"category,omitempty" validate:"omitempty,max=100"`
	Description *string        `json:"description,omitempty" validate:"omitempty,max=500"`
	Date        *time.Time     `json:"date,omitempty"`
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	var req editExpenseRequest
	if err := render.Decode(w, r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	e, err := h.expenses.Edit(r.Context(), service.EditParams{
		GroupID:     chi.URLParam(r, "groupID"),
		ExpenseID:   chi.URLParam(r, "expenseID"),
		Version:     req.Version,
		PayerID:     req.PayerID,
		Amount:      req.Amount,
		Shares:      toShares(req.Shares),
		SplitAmong:  req.SplitAmong,
		Category:    req.Category,
		Description: req.Description,
		Date:        req.Date,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toExpenseResponse(e))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.expenses.Delete(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "expenseID")); err != nil {
		render.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type recordPaymentRequest struct {
	FromID      string      `json:"from_id"`
	ToID        string      `json:"to_id" validate:"required"`
	Amount      money.Money `json:"amount"`
	Description string      `json:"description" validate:"max=500"`
	Date        *time.Time  `json:"date,omitempty"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := render.Decode(w, r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	actorID := middleware.GetUserID(r.Context())
	params := service.PaymentParams{
		GroupID:     chi.URLParam(r, "groupID"),
		FromID:      req.FromID,
		ToID:        req.ToID,
		CreatedBy:   actorID,
		Amount:      req.Amount,
		Description: req.Description,
	}
	if params.FromID == "" {
		params.FromID = actorID
	}
	if req.Date != nil {
		params.Date = *req.Date
	}

	e, err := h.expenses.RecordPayment(r.Context(), params)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusCreated, toExpenseResponse(e))
}

func (h *Handler) computeBalances(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	balances, err := h.balances.ComputeBalances(r.Context(), groupID)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toBalancesResponse(groupID, balances))
}

func (h *Handler) computeSettlement(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	transfers, err := h.balances.ComputeSettlement(r.Context(), groupID)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toSettlementResponse(groupID, transfers))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = middleware.GetUserID(r.Context())
	}

	sum, err := h.balances.Summary(r.Context(), chi.URLParam(r, "groupID"), userID)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, summaryResponse{
		GroupID:       sum.GroupID,
		UserID:        sum.UserID,
		Currency:      sum.Currency,
		TotalExpenses: sum.TotalExpenses,
		Paid:          sum.Paid,
		Owed:          sum.Owed,
		Balance:       sum.Balance,
	})
}
