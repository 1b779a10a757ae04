package invitation

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/groupledger/internal/http/render"
	"github.com/mmynk/groupledger/internal/middleware"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/service"
)

type Handler struct {
	svc *service.InvitationService
}

func NewHandler(svc *service.InvitationService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.issue)
	r.Get("/", h.listPending)
	r.Put("/{invitationID}", h.respond)
}

type issueRequest struct {
	GroupID string `json:"group_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := render.Decode(w, r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	inv, err := h.svc.Issue(r.Context(), req.GroupID, middleware.GetUserID(r.Context()), req.UserID)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusCreated, toResponse(inv))
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	invs, err := h.svc.ListPendingForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		render.Error(w, r, err)
		return
	}

	resp := make([]invitationResponse, 0, len(invs))
	for i := range invs {
		resp = append(resp, toResponse(&invs[i]))
	}
	render.JSON(w, http.StatusOK, resp)
}

type respondRequest struct {
	Action string `json:"action" validate:"required,oneof=accept reject"`
}

type membershipResponse struct {
	GroupID  string      `json:"group_id"`
	UserID   string      `json:"user_id"`
	Role     models.Role `json:"role"`
	JoinedAt time.Time   `json:"joined_at"`
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := render.Decode(w, r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	invitationID := chi.URLParam(r, "invitationID")
	actorID := middleware.GetUserID(r.Context())

	if req.Action == "reject" {
		if err := h.svc.Reject(r.Context(), invitationID, actorID); err != nil {
			render.Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	m, err := h.svc.Accept(r.Context(), invitationID, actorID)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, membershipResponse{
		GroupID:  m.GroupID,
		UserID:   m.UserID,
		Role:     m.Role,
		JoinedAt: m.JoinedAt,
	})
}
