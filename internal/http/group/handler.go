package group

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/http/render"
	"github.com/mmynk/groupledger/internal/middleware"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/service"
)

type Handler struct {
	groups  *service.GroupService
	members *service.MembershipService
}

func NewHandler(groups *service.GroupService, members *service.MembershipService) *Handler {
	return &Handler{groups: groups, members: members}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{groupID}", h.get)
	r.Put("/{groupID}", h.update)
	r.Delete("/{groupID}", h.deactivate)
	r.Get("/{groupID}/members", h.listMembers)
	r.Put("/{groupID}/members/{userID}", h.changeRole)
	r.Delete("/{groupID}/members/{userID}", h.removeMember)
}

// ListCategories returns the labels a group can be created with.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	resp := make([]categoryResponse, 0, len(models.GroupCategories))
	for _, c := range models.GroupCategories {
		resp = append(resp, categoryResponse{Name: c})
	}
	render.JSON(w, http.StatusOK, resp)
}

type createGroupRequest struct {
	Description string `json:"description" validate:"required,max=200"`
	Category    string `json:"category" validate:"omitempty,oneof=home travel couple friends work other"`
	Currency    string `json:"currency" validate:"omitempty,len=3,alpha"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := render.Decode(w, r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	g, err := h.groups.CreateGroup(r.Context(), service.CreateGroupParams{
		CreatorID:   middleware.GetUserID(r.Context()),
		Description: req.Description,
		Category:    req.Category,
		Currency:    req.Currency,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusCreated, toGroupResponse(g, models.RoleAdmin))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.ListGroupsForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		render.Error(w, r, err)
		return
	}

	resp := make([]groupResponse, 0, len(groups))
	for _, gr := range groups {
		resp = append(resp, toGroupResponse(&gr.Group, gr.Role))
	}
	render.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	m, err := h.members.Authorize(r.Context(), groupID, middleware.GetUserID(r.Context()), models.RoleMember)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	g, err := h.groups.GetGroup(r.Context(), groupID)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toGroupResponse(g, m.Role))
}

type updateGroupRequest struct {
	Description *string `json:"description,omitempty" validate:"omitempty,min=1,max=200"`
	Category    *string `json:"category,omitempty" validate:"omitempty,oneof=home travel couple friends work other"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	if _, err := h.members.Authorize(r.Context(), groupID, middleware.GetUserID(r.Context()), models.RoleAdmin); err != nil {
		render.Error(w, r, err)
		return
	}

	var req updateGroupRequest
	if err := render.Decode(w, r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	g, err := h.groups.UpdateGroup(r.Context(), groupID, service.UpdateGroupParams{
		Description: req.Description,
		Category:    req.Category,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toGroupResponse(g, models.RoleAdmin))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	if _, err := h.members.Authorize(r.Context(), groupID, middleware.GetUserID(r.Context()), models.RoleAdmin); err != nil {
		render.Error(w, r, err)
		return
	}

	if err := h.groups.DeactivateGroup(r.Context(), groupID); err != nil {
		render.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	if _, err := h.members.Authorize(r.Context(), groupID, middleware.GetUserID(r.Context()), models.RoleMember); err != nil {
		render.Error(w, r, err)
		return
	}

	members, err := h.members.ListActiveMembers(r.Context(), groupID)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toMemberResponseList(members))
}

type changeRoleRequest struct {
	Role models.Role `json:"role" validate:"required,oneof=admin member"`
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	if _, err := h.members.Authorize(r.Context(), groupID, middleware.GetUserID(r.Context()), models.RoleAdmin); err != nil {
		render.Error(w, r, err)
		return
	}

	var req changeRoleRequest
	if err := render.Decode(w, r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	if err := h.members.ChangeRole(r.Context(), groupID, chi.URLParam(r, "userID"), req.Role); err != nil {
		render.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// removeMember lets admins remove anyone and members remove themselves.
func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := chi.URLParam(r, "userID")
	actorID := middleware.GetUserID(r.Context())

	actor, err := h.members.Authorize(r.Context(), groupID, actorID, models.RoleMember)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	if userID != actorID && actor.Role != models.RoleAdmin {
		render.Error(w, r, apperrors.New(apperrors.KindNotAuthorized, "only admins can remove other members"))
		return
	}

	if err := h.members.Deactivate(r.Context(), groupID, userID); err != nil {
		render.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
