package group

import (
	"time"

	"github.com/mmynk/groupledger/internal/models"
)

type groupResponse struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Category    string      `json:"category,omitempty"`
	Currency    string      `json:"currency"`
	CreatorID   string      `json:"creator_id"`
	Active      bool        `json:"active"`
	Role        models.Role `json:"role,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

type memberResponse struct {
	UserID   string      `json:"user_id"`
	Role     models.Role `json:"role"`
	JoinedAt time.Time   `json:"joined_at"`
}

func toGroupResponse(g *models.Group, role models.Role) groupResponse {
	return groupResponse{
		ID:          g.ID,
		Description: g.Description,
		Category:    g.Category,
		Currency:    g.Currency,
		CreatorID:   g.CreatorID,
		Active:      g.Active,
		Role:        role,
		CreatedAt:   g.CreatedAt,
	}
}

func toMemberResponseList(members []models.Membership) []memberResponse {
	resp := make([]memberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, memberResponse{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt})
	}
	return resp
}

type categoryResponse struct {
	Name string `json:"name"`
}
