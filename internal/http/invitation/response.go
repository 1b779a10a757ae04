package invitation

import (
	"time"

	"github.com/mmynk/groupledger/internal/models"
)

type invitationResponse struct {
	ID        string                  `json:"id"`
	GroupID   string                  `json:"group_id"`
	UserID    string                  `json:"user_id"`
	InviterID string                  `json:"inviter_id"`
	Status    models.InvitationStatus `json:"status"`
	CreatedAt time.Time               `json:"created_at"`
	ExpiresAt *time.Time              `json:"expires_at,omitempty"`
}

func toResponse(inv *models.Invitation) invitationResponse {
	resp := invitationResponse{
		ID:        inv.ID,
		GroupID:   inv.GroupID,
		UserID:    inv.UserID,
		InviterID: inv.InviterID,
		Status:    inv.Status,
		CreatedAt: inv.CreatedAt,
	}
	if !inv.ExpiresAt.IsZero() {
		resp.ExpiresAt = &inv.ExpiresAt
	}
	return resp
}
