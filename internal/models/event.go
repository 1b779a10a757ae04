package models

import "time"

// EventType names an outbound notification.
type EventType string

const (
	EventInvitationIssued   EventType = "invitation_issued"
	EventInvitationAccepted EventType = "invitation_accepted"
	EventInvitationRejected EventType = "invitation_rejected"
)

// Event is emitted after an invitation state change commits.
type Event struct {
	Type         EventType `json:"type"`
	InvitationID string    `json:"invitationId"`
	GroupID      string    `json:"groupId"`
	UserID       string    `json:"userId"`
	OccurredAt   time.Time `json:"occurredAt"`
}
