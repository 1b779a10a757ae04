package models

import "time"

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	StatusPending  InvitationStatus = "pending"
	StatusAccepted InvitationStatus = "accepted"
	StatusRejected InvitationStatus = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s InvitationStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Invitation asks UserID to join GroupID.
//
// Status moves from pending to accepted or rejected exactly once. Active is a
// separate visibility flag: rejected and expired invitations are hidden from
// listings but the row is kept.
type Invitation struct {
	ID        string
	GroupID   string
	UserID    string // invitee
	InviterID string
	Status    InvitationStatus
	Active    bool
	CreatedAt time.Time

	// ExpiresAt is zero when the invitation never expires.
	ExpiresAt time.Time

	// RespondedAt is set on the terminal transition.
	RespondedAt time.Time
}

// Expired reports whether a pending invitation is past its expiry at now.
func (i Invitation) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Open reports whether the invitation can still be answered at now.
func (i Invitation) Open(now time.Time) bool {
	return i.Status == StatusPending && i.Active && !i.Expired(now)
}
