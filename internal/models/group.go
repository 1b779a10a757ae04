package models

import (
	"slices"
	"time"
)

// Role is a member's permission level inside a group.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// GroupCategories lists the labels a group may carry.
var GroupCategories = []string{"home", "travel", "couple", "friends", "work", "other"}

// ValidGroupCategory reports whether c is empty or one of GroupCategories.
func ValidGroupCategory(c string) bool {
	return c == "" || slices.Contains(GroupCategories, c)
}

// Group is a set of users sharing a ledger.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Description is the display name (e.g., "Flat 3B", "Lisbon trip").
	Description string

	// Category is one of GroupCategories, or empty.
	Category string

	// Currency is the ledger currency; every expense in the group uses it.
	Currency string

	// CreatorID is the user who created the group. The creator starts as admin.
	CreatorID string

	// Active is false once the group has been deactivated.
	Active bool

	CreatedAt time.Time
}

// Membership links a user to a group.
// There is exactly one row per (GroupID, UserID); leaving a group only
// clears Active so the member's historical shares stay attributable.
type Membership struct {
	GroupID  string
	UserID   string
	Role     Role
	Active   bool
	JoinedAt time.Time
}

// IsAdmin reports whether the membership is an active admin.
func (m Membership) IsAdmin() bool {
	return m.Active && m.Role == RoleAdmin
}

// GroupRole pairs a group with the caller's role in it.
type GroupRole struct {
	Group Group
	Role  Role
}
