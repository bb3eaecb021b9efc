package models

import "time"

const (
	// MaxMembers is the hard capacity of a group.
	MaxMembers = 8

	// MaxNameLength is the maximum length of group and task names in runes.
	MaxNameLength = 100
)

// Group represents a household sharing chores.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Kitchen Crew").
	Name string

	// InviteCode is the 4-character code other users join with.
	// Generated at creation and never changed.
	InviteCode string

	// OwnerID is the user ID of the owner. Always one of Members.
	OwnerID string

	// Members is the set of users in the group, ordered by JoinDate.
	Members []Member

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64
}

// Member is a user's membership in a group.
type Member struct {
	UserID   string
	JoinDate time.Time
}

// HasMember reports whether userID is in the group.
func (g *Group) HasMember(userID string) bool {
	return g.MemberIndex(userID) >= 0
}

// MemberIndex returns the position of userID in Members, or -1.
func (g *Group) MemberIndex(userID string) int {
	for i, m := range g.Members {
		if m.UserID == userID {
			return i
		}
	}
	return -1
}

// MemberIDs returns the user IDs of all members in list order.
func (g *Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.UserID
	}
	return ids
}

// IsOwner reports whether userID owns the group.
func (g *Group) IsOwner(userID string) bool {
	return g.OwnerID == userID
}

// IsFull reports whether the group has reached MaxMembers.
func (g *Group) IsFull() bool {
	return len(g.Members) >= MaxMembers
}
