// Package ownership selects the successor owner of a group.
package ownership

import (
	"context"
	"slices"
	"strings"

	"github.com/mmynk/roommates/internal/models"
)

// Resolver looks up a user's current record. A nil user with a nil error
// means the user no longer exists.
type Resolver interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// ByJoinDate returns a copy of members sorted oldest first. Ties are broken
// by user ID so the order is deterministic.
func ByJoinDate(members []models.Member) []models.Member {
	sorted := slices.Clone(members)
	slices.SortStableFunc(sorted, func(a, b models.Member) int {
		if c := a.JoinDate.Compare(b.JoinDate); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return sorted
}

// Oldest returns the member with the earliest join date without resolving
// anyone.
func Oldest(members []models.Member) (models.Member, bool) {
	if len(members) == 0 {
		return models.Member{}, false
	}
	return ByJoinDate(members)[0], true
}

// SelectSuccessor returns the oldest member whose user record currently
// resolves, along with that record. ok is false when no member resolves.
//
// Members are resolved in join order and the search stops at the first hit.
// A lookup error counts as unresolvable.
func SelectSuccessor(ctx context.Context, members []models.Member, r Resolver) (successor models.Member, user *models.User, ok bool) {
	for _, m := range ByJoinDate(members) {
		u, err := r.GetUser(ctx, m.UserID)
		if err != nil || u == nil {
			continue
		}
		return m, u, true
	}
	return models.Member{}, nil, false
}
