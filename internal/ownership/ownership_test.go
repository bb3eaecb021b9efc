package ownership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmynk/roommates/internal/models"
)

type fakeResolver struct {
	users  map[string]*models.User
	failed map[string]bool
	calls  []string
}

func (f *fakeResolver) GetUser(ctx context.Context, id string) (*models.User, error) {
	f.calls = append(f.calls, id)
	if f.failed[id] {
		return nil, errors.New("directory unavailable")
	}
	return f.users[id], nil
}

var day0 = time.Date(2026, 1, 4, 9, 0, 0, 0, time.UTC)

func member(id string, days int) models.Member {
	return models.Member{UserID: id, JoinDate: day0.AddDate(0, 0, days)}
}

func TestSelectSuccessor(t *testing.T) {
	live := func(ids ...string) map[string]*models.User {
		users := make(map[string]*models.User)
		for _, id := range ids {
			users[id] = &models.User{ID: id, Name: id}
		}
		return users
	}

	tests := []struct {
		name     string
		members  []models.Member
		resolver *fakeResolver
		wantID   string
		wantOK   bool
	}{
		{
			name:     "earliest join date wins regardless of list order",
			members:  []models.Member{member("b", 5), member("a", 0), member("c", 2)},
			resolver: &fakeResolver{users: live("a", "b", "c")},
			wantID:   "a",
			wantOK:   true,
		},
		{
			name:     "deleted oldest member is skipped",
			members:  []models.Member{member("a", 0), member("b", 5)},
			resolver: &fakeResolver{users: live("b")},
			wantID:   "b",
			wantOK:   true,
		},
		{
			name:     "lookup failure counts as unresolvable",
			members:  []models.Member{member("a", 0), member("b", 5), member("c", 9)},
			resolver: &fakeResolver{users: live("a", "b", "c"), failed: map[string]bool{"a": true}},
			wantID:   "b",
			wantOK:   true,
		},
		{
			name:     "equal join dates break ties by user id",
			members:  []models.Member{member("z", 1), member("m", 1)},
			resolver: &fakeResolver{users: live("m", "z")},
			wantID:   "m",
			wantOK:   true,
		},
		{
			name:     "no resolvable member",
			members:  []models.Member{member("a", 0), member("b", 1)},
			resolver: &fakeResolver{failed: map[string]bool{"b": true}},
			wantOK:   false,
		},
		{
			name:     "empty roster",
			resolver: &fakeResolver{},
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, user, ok := SelectSuccessor(context.Background(), tt.members, tt.resolver)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.UserID != tt.wantID {
				t.Errorf("successor = %s, want %s", got.UserID, tt.wantID)
			}
			if user == nil || user.ID != tt.wantID {
				t.Errorf("resolved user = %+v, want %s", user, tt.wantID)
			}
		})
	}
}

func TestSelectSuccessorStopsAtFirstHit(t *testing.T) {
	r := &fakeResolver{users: map[string]*models.User{"a": {ID: "a"}, "b": {ID: "b"}}}
	SelectSuccessor(context.Background(), []models.Member{member("b", 3), member("a", 1)}, r)

	if len(r.calls) != 1 || r.calls[0] != "a" {
		t.Errorf("calls = %v, want [a]", r.calls)
	}
}

func TestByJoinDateDoesNotMutateInput(t *testing.T) {
	members := []models.Member{member("b", 2), member("a", 1)}
	sorted := ByJoinDate(members)

	if members[0].UserID != "b" {
		t.Error("input slice was reordered")
	}
	if sorted[0].UserID != "a" {
		t.Errorf("sorted[0] = %s, want a", sorted[0].UserID)
	}
}

func TestOldest(t *testing.T) {
	if _, ok := Oldest(nil); ok {
		t.Error("expected no oldest member for empty roster")
	}
	got, ok := Oldest([]models.Member{member("b", 2), member("a", 1)})
	if !ok || got.UserID != "a" {
		t.Errorf("Oldest = %v, %v; want a", got.UserID, ok)
	}
}
