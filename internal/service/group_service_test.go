package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/roommates/internal/apperr"
	"github.com/mmynk/roommates/internal/models"
	"github.com/mmynk/roommates/internal/storage"
)

var inviteCodePattern = regexp.MustCompile(`^[A-Z0-9]{4}$`)

func TestGroupService_CreateAndJoin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.newUser(t, "alice"), env.newUser(t, "bob")

	group, err := env.groups.CreateGroup(ctx, alice, "  Kitchen Crew ")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if group.Name != "Kitchen Crew" {
		t.Errorf("name: expected 'Kitchen Crew', got '%s'", group.Name)
	}
	if len(group.Members) != 1 || group.OwnerID != alice {
		t.Errorf("expected alice as sole member and owner, got owner %s and %d members", group.OwnerID, len(group.Members))
	}
	if !inviteCodePattern.MatchString(group.InviteCode) {
		t.Errorf("invite code %q is not 4 uppercase alphanumerics", group.InviteCode)
	}
	if got := env.user(t, alice).GroupName; got != "Kitchen Crew" {
		t.Errorf("alice's cached group name = %q, want 'Kitchen Crew'", got)
	}

	joined, err := env.groups.JoinGroup(ctx, bob, strings.ToLower(group.InviteCode))
	if err != nil {
		t.Fatalf("JoinGroup failed: %v", err)
	}
	if len(joined.Members) != 2 {
		t.Errorf("members: expected 2, got %d", len(joined.Members))
	}
	if got := env.user(t, bob).GroupName; got != "Kitchen Crew" {
		t.Errorf("bob's cached group name = %q, want 'Kitchen Crew'", got)
	}

	_, err = env.groups.CreateGroup(ctx, alice, "Second Flat")
	wantCode(t, err, apperr.CodeAlreadyInGroup)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("kind = %s, want CONFLICT", apperr.KindOf(err))
	}
}

func TestGroupService_CreateGroupValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.newUser(t, "alice")

	tests := []struct {
		name   string
		userID string
		group  string
		want   apperr.Code
	}{
		{"blank name", alice, "   ", apperr.CodeInvalidName},
		{"name too long", alice, strings.Repeat("x", models.MaxNameLength+1), apperr.CodeInvalidName},
		{"malformed user id", "not-an-id", "Flat", apperr.CodeInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.groups.CreateGroup(ctx, tt.userID, tt.group)
			wantCode(t, err, tt.want)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("kind = %s, want VALIDATION", apperr.KindOf(err))
			}
		})
	}

	t.Run("100 characters are accepted", func(t *testing.T) {
		if _, err := env.groups.CreateGroup(ctx, alice, strings.Repeat("é", models.MaxNameLength)); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
	})
}

func TestGroupService_JoinGroupErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := env.newUser(t, "alice"), env.newUser(t, "bob"), env.newUser(t, "carol")

	group := env.groupOf(t, "Flat A", alice, bob)
	other := env.groupOf(t, "Flat B", carol)

	t.Run("unknown code", func(t *testing.T) {
		code := "ZZZZ"
		if group.InviteCode == code || other.InviteCode == code {
			code = "YYYY"
		}
		_, err := env.groups.JoinGroup(ctx, env.newUser(t, "dan"), code)
		wantCode(t, err, apperr.CodeInviteNotFound)
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("kind = %s, want NOT_FOUND", apperr.KindOf(err))
		}
	})

	t.Run("malformed code", func(t *testing.T) {
		_, err := env.groups.JoinGroup(ctx, alice, "AB-1")
		wantCode(t, err, apperr.CodeInvalidArgument)
	})

	t.Run("already a member of this group", func(t *testing.T) {
		_, err := env.groups.JoinGroup(ctx, bob, group.InviteCode)
		wantCode(t, err, apperr.CodeAlreadyMember)
	})

	t.Run("member of another group", func(t *testing.T) {
		_, err := env.groups.JoinGroup(ctx, carol, group.InviteCode)
		wantCode(t, err, apperr.CodeAlreadyInGroup)
	})
}

func TestGroupService_JoinFullGroup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.newUser(t, "owner")
	var members []string
	for i := 1; i < models.MaxMembers; i++ {
		members = append(members, env.newUser(t, "member"+string(rune('a'+i))))
	}
	group := env.groupOf(t, "Full House", owner, members...)
	if len(group.Members) != models.MaxMembers {
		t.Fatalf("members: expected %d, got %d", models.MaxMembers, len(group.Members))
	}

	_, err := env.groups.JoinGroup(ctx, env.newUser(t, "ninth"), group.InviteCode)
	wantCode(t, err, apperr.CodeGroupFull)
	e, _ := apperr.As(err)
	if e.Metadata["member_count"] != "8" || e.Metadata["capacity"] != "8" {
		t.Errorf("metadata = %v, want member_count and capacity 8", e.Metadata)
	}
	if e.Message != "group is full" {
		t.Errorf("message = %q, want 'group is full'", e.Message)
	}
}

func TestGroupService_GetGroupForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.newUser(t, "alice"), env.newUser(t, "bob")

	t.Run("not in a group", func(t *testing.T) {
		_, err := env.groups.GetGroupForUser(ctx, alice)
		wantCode(t, err, apperr.CodeNotInGroup)
	})

	group := env.groupOf(t, "Kitchen Crew", alice, bob)

	t.Run("owner and members are dereferenced", func(t *testing.T) {
		view, err := env.groups.GetGroupForUser(ctx, bob)
		if err != nil {
			t.Fatalf("GetGroupForUser failed: %v", err)
		}
		if view.ID != group.ID || view.InviteCode != group.InviteCode {
			t.Errorf("view does not match group %s", group.ID)
		}
		if view.Owner.ID != alice || view.Owner.Name != "alice" || view.Owner.Email != "alice@example.com" {
			t.Errorf("owner = %+v, want alice", view.Owner)
		}
		if view.OwnerPlaceholder {
			t.Error("expected a real owner")
		}
		if len(view.Members) != 2 || view.Members[0].ID != alice || view.Members[1].ID != bob {
			t.Errorf("members = %+v, want alice then bob", view.Members)
		}
	})
}

func TestGroupService_OwnerRepair(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted owner passes to the oldest resolvable member", func(t *testing.T) {
		env := newTestEnv(t)
		alice, bob := env.newUser(t, "alice"), env.newUser(t, "bob")
		group := env.groupOf(t, "Kitchen Crew", alice)
		env.advance(5 * 24 * time.Hour)
		if _, err := env.groups.JoinGroup(ctx, bob, group.InviteCode); err != nil {
			t.Fatalf("JoinGroup failed: %v", err)
		}

		if err := env.store.DeleteUser(ctx, alice); err != nil {
			t.Fatalf("DeleteUser failed: %v", err)
		}

		view, err := env.groups.GetGroupForUser(ctx, bob)
		if err != nil {
			t.Fatalf("GetGroupForUser failed: %v", err)
		}
		if view.Owner.ID != bob || view.OwnerPlaceholder {
			t.Errorf("owner = %+v, want bob", view.Owner)
		}
		if len(view.Members) != 1 || view.Members[0].ID != bob {
			t.Errorf("members = %+v, want only bob", view.Members)
		}

		stored, err := env.store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if stored.OwnerID != bob {
			t.Errorf("stored owner = %s, want bob", stored.OwnerID)
		}
		if len(stored.Members) != 2 {
			t.Errorf("repair must not remove members, got %d", len(stored.Members))
		}
	})

	t.Run("earliest join date wins", func(t *testing.T) {
		env := newTestEnv(t)
		alice, bob, carol := env.newUser(t, "alice"), env.newUser(t, "bob"), env.newUser(t, "carol")
		// carol joins on day 1, bob on day 2.
		env.groupOf(t, "Flat", alice, carol, bob)
		if err := env.store.DeleteUser(ctx, alice); err != nil {
			t.Fatalf("DeleteUser failed: %v", err)
		}

		view, err := env.groups.GetGroupForUser(ctx, bob)
		if err != nil {
			t.Fatalf("GetGroupForUser failed: %v", err)
		}
		if view.Owner.ID != carol {
			t.Errorf("owner = %s, want carol", view.Owner.ID)
		}
	})

	t.Run("failing owner lookup is repaired the same way", func(t *testing.T) {
		env := newTestEnv(t)
		alice, bob := env.newUser(t, "alice"), env.newUser(t, "bob")
		group := env.groupOf(t, "Flat", alice, bob)
		env.dir.fail(alice)

		view, err := env.groups.GetGroupForUser(ctx, bob)
		if err != nil {
			t.Fatalf("GetGroupForUser failed: %v", err)
		}
		if view.Owner.ID != bob {
			t.Errorf("owner = %s, want bob", view.Owner.ID)
		}
		stored, _ := env.store.GetGroup(ctx, group.ID)
		if stored.OwnerID != bob {
			t.Errorf("stored owner = %s, want bob", stored.OwnerID)
		}
	})

	t.Run("no resolvable member yields a placeholder that is not stored", func(t *testing.T) {
		env := newTestEnv(t)
		alice, bob := env.newUser(t, "alice"), env.newUser(t, "bob")
		group := env.groupOf(t, "Flat", alice, bob)
		env.dir.fail(alice)
		env.dir.fail(bob)

		view, err := env.groups.GetGroupForUser(ctx, bob)
		if err != nil {
			t.Fatalf("GetGroupForUser failed: %v", err)
		}
		if !view.OwnerPlaceholder || view.Owner.ID != PlaceholderOwnerID || view.Owner.Name != PlaceholderOwnerName {
			t.Errorf("owner = %+v, want placeholder", view.Owner)
		}
		if view.Owner.Email != "" || view.Owner.Rating != 0 {
			t.Errorf("placeholder fields must be zero, got %+v", view.Owner)
		}
		if len(view.Members) != 0 {
			t.Errorf("members = %+v, want none", view.Members)
		}
		stored, _ := env.store.GetGroup(ctx, group.ID)
		if stored.OwnerID != alice {
			t.Errorf("stored owner = %s, want alice unchanged", stored.OwnerID)
		}
	})
}

func TestGroupService_UpdateGroupName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.newUser(t, "alice"), env.newUser(t, "bob")
	env.groupOf(t, "Flat", alice, bob)

	t.Run("only the owner can rename", func(t *testing.T) {
		_, err := env.groups.UpdateGroupName(ctx, bob, "Bob's Flat")
		wantCode(t, err, apperr.CodeNotOwner)
		if apperr.KindOf(err) != apperr.KindForbidden {
			t.Errorf("kind = %s, want FORBIDDEN", apperr.KindOf(err))
		}
	})

	t.Run("rename cascades to every member", func(t *testing.T) {
		group, err := env.groups.UpdateGroupName(ctx, alice, "Penthouse")
		if err != nil {
			t.Fatalf("UpdateGroupName failed: %v", err)
		}
		if group.Name != "Penthouse" {
			t.Errorf("name = %s, want Penthouse", group.Name)
		}
		for _, id := range []string{alice, bob} {
			if got := env.user(t, id).GroupName; got != "Penthouse" {
				t.Errorf("cached group name of %s = %q, want Penthouse", id, got)
			}
		}
	})

	t.Run("blank name is rejected", func(t *testing.T) {
		_, err := env.groups.UpdateGroupName(ctx, alice, "")
		wantCode(t, err, apperr.CodeInvalidName)
	})
}

func TestGroupService_TransferOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.newUser(t, "alice"), env.newUser(t, "bob")
	group := env.groupOf(t, "Flat", alice, bob)

	tests := []struct {
		name     string
		caller   string
		newOwner string
		want     apperr.Code
	}{
		{"caller is not the owner", bob, bob, apperr.CodeNotOwner},
		{"target already owns", alice, alice, apperr.CodeAlreadyOwner},
		{"target is not a member", alice, uuid.NewString(), apperr.CodeNotAMember},
		{"malformed target", alice, "bob", apperr.CodeInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.groups.TransferOwnership(ctx, tt.caller, tt.newOwner)
			wantCode(t, err, tt.want)
		})
	}

	t.Run("success", func(t *testing.T) {
		updated, err := env.groups.TransferOwnership(ctx, alice, bob)
		if err != nil {
			t.Fatalf("TransferOwnership failed: %v", err)
		}
		if updated.OwnerID != bob {
			t.Errorf("owner = %s, want bob", updated.OwnerID)
		}
		stored, _ := env.store.GetGroup(ctx, group.ID)
		if stored.OwnerID != bob {
			t.Errorf("stored owner = %s, want bob", stored.OwnerID)
		}
	})
}

func TestGroupService_RemoveMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := env.newUser(t, "alice"), env.newUser(t, "bob"), env.newUser(t, "carol")
	env.groupOf(t, "Flat", alice, bob, carol)

	t.Run("non-owner cannot remove", func(t *testing.T) {
		_, err := env.groups.RemoveMember(ctx, bob, carol)
		wantCode(t, err, apperr.CodeNotOwner)
	})

	t.Run("owner cannot be removed", func(t *testing.T) {
		_, err := env.groups.RemoveMember(ctx, alice, alice)
		wantCode(t, err, apperr.CodeCannotRemoveOwner)
	})

	t.Run("unknown member", func(t *testing.T) {
		_, err := env.groups.RemoveMember(ctx, alice, uuid.NewString())
		wantCode(t, err, apperr.CodeMemberNotFound)
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("kind = %s, want NOT_FOUND", apperr.KindOf(err))
		}
	})

	t.Run("success clears the cached group name", func(t *testing.T) {
		group, err := env.groups.RemoveMember(ctx, alice, bob)
		if err != nil {
			t.Fatalf("RemoveMember failed: %v", err)
		}
		if len(group.Members) != 2 || group.HasMember(bob) {
			t.Errorf("members = %v, want alice and carol", group.MemberIDs())
		}
		if got := env.user(t, bob).GroupName; got != "" {
			t.Errorf("bob's cached group name = %q, want empty", got)
		}
		if _, err := env.store.GetGroupByMember(ctx, bob); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected bob to be in no group, got %v", err)
		}
	})
}

func TestGroupService_LeaveGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("owner leaving hands ownership to the first remaining member", func(t *testing.T) {
		env := newTestEnv(t)
		alice, bob, carol := env.newUser(t, "alice"), env.newUser(t, "bob"), env.newUser(t, "carol")
		group := env.groupOf(t, "Flat", alice, bob, carol)

		res, err := env.groups.LeaveGroup(ctx, alice)
		if err != nil {
			t.Fatalf("LeaveGroup failed: %v", err)
		}
		if res.Deleted || res.NewOwnerID != bob {
			t.Errorf("result = %+v, want bob as new owner", res)
		}

		stored, err := env.store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if stored.OwnerID != bob || len(stored.Members) != 2 {
			t.Errorf("stored group owner %s with %d members, want bob with 2", stored.OwnerID, len(stored.Members))
		}
		if got := env.user(t, alice).GroupName; got != "" {
			t.Errorf("alice's cached group name = %q, want empty", got)
		}
	})

	t.Run("owner successor skips members whose account is gone", func(t *testing.T) {
		env := newTestEnv(t)
		alice, bob, carol := env.newUser(t, "alice"), env.newUser(t, "bob"), env.newUser(t, "carol")
		env.groupOf(t, "Flat", alice, bob, carol)
		if err := env.store.DeleteUser(ctx, bob); err != nil {
			t.Fatalf("DeleteUser failed: %v", err)
		}

		res, err := env.groups.LeaveGroup(ctx, alice)
		if err != nil {
			t.Fatalf("LeaveGroup failed: %v", err)
		}
		if res.NewOwnerID != carol {
			t.Errorf("new owner = %s, want carol", res.NewOwnerID)
		}
	})

	t.Run("non-owner leaving keeps the owner", func(t *testing.T) {
		env := newTestEnv(t)
		alice, bob := env.newUser(t, "alice"), env.newUser(t, "bob")
		group := env.groupOf(t, "Flat", alice, bob)

		res, err := env.groups.LeaveGroup(ctx, bob)
		if err != nil {
			t.Fatalf("LeaveGroup failed: %v", err)
		}
		if res.NewOwnerID != "" || res.Deleted {
			t.Errorf("result = %+v, want no ownership change", res)
		}
		stored, _ := env.store.GetGroup(ctx, group.ID)
		if stored.OwnerID != alice {
			t.Errorf("owner = %s, want alice", stored.OwnerID)
		}
	})

	t.Run("last member leaving deletes the group and its tasks", func(t *testing.T) {
		env := newTestEnv(t)
		alice := env.newUser(t, "alice")
		group := env.groupOf(t, "Solo", alice)
		task := &models.Task{GroupID: group.ID, Name: "Dishes", Difficulty: 1,
			Recurrence: models.RecurrenceWeekly, RequiredPeople: 1, CreatedBy: alice}
		if err := env.store.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}

		res, err := env.groups.LeaveGroup(ctx, alice)
		if err != nil {
			t.Fatalf("LeaveGroup failed: %v", err)
		}
		if !res.Deleted {
			t.Error("expected the group to be deleted")
		}
		if _, err := env.store.GetGroup(ctx, group.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetGroup after delete: %v, want ErrNotFound", err)
		}
		if _, err := env.store.GetTask(ctx, task.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetTask after delete: %v, want ErrNotFound", err)
		}
		if got := env.user(t, alice).GroupName; got != "" {
			t.Errorf("cached group name = %q, want empty", got)
		}
	})

	t.Run("not in a group", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.LeaveGroup(ctx, env.newUser(t, "alice"))
		wantCode(t, err, apperr.CodeNotInGroup)
	})
}

func TestGroupService_OneGroupPerUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := env.newUser(t, "alice"), env.newUser(t, "bob"), env.newUser(t, "carol")
	first := env.groupOf(t, "First", alice)
	second := env.groupOf(t, "Second", bob)

	if _, err := env.groups.JoinGroup(ctx, carol, first.InviteCode); err != nil {
		t.Fatalf("JoinGroup failed: %v", err)
	}
	_, err := env.groups.JoinGroup(ctx, carol, second.InviteCode)
	wantCode(t, err, apperr.CodeAlreadyInGroup)

	// Leaving frees the user to join elsewhere.
	if _, err := env.groups.LeaveGroup(ctx, carol); err != nil {
		t.Fatalf("LeaveGroup failed: %v", err)
	}
	if _, err := env.groups.JoinGroup(ctx, carol, second.InviteCode); err != nil {
		t.Fatalf("JoinGroup after leave failed: %v", err)
	}
	if got := env.user(t, carol).GroupName; got != "Second" {
		t.Errorf("cached group name = %q, want Second", got)
	}
}
