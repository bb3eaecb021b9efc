package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mmynk/roommates/internal/apperr"
	"github.com/mmynk/roommates/internal/ident"
	"github.com/mmynk/roommates/internal/metrics"
	"github.com/mmynk/roommates/internal/models"
	"github.com/mmynk/roommates/internal/ownership"
	"github.com/mmynk/roommates/internal/storage"
)

const (
	// PlaceholderOwnerID identifies the stand-in owner returned when no
	// member of a group resolves. It is never persisted.
	PlaceholderOwnerID = "deleted-owner"

	// PlaceholderOwnerName is the display name of the placeholder owner.
	PlaceholderOwnerName = "Deleted User"

	// maxInviteAttempts bounds invite code regeneration on collisions.
	maxInviteAttempts = 5
)

// errOwnerMissing marks an owner reference whose user no longer exists.
var errOwnerMissing = errors.New("owner record not found")

// MemberView is a member dereferenced to its display data.
type MemberView struct {
	ID       string
	Name     string
	Email    string
	Bio      string
	Rating   float64
	JoinDate time.Time
}

// GroupView is a group with owner and members dereferenced.
type GroupView struct {
	ID         string
	Name       string
	InviteCode string
	Owner      MemberView

	// OwnerPlaceholder is set when Owner is the non-persisted stand-in.
	OwnerPlaceholder bool

	// Members lists the members whose records resolved, oldest first.
	Members   []MemberView
	CreatedAt int64
}

// LeaveResult describes what happened to a group when a member left.
type LeaveResult struct {
	GroupID string

	// Deleted is set when the leaving user was the last member.
	Deleted bool

	// NewOwnerID is set when ownership moved because the owner left.
	NewOwnerID string
}

// GroupService enforces the group membership and ownership invariants:
// one group per user, at most models.MaxMembers members, and an owner that
// is always a member.
type GroupService struct {
	groups storage.GroupStore
	users  storage.UserDirectory
	opts   Options
}

// NewGroupService creates a GroupService on top of the given stores.
func NewGroupService(groups storage.GroupStore, users storage.UserDirectory, opts Options) *GroupService {
	return &GroupService{groups: groups, users: users, opts: opts.withDefaults()}
}

// CreateGroup creates a group with userID as its sole member and owner.
func (s *GroupService) CreateGroup(ctx context.Context, userID, name string) (group *models.Group, err error) {
	ctx, finish := s.opts.begin(ctx, "GroupService.CreateGroup", userAttr(userID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID)

	if err := ident.ValidateID("user_id", userID); err != nil {
		return nil, fail(logger, "CreateGroup rejected", err)
	}
	name, err = ident.NormalizeName("name", name, models.MaxNameLength)
	if err != nil {
		return nil, fail(logger, "CreateGroup rejected", err)
	}

	if err := s.ensureNoGroup(ctx, userID); err != nil {
		return nil, fail(logger, "CreateGroup rejected", err)
	}

	now := s.opts.now()
	for attempt := 1; ; attempt++ {
		code, err := ident.NewInviteCode()
		if err != nil {
			return nil, fail(logger, "CreateGroup failed", apperr.Dependency("failed to generate invite code", err))
		}
		group = &models.Group{
			Name:       name,
			InviteCode: code,
			OwnerID:    userID,
			Members:    []models.Member{{UserID: userID, JoinDate: now}},
			CreatedAt:  now.Unix(),
		}

		err = s.groups.CreateGroup(ctx, group)
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, storage.ErrDuplicate) && attempt < maxInviteAttempts:
			logger.Debug("Invite code collision, regenerating", "invite_code", code, "attempt", attempt)
			continue
		case errors.Is(err, storage.ErrAlreadyInGroup):
			return nil, fail(logger, "CreateGroup rejected", alreadyInGroup())
		default:
			return nil, fail(logger, "CreateGroup failed", apperr.Dependency("failed to create group", err))
		}
	}

	s.setGroupName(ctx, []string{userID}, group.Name)
	s.opts.Metrics.MembershipChange("create")

	logger.Info("Group created", "group_id", group.ID, "invite_code", group.InviteCode)
	return group, nil
}

// JoinGroup adds userID to the group with the given invite code.
func (s *GroupService) JoinGroup(ctx context.Context, userID, inviteCode string) (group *models.Group, err error) {
	ctx, finish := s.opts.begin(ctx, "GroupService.JoinGroup", userAttr(userID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID)

	if err := ident.ValidateID("user_id", userID); err != nil {
		return nil, fail(logger, "JoinGroup rejected", err)
	}
	code, err := ident.NormalizeInviteCode(inviteCode)
	if err != nil {
		return nil, fail(logger, "JoinGroup rejected", err)
	}

	group, err = s.groups.GetGroupByInviteCode(ctx, code)
	if err != nil {
		return nil, fail(logger, "JoinGroup rejected", lookupErr(err, apperr.CodeInviteNotFound, "invite code"))
	}
	if group.HasMember(userID) {
		return nil, fail(logger, "JoinGroup rejected",
			apperr.WithMetadata(apperr.CodeAlreadyMember, "already a member of this group",
				map[string]string{"group_id": group.ID}))
	}
	if err := s.ensureNoGroup(ctx, userID); err != nil {
		return nil, fail(logger, "JoinGroup rejected", err)
	}
	if group.IsFull() {
		return nil, fail(logger, "JoinGroup rejected", groupFull(len(group.Members)))
	}

	member := models.Member{UserID: userID, JoinDate: s.opts.now()}
	if err := s.groups.AddMember(ctx, group.ID, member, models.MaxMembers); err != nil {
		switch {
		case errors.Is(err, storage.ErrGroupFull):
			err = groupFull(models.MaxMembers)
		case errors.Is(err, storage.ErrAlreadyInGroup):
			err = alreadyInGroup()
		case errors.Is(err, storage.ErrNotFound):
			err = apperr.New(apperr.CodeInviteNotFound, "invite code not found")
		default:
			err = apperr.Dependency("failed to add member", err)
		}
		return nil, fail(logger, "JoinGroup failed", err)
	}
	group.Members = append(group.Members, member)

	s.setGroupName(ctx, []string{userID}, group.Name)
	s.opts.Metrics.MembershipChange("join")

	logger.Info("Joined group", "group_id", group.ID, "member_count", len(group.Members))
	return group, nil
}

// GetGroupForUser returns userID's group with owner and members resolved to
// display data.
//
// A broken owner reference is repaired on the way: the oldest member whose
// record resolves becomes owner and the group is persisted. When no member
// resolves, the view carries a placeholder owner that is never stored.
// Members that do not resolve are left out of the view only.
func (s *GroupService) GetGroupForUser(ctx context.Context, userID string) (view *GroupView, err error) {
	ctx, finish := s.opts.begin(ctx, "GroupService.GetGroupForUser", userAttr(userID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID)

	if err := ident.ValidateID("user_id", userID); err != nil {
		return nil, fail(logger, "GetGroupForUser rejected", err)
	}

	group, err := s.groups.GetGroupByMember(ctx, userID)
	if err != nil {
		return nil, fail(logger, "GetGroupForUser failed", lookupErr(err, apperr.CodeNotInGroup, "group"))
	}
	logger = logger.With("group_id", group.ID)

	owner, err := s.resolveOwner(ctx, group.OwnerID)
	if err != nil {
		logger.Warn("Owner reference broken, repairing", "owner_id", group.OwnerID, "error", err)
		owner, err = s.repairOwner(ctx, group)
		if err != nil {
			s.opts.Metrics.OwnerRepair(metrics.RepairFailed)
			return nil, fail(logger, "GetGroupForUser failed", err)
		}
	}

	view = &GroupView{
		ID:         group.ID,
		Name:       group.Name,
		InviteCode: group.InviteCode,
		CreatedAt:  group.CreatedAt,
	}
	if owner == nil {
		view.Owner = MemberView{ID: PlaceholderOwnerID, Name: PlaceholderOwnerName}
		view.OwnerPlaceholder = true
	}

	for _, m := range group.Members {
		var user *models.User
		if owner != nil && m.UserID == owner.ID {
			user = owner
		} else {
			user, err = s.users.GetUser(ctx, m.UserID)
			if err != nil || user == nil {
				logger.Debug("Dropping unresolvable member from view", "member_id", m.UserID, "error", err)
				continue
			}
		}
		mv := memberView(user, m.JoinDate)
		if user == owner {
			view.Owner = mv
		}
		view.Members = append(view.Members, mv)
	}
	if owner != nil && view.Owner.ID == "" {
		view.Owner = memberView(owner, time.Time{})
	}

	logger.Info("GetGroupForUser successful", "owner_id", view.Owner.ID, "member_count", len(view.Members))
	return view, nil
}

// resolveOwner dereferences the owner. The error is errOwnerMissing when the
// record is gone and the directory error when the lookup failed.
func (s *GroupService) resolveOwner(ctx context.Context, ownerID string) (*models.User, error) {
	user, err := s.users.GetUser(ctx, ownerID)
	if err != nil {
		return nil, apperr.Dependency("failed to resolve owner", err)
	}
	if user == nil {
		return nil, errOwnerMissing
	}
	return user, nil
}

// repairOwner hands ownership to the oldest resolvable member, persists the
// change and resolves the owner once more. A nil user with a nil error means
// the placeholder owner should be shown.
func (s *GroupService) repairOwner(ctx context.Context, group *models.Group) (*models.User, error) {
	logger := s.opts.Logger.With("group_id", group.ID)

	successor, user, ok := ownership.SelectSuccessor(ctx, group.Members, s.users)
	if !ok {
		logger.Warn("No resolvable member, using placeholder owner", "member_count", len(group.Members))
		s.opts.Metrics.OwnerRepair(metrics.RepairPlaceholder)
		return nil, nil
	}

	// The stored owner resolved on the second try; nothing to persist.
	if successor.UserID == group.OwnerID {
		s.opts.Metrics.OwnerRepair(metrics.RepairRecovered)
		return user, nil
	}

	err := s.groups.UpdateOwner(ctx, group.ID, group.OwnerID, successor.UserID)
	switch {
	case errors.Is(err, storage.ErrStaleOwner):
		// Someone else repaired or transferred first. Show whatever owner
		// is stored now.
		current, gerr := s.groups.GetGroup(ctx, group.ID)
		if gerr != nil {
			return nil, apperr.Dependency("failed to reload group", gerr)
		}
		group.OwnerID, group.Members = current.OwnerID, current.Members
	case err != nil:
		return nil, apperr.Dependency("failed to persist repaired owner", err)
	default:
		logger.Warn("Ownership repaired", "old_owner_id", group.OwnerID, "new_owner_id", successor.UserID)
		group.OwnerID = successor.UserID
	}

	owner, err := s.resolveOwner(ctx, group.OwnerID)
	if err != nil {
		logger.Warn("Owner still unresolvable after repair, using placeholder", "owner_id", group.OwnerID, "error", err)
		s.opts.Metrics.OwnerRepair(metrics.RepairPlaceholder)
		return nil, nil
	}
	s.opts.Metrics.OwnerRepair(metrics.RepairTransferred)
	return owner, nil
}

// UpdateGroupName renames the caller's group and refreshes every member's
// cached group name. Only the owner may rename.
func (s *GroupService) UpdateGroupName(ctx context.Context, userID, name string) (group *models.Group, err error) {
	ctx, finish := s.opts.begin(ctx, "GroupService.UpdateGroupName", userAttr(userID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID)

	if err := ident.ValidateID("user_id", userID); err != nil {
		return nil, fail(logger, "UpdateGroupName rejected", err)
	}
	name, err = ident.NormalizeName("name", name, models.MaxNameLength)
	if err != nil {
		return nil, fail(logger, "UpdateGroupName rejected", err)
	}

	group, err = s.ownedGroup(ctx, userID)
	if err != nil {
		return nil, fail(logger, "UpdateGroupName rejected", err)
	}
	if group.Name == name {
		return group, nil
	}

	if err := s.groups.RenameGroup(ctx, group.ID, name); err != nil {
		return nil, fail(logger, "UpdateGroupName failed", lookupErr(err, apperr.CodeGroupNotFound, "group"))
	}
	group.Name = name
	s.setGroupName(ctx, group.MemberIDs(), name)

	logger.Info("Group renamed", "group_id", group.ID, "name", name)
	return group, nil
}

// TransferOwnership makes newOwnerID the owner of the caller's group.
func (s *GroupService) TransferOwnership(ctx context.Context, userID, newOwnerID string) (group *models.Group, err error) {
	ctx, finish := s.opts.begin(ctx, "GroupService.TransferOwnership", userAttr(userID),
		attribute.String("new_owner.id", newOwnerID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID, "new_owner_id", newOwnerID)

	if err := validateIDs("user_id", userID, "new_owner_id", newOwnerID); err != nil {
		return nil, fail(logger, "TransferOwnership rejected", err)
	}

	group, err = s.ownedGroup(ctx, userID)
	if err != nil {
		return nil, fail(logger, "TransferOwnership rejected", err)
	}
	if group.IsOwner(newOwnerID) {
		return nil, fail(logger, "TransferOwnership rejected",
			apperr.New(apperr.CodeAlreadyOwner, "user already owns the group"))
	}
	if !group.HasMember(newOwnerID) {
		return nil, fail(logger, "TransferOwnership rejected", notAMember(newOwnerID))
	}

	if err := s.groups.UpdateOwner(ctx, group.ID, userID, newOwnerID); err != nil {
		if errors.Is(err, storage.ErrStaleOwner) {
			err = apperr.Wrap(apperr.CodeNotOwner, "ownership changed concurrently", err)
		} else {
			err = lookupErr(err, apperr.CodeGroupNotFound, "group")
		}
		return nil, fail(logger, "TransferOwnership failed", err)
	}
	group.OwnerID = newOwnerID
	s.opts.Metrics.MembershipChange("transfer")

	logger.Info("Ownership transferred", "group_id", group.ID)
	return group, nil
}

// RemoveMember removes memberID from the caller's group. Only the owner may
// remove members, and the owner cannot remove themselves.
func (s *GroupService) RemoveMember(ctx context.Context, userID, memberID string) (group *models.Group, err error) {
	ctx, finish := s.opts.begin(ctx, "GroupService.RemoveMember", userAttr(userID),
		attribute.String("member.id", memberID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID, "member_id", memberID)

	if err := validateIDs("user_id", userID, "member_id", memberID); err != nil {
		return nil, fail(logger, "RemoveMember rejected", err)
	}

	group, err = s.ownedGroup(ctx, userID)
	if err != nil {
		return nil, fail(logger, "RemoveMember rejected", err)
	}
	if group.IsOwner(memberID) {
		return nil, fail(logger, "RemoveMember rejected",
			apperr.New(apperr.CodeCannotRemoveOwner, "the owner cannot be removed"))
	}
	idx := group.MemberIndex(memberID)
	if idx < 0 {
		return nil, fail(logger, "RemoveMember rejected", memberNotFound(memberID))
	}

	if _, err := s.groups.RemoveMember(ctx, group.ID, memberID, ""); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = memberNotFound(memberID)
		} else {
			err = apperr.Dependency("failed to remove member", err)
		}
		return nil, fail(logger, "RemoveMember failed", err)
	}
	group.Members = append(group.Members[:idx], group.Members[idx+1:]...)

	s.setGroupName(ctx, []string{memberID}, "")
	s.opts.Metrics.MembershipChange("remove")

	logger.Info("Member removed", "group_id", group.ID, "member_count", len(group.Members))
	return group, nil
}

// LeaveGroup removes the caller from their group. An owner hands ownership to
// the oldest remaining member; the last member to leave deletes the group.
func (s *GroupService) LeaveGroup(ctx context.Context, userID string) (result *LeaveResult, err error) {
	ctx, finish := s.opts.begin(ctx, "GroupService.LeaveGroup", userAttr(userID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID)

	if err := ident.ValidateID("user_id", userID); err != nil {
		return nil, fail(logger, "LeaveGroup rejected", err)
	}

	group, err := s.groups.GetGroupByMember(ctx, userID)
	if err != nil {
		return nil, fail(logger, "LeaveGroup failed", lookupErr(err, apperr.CodeNotInGroup, "group"))
	}
	result = &LeaveResult{GroupID: group.ID}

	if group.IsOwner(userID) && len(group.Members) > 1 {
		result.NewOwnerID = s.successorOnLeave(ctx, group, userID)
	}

	remaining, err := s.groups.RemoveMember(ctx, group.ID, userID, result.NewOwnerID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			err = apperr.New(apperr.CodeNotInGroup, "group not found")
		default:
			err = apperr.Dependency("failed to leave group", err)
		}
		return nil, fail(logger, "LeaveGroup failed", err)
	}
	result.Deleted = remaining == 0
	if result.Deleted {
		result.NewOwnerID = ""
	}

	s.setGroupName(ctx, []string{userID}, "")
	s.opts.Metrics.MembershipChange("leave")

	logger.Info("Left group",
		"group_id", group.ID,
		"remaining", remaining,
		"deleted", result.Deleted,
		"new_owner_id", result.NewOwnerID,
	)
	return result, nil
}

// successorOnLeave picks the next owner when the owner leaves: the oldest
// resolvable remaining member, or the oldest remaining member when nobody
// resolves.
func (s *GroupService) successorOnLeave(ctx context.Context, group *models.Group, leaving string) string {
	remaining := make([]models.Member, 0, len(group.Members)-1)
	for _, m := range group.Members {
		if m.UserID != leaving {
			remaining = append(remaining, m)
		}
	}
	if successor, _, ok := ownership.SelectSuccessor(ctx, remaining, s.users); ok {
		return successor.UserID
	}
	oldest, _ := ownership.Oldest(remaining)
	return oldest.UserID
}

// ensureNoGroup fails with ALREADY_IN_GROUP when userID is in any group.
func (s *GroupService) ensureNoGroup(ctx context.Context, userID string) error {
	existing, err := s.groups.GetGroupByMember(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		return apperr.Dependency("failed to look up current group", err)
	default:
		e := alreadyInGroup()
		e.Metadata = map[string]string{"group_id": existing.ID}
		return e
	}
}

// ownedGroup loads userID's group and checks that they own it.
func (s *GroupService) ownedGroup(ctx context.Context, userID string) (*models.Group, error) {
	group, err := s.groups.GetGroupByMember(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, apperr.CodeNotInGroup, "group")
	}
	if !group.IsOwner(userID) {
		return nil, apperr.New(apperr.CodeNotOwner, "only the group owner can do this")
	}
	return group, nil
}

// setGroupName refreshes the cached group name. The membership change has
// already committed, so a failure is logged rather than returned.
func (s *GroupService) setGroupName(ctx context.Context, userIDs []string, name string) {
	if err := s.users.SetGroupName(ctx, userIDs, name); err != nil {
		s.opts.Logger.Error("Failed to update cached group name",
			"user_ids", userIDs,
			"group_name", name,
			"error", err,
		)
	}
}

func memberView(u *models.User, joined time.Time) MemberView {
	return MemberView{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Bio:      u.Bio,
		Rating:   u.Rating,
		JoinDate: joined,
	}
}

func alreadyInGroup() *apperr.Error {
	return apperr.New(apperr.CodeAlreadyInGroup, "already a member of a group")
}

func groupFull(count int) *apperr.Error {
	return apperr.WithMetadata(apperr.CodeGroupFull, "group is full", map[string]string{
		"member_count": fmt.Sprint(count),
		"capacity":     fmt.Sprint(models.MaxMembers),
	})
}

func notAMember(userID string) *apperr.Error {
	return apperr.WithMetadata(apperr.CodeNotAMember, "user is not a member of the group",
		map[string]string{"user_id": userID})
}

func memberNotFound(userID string) *apperr.Error {
	return apperr.WithMetadata(apperr.CodeMemberNotFound, "member not found",
		map[string]string{"member_id": userID})
}
