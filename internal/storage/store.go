// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/roommates/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrAlreadyInGroup is returned when a user is already a member of some group.
	ErrAlreadyInGroup = errors.New("storage: user already in a group")

	// ErrGroupFull is returned when adding a member would exceed capacity.
	ErrGroupFull = errors.New("storage: group is full")

	// ErrStaleOwner is returned when a compare-and-swap on the owner fails
	// because the owner changed or the new owner is no longer a member.
	ErrStaleOwner = errors.New("storage: owner changed concurrently")

	// ErrDuplicate is returned when a unique key (invite code, email,
	// assignment week) is already taken.
	ErrDuplicate = errors.New("storage: duplicate key")
)

// GroupStore persists groups and their member lists.
// Members are always returned ordered by join date, oldest first.
type GroupStore interface {
	// CreateGroup persists a new group with its initial members.
	// group.ID and group.CreatedAt are populated by the store when empty.
	// Returns ErrAlreadyInGroup if any member is in another group and
	// ErrDuplicate if the invite code is taken.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group by ID. Returns ErrNotFound when missing.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// GetGroupByInviteCode retrieves a group by invite code.
	GetGroupByInviteCode(ctx context.Context, code string) (*models.Group, error)

	// GetGroupByMember retrieves the group userID belongs to.
	GetGroupByMember(ctx context.Context, userID string) (*models.Group, error)

	// ListGroups retrieves all groups.
	ListGroups(ctx context.Context) ([]*models.Group, error)

	// AddMember appends a member if the group has fewer than capacity members.
	// Returns ErrGroupFull or ErrAlreadyInGroup on violation.
	AddMember(ctx context.Context, groupID string, member models.Member, capacity int) error

	// RemoveMember removes userID from the group in one transaction. When
	// newOwnerID is non-empty ownership moves to that member in the same
	// transaction (ErrStaleOwner if they are not a member). When no members
	// remain the group and its tasks are deleted. Returns the number of
	// remaining members; ErrNotFound if userID was not a member.
	RemoveMember(ctx context.Context, groupID, userID, newOwnerID string) (remaining int, err error)

	// UpdateOwner moves ownership from fromOwnerID to toOwnerID if the owner
	// is still fromOwnerID and toOwnerID is a member. Returns ErrStaleOwner
	// otherwise and ErrNotFound when the group does not exist.
	UpdateOwner(ctx context.Context, groupID, fromOwnerID, toOwnerID string) error

	// RenameGroup updates the group's display name.
	RenameGroup(ctx context.Context, groupID, name string) error
}

// UserDirectory resolves user references to their current records.
type UserDirectory interface {
	// GetUser retrieves a user by ID. Returns nil and no error when the user
	// does not exist; an error means the lookup itself failed.
	GetUser(ctx context.Context, userID string) (*models.User, error)

	// SetGroupName updates the cached group name of every listed user.
	SetGroupName(ctx context.Context, userIDs []string, groupName string) error
}

// UserStore is the account side of the user directory.
type UserStore interface {
	UserDirectory

	// CreateUser persists a new user. Returns ErrDuplicate if the email is taken.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByEmail retrieves a user by email. Returns nil and no error when missing.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// DeleteUser removes a user record. Group references are left untouched.
	DeleteUser(ctx context.Context, userID string) error
}

// TaskStore persists tasks and their assignments.
type TaskStore interface {
	// CreateTask persists a new task. task.ID and task.CreatedAt are
	// populated by the store when empty.
	CreateTask(ctx context.Context, task *models.Task) error

	// GetTask retrieves a task with all its assignments.
	GetTask(ctx context.Context, taskID string) (*models.Task, error)

	// ListTasksByGroup retrieves the tasks of a group in creation order.
	ListTasksByGroup(ctx context.Context, groupID string) ([]*models.Task, error)

	// SaveTask overwrites a task's fields and replaces its assignments.
	// Returns ErrDuplicate if two assignments share (user, week).
	SaveTask(ctx context.Context, task *models.Task) error

	// DeleteTask removes a task and its assignments.
	DeleteTask(ctx context.Context, taskID string) error
}

// Store bundles every storage capability behind one backend.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	GroupStore
	UserStore
	TaskStore

	// Close releases any resources held by the store.
	Close() error
}
