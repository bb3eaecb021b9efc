// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/roommates/internal/models"
	"github.com/mmynk/roommates/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateGroup persists a new group and its initial members in one transaction.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO groups (id, name, invite_code, owner_id, created_at) VALUES (?, ?, ?, ?, ?)",
		group.ID, group.Name, group.InviteCode, group.OwnerID, group.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "groups.invite_code") {
			return fmt.Errorf("invite code %s: %w", group.InviteCode, storage.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert group: %w", err)
	}

	if err := insertMembers(ctx, tx, group.ID, group.Members); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID, including its members.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return s.getGroupWhere(ctx, "id = ?", groupID)
}

// GetGroupByInviteCode retrieves a group by its invite code.
func (s *SQLiteStore) GetGroupByInviteCode(ctx context.Context, code string) (*models.Group, error) {
	return s.getGroupWhere(ctx, "invite_code = ?", code)
}

// GetGroupByMember retrieves the group a user belongs to.
func (s *SQLiteStore) GetGroupByMember(ctx context.Context, userID string) (*models.Group, error) {
	return s.getGroupWhere(ctx, "id = (SELECT group_id FROM group_members WHERE user_id = ?)", userID)
}

// ListGroups retrieves all groups in creation order.
func (s *SQLiteStore) ListGroups(ctx context.Context) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM groups ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	groups := make([]*models.Group, 0, len(ids))
	for _, id := range ids {
		group, err := s.GetGroup(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted between the two queries.
			continue
		}
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// AddMember inserts a member only while the group is below capacity.
// The count check and insert are a single statement.
func (s *SQLiteStore) AddMember(ctx context.Context, groupID string, member models.Member, capacity int) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, join_date)
		 SELECT ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM groups WHERE id = ?)
		   AND (SELECT COUNT(*) FROM group_members WHERE group_id = ?) < ?`,
		groupID, member.UserID, member.JoinDate.UnixNano(), groupID, groupID, capacity,
	)
	if err != nil {
		if isUniqueViolation(err, "group_members.") {
			return fmt.Errorf("user %s: %w", member.UserID, storage.ErrAlreadyInGroup)
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM groups WHERE id = ?", groupID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check group existence: %w", err)
	}
	return fmt.Errorf("group %s: %w", groupID, storage.ErrGroupFull)
}

// RemoveMember removes a member, optionally hands ownership to newOwnerID and
// deletes the group when it becomes empty, all in one transaction.
func (s *SQLiteStore) RemoveMember(ctx context.Context, groupID, userID, newOwnerID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM group_members WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to remove member: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	} else if n == 0 {
		return 0, fmt.Errorf("member %s of group %s: %w", userID, groupID, storage.ErrNotFound)
	}

	var remaining int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM group_members WHERE group_id = ?", groupID,
	).Scan(&remaining); err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}

	switch {
	case remaining == 0:
		if err := deleteGroup(ctx, tx, groupID); err != nil {
			return 0, err
		}
	case newOwnerID != "":
		res, err := tx.ExecContext(ctx,
			`UPDATE groups SET owner_id = ? WHERE id = ?
			 AND EXISTS (SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?)`,
			newOwnerID, groupID, groupID, newOwnerID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to update owner: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", err)
		} else if n == 0 {
			return 0, fmt.Errorf("new owner %s: %w", newOwnerID, storage.ErrStaleOwner)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return remaining, nil
}

// UpdateOwner is a compare-and-swap on the owner column. The new owner must
// be a member at the time of the update.
func (s *SQLiteStore) UpdateOwner(ctx context.Context, groupID, fromOwnerID, toOwnerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE groups SET owner_id = ? WHERE id = ? AND owner_id = ?
		 AND EXISTS (SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?)`,
		toOwnerID, groupID, fromOwnerID, groupID, toOwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update owner: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM groups WHERE id = ?", groupID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check group existence: %w", err)
	}
	return fmt.Errorf("group %s: %w", groupID, storage.ErrStaleOwner)
}

// RenameGroup updates a group's name.
func (s *SQLiteStore) RenameGroup(ctx context.Context, groupID, name string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE groups SET name = ? WHERE id = ?", name, groupID)
	if err != nil {
		return fmt.Errorf("failed to rename group: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	return nil
}

// deleteGroup removes a group with its tasks and members. Foreign keys
// cascade too; the statements stay explicit so the result does not depend on
// the pragma.
func deleteGroup(ctx context.Context, tx *sql.Tx, groupID string) error {
	for _, stmt := range []string{
		"DELETE FROM task_assignments WHERE task_id IN (SELECT id FROM tasks WHERE group_id = ?)",
		"DELETE FROM tasks WHERE group_id = ?",
		"DELETE FROM group_members WHERE group_id = ?",
		"DELETE FROM groups WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, groupID); err != nil {
			return fmt.Errorf("failed to delete group: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) getGroupWhere(ctx context.Context, where string, arg any) (*models.Group, error) {
	group := &models.Group{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, invite_code, owner_id, created_at FROM groups WHERE "+where,
		arg,
	).Scan(&group.ID, &group.Name, &group.InviteCode, &group.OwnerID, &group.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("group: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, join_date FROM group_members WHERE group_id = ? ORDER BY join_date, user_id",
		group.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Member
		var joined int64
		if err := rows.Scan(&m.UserID, &joined); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.JoinDate = time.Unix(0, joined)
		group.Members = append(group.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return group, nil
}

func insertMembers(ctx context.Context, tx *sql.Tx, groupID string, members []models.Member) error {
	for _, m := range members {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO group_members (group_id, user_id, join_date) VALUES (?, ?, ?)",
			groupID, m.UserID, m.JoinDate.UnixNano(),
		)
		if err != nil {
			if isUniqueViolation(err, "group_members.") {
				return fmt.Errorf("user %s: %w", m.UserID, storage.ErrAlreadyInGroup)
			}
			return fmt.Errorf("failed to insert member: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY failure
// whose message mentions target (e.g. "groups.invite_code").
func isUniqueViolation(err error, target string) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, target)
}
