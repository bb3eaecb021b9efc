package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/roommates/internal/models"
	"github.com/mmynk/roommates/internal/storage"
)

const taskColumns = "id, group_id, name, description, difficulty, recurrence, required_people, deadline, created_by, created_at"

// CreateTask persists a new task and any initial assignments.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt == 0 {
		task.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO tasks ("+taskColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		task.ID, task.GroupID, task.Name, task.Description, task.Difficulty, string(task.Recurrence),
		nullableInt(task.RequiredPeople), nullableTime(task.Deadline), task.CreatedBy, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	if err := insertAssignments(ctx, tx, task.ID, task.Assignments); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID, including its assignments.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ?", taskID,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", taskID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	if err := s.loadAssignments(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasksByGroup retrieves all tasks of a group in creation order.
func (s *SQLiteStore) ListTasksByGroup(ctx context.Context, groupID string) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE group_id = ? ORDER BY created_at, rowid",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by group: %w", err)
	}

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	for _, task := range tasks {
		if err := s.loadAssignments(ctx, task); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// SaveTask overwrites a task and replaces its assignments in one transaction.
func (s *SQLiteStore) SaveTask(ctx context.Context, task *models.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET name = ?, description = ?, difficulty = ?, recurrence = ?,
		 required_people = ?, deadline = ? WHERE id = ?`,
		task.Name, task.Description, task.Difficulty, string(task.Recurrence),
		nullableInt(task.RequiredPeople), nullableTime(task.Deadline), task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("task %s: %w", task.ID, storage.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM task_assignments WHERE task_id = ?", task.ID); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}
	if err := insertAssignments(ctx, tx, task.ID, task.Assignments); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteTask removes a task and its assignments.
func (s *SQLiteStore) DeleteTask(ctx context.Context, taskID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM task_assignments WHERE task_id = ?", taskID); err != nil {
		return fmt.Errorf("failed to delete assignments: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", taskID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("task %s: %w", taskID, storage.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) loadAssignments(ctx context.Context, task *models.Task) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, week_start, status, completed_at FROM task_assignments
		 WHERE task_id = ? ORDER BY week_start, user_id`,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get assignments: %w", err)
	}
	defer rows.Close()

	task.Assignments = nil
	for rows.Next() {
		var a models.Assignment
		var weekStart int64
		var status string
		var completedAt sql.NullInt64
		if err := rows.Scan(&a.UserID, &weekStart, &status, &completedAt); err != nil {
			return fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.WeekStart = time.Unix(weekStart, 0)
		a.Status = models.Status(status)
		if completedAt.Valid {
			t := time.Unix(completedAt.Int64, 0)
			a.CompletedAt = &t
		}
		task.Assignments = append(task.Assignments, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate assignments: %w", err)
	}
	return nil
}

func insertAssignments(ctx context.Context, tx *sql.Tx, taskID string, assignments []models.Assignment) error {
	for _, a := range assignments {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO task_assignments (task_id, user_id, week_start, status, completed_at) VALUES (?, ?, ?, ?, ?)",
			taskID, a.UserID, a.WeekStart.Unix(), string(a.Status), nullableTime(a.CompletedAt),
		)
		if err != nil {
			if isUniqueViolation(err, "task_assignments.") {
				return fmt.Errorf("assignment for %s: %w", a.UserID, storage.ErrDuplicate)
			}
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var recurrence string
	var required, deadline sql.NullInt64
	err := row.Scan(&task.ID, &task.GroupID, &task.Name, &task.Description, &task.Difficulty,
		&recurrence, &required, &deadline, &task.CreatedBy, &task.CreatedAt)
	if err != nil {
		return nil, err
	}
	task.Recurrence = models.Recurrence(recurrence)
	if required.Valid {
		task.RequiredPeople = int(required.Int64)
	}
	if deadline.Valid {
		t := time.Unix(deadline.Int64, 0)
		task.Deadline = &t
	}
	return task, nil
}

// nullableInt stores zero as NULL, which is how an absent required_people
// is represented.
func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
