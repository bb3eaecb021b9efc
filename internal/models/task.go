package models

import "time"

const (
	MinDifficulty     = 1
	MaxDifficulty     = 5
	MinRequiredPeople = 1
	MaxRequiredPeople = 10
)

// Recurrence describes how often a task repeats.
type Recurrence string

const (
	RecurrenceOneTime  Recurrence = "one-time"
	RecurrenceDaily    Recurrence = "daily"
	RecurrenceWeekly   Recurrence = "weekly"
	RecurrenceBiWeekly Recurrence = "bi-weekly"
	RecurrenceMonthly  Recurrence = "monthly"
)

// Valid reports whether r is a known recurrence.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceOneTime, RecurrenceDaily, RecurrenceWeekly, RecurrenceBiWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Status is the progress of a single assignment.
type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is one of the three assignment states.
func (s Status) Valid() bool {
	switch s {
	case StatusIncomplete, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Task is a chore definition belonging to a group.
type Task struct {
	// ID is the unique identifier for the task (UUID format).
	ID string

	// GroupID is the group the task belongs to.
	GroupID string

	Name        string
	Description string

	// Difficulty ranges from MinDifficulty to MaxDifficulty.
	Difficulty int

	Recurrence Recurrence

	// RequiredPeople is how many members are assigned each cycle.
	// Zero means the value is absent (rows written before the field existed).
	RequiredPeople int

	// Deadline is required for one-time tasks.
	Deadline *time.Time

	// CreatedBy is the user ID of the member who created the task.
	CreatedBy string

	// CreatedAt is the Unix timestamp when the task was created.
	CreatedAt int64

	// Assignments holds every assignment ever made for the task.
	Assignments []Assignment
}

// Assignment is one user's responsibility for a task in a given week.
// At most one assignment exists per (UserID, WeekStart).
type Assignment struct {
	UserID    string
	WeekStart time.Time
	Status    Status

	// CompletedAt is set iff Status is StatusCompleted.
	CompletedAt *time.Time
}

// AssignedInWeek reports whether the task has any assignment for weekStart.
func (t *Task) AssignedInWeek(weekStart time.Time) bool {
	for _, a := range t.Assignments {
		if a.WeekStart.Equal(weekStart) {
			return true
		}
	}
	return false
}

// CanManage reports whether userID may assign or delete the task given the
// owner of the task's group.
func (t *Task) CanManage(userID, groupOwnerID string) bool {
	return t.CreatedBy == userID || groupOwnerID == userID
}
