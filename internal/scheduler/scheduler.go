// Package scheduler decides who is assigned to each task in a given week.
//
// The package is pure: it never touches storage. The service layer loads
// tasks, calls Plan, applies the decision and persists.
package scheduler

import (
	"time"

	"github.com/mmynk/roommates/internal/models"
)

// Rand is the randomness the planner draws from. *math/rand.Rand satisfies it.
type Rand interface {
	// Perm returns a random permutation of [0, n).
	Perm(n int) []int
}

// SkipReason explains why a task received no new assignment.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipOneTimeAssigned SkipReason = "one-time task already assigned"
	SkipAlreadyAssigned SkipReason = "already assigned this week"
	SkipNoMembers       SkipReason = "no members to assign"
)

// Decision is the outcome of planning one task for one week.
type Decision struct {
	// Assignees are the selected user IDs; empty when Skip is set.
	Assignees []string

	// Skip is non-empty when the task is left untouched this week.
	Skip SkipReason

	// DefaultRequired is set when the task had no RequiredPeople value and
	// it should be persisted as 1.
	DefaultRequired bool
}

// WeekStart returns the most recent Sunday at 00:00 in t's location.
// A Sunday maps to itself.
func WeekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return midnight.AddDate(0, 0, -int(midnight.Weekday()))
}

// Plan selects the members responsible for task in the week beginning at
// weekStart. roster holds the user IDs of every group member; the owner is
// not treated specially.
func Plan(task *models.Task, roster []string, weekStart time.Time, rng Rand) Decision {
	if task.Recurrence == models.RecurrenceOneTime && len(task.Assignments) > 0 {
		return Decision{Skip: SkipOneTimeAssigned}
	}
	if task.AssignedInWeek(weekStart) {
		return Decision{Skip: SkipAlreadyAssigned}
	}

	var dec Decision
	required := task.RequiredPeople
	if required <= 0 {
		required = models.MinRequiredPeople
		dec.DefaultRequired = true
	}

	n := min(required, len(roster))
	if n == 0 {
		dec.Skip = SkipNoMembers
		return dec
	}

	perm := rng.Perm(len(roster))
	dec.Assignees = make([]string, n)
	for i := 0; i < n; i++ {
		dec.Assignees[i] = roster[perm[i]]
	}
	return dec
}

// Apply appends one incomplete assignment per assignee and fills in the
// defaulted RequiredPeople. It reports whether the task changed.
func Apply(task *models.Task, dec Decision, weekStart time.Time) bool {
	changed := false
	if dec.DefaultRequired {
		task.RequiredPeople = models.MinRequiredPeople
		changed = true
	}
	for _, userID := range dec.Assignees {
		task.Assignments = append(task.Assignments, models.Assignment{
			UserID:    userID,
			WeekStart: weekStart,
			Status:    models.StatusIncomplete,
		})
		changed = true
	}
	return changed
}

// ReplaceWeek removes every assignment for weekStart and appends one
// incomplete assignment per user. Used for manual assignment.
func ReplaceWeek(task *models.Task, userIDs []string, weekStart time.Time) {
	kept := task.Assignments[:0]
	for _, a := range task.Assignments {
		if !a.WeekStart.Equal(weekStart) {
			kept = append(kept, a)
		}
	}
	task.Assignments = kept
	Apply(task, Decision{Assignees: userIDs}, weekStart)
}

// SetStatus updates the assignment of userID for weekStart. completedAt is
// recorded only for StatusCompleted and cleared otherwise. It reports false
// when there is no such assignment.
func SetStatus(task *models.Task, userID string, weekStart time.Time, status models.Status, now time.Time) bool {
	for i := range task.Assignments {
		a := &task.Assignments[i]
		if a.UserID != userID || !a.WeekStart.Equal(weekStart) {
			continue
		}
		a.Status = status
		if status == models.StatusCompleted {
			completed := now
			a.CompletedAt = &completed
		} else {
			a.CompletedAt = nil
		}
		return true
	}
	return false
}
