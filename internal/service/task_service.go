package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mmynk/roommates/internal/apperr"
	"github.com/mmynk/roommates/internal/ident"
	"github.com/mmynk/roommates/internal/models"
	"github.com/mmynk/roommates/internal/scheduler"
	"github.com/mmynk/roommates/internal/storage"
)

// NoTasksMessage is reported by a scheduler run that assigned nothing.
const NoTasksMessage = "no tasks to assign"

// TaskInput holds the caller-supplied fields of a new task.
type TaskInput struct {
	Name        string
	Description string
	Difficulty  int
	Recurrence  models.Recurrence

	// RequiredPeople defaults to 1 when zero.
	RequiredPeople int

	// Deadline is required, and must be in the future, for one-time tasks.
	Deadline *time.Time
}

// RunResult reports one scheduler run over a group's tasks.
type RunResult struct {
	GroupID   string
	WeekStart time.Time

	// Assigned counts tasks that received new assignments in this run.
	Assigned int

	// Assignments counts the assignments created across all tasks.
	Assignments int

	Message string
}

// TaskService manages a group's chores and their weekly assignments.
type TaskService struct {
	groups storage.GroupStore
	tasks  storage.TaskStore
	opts   Options

	mu  sync.Mutex // guards rng
	rng scheduler.Rand
}

// NewTaskService creates a TaskService. A nil rng selects a randomly seeded
// source.
func NewTaskService(groups storage.GroupStore, tasks storage.TaskStore, rng scheduler.Rand, opts Options) *TaskService {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &TaskService{groups: groups, tasks: tasks, rng: rng, opts: opts.withDefaults()}
}

// CreateTask adds a task to the caller's group.
func (s *TaskService) CreateTask(ctx context.Context, userID string, in TaskInput) (task *models.Task, err error) {
	ctx, finish := s.opts.begin(ctx, "TaskService.CreateTask", userAttr(userID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID)

	if err := ident.ValidateID("user_id", userID); err != nil {
		return nil, fail(logger, "CreateTask rejected", err)
	}
	now := s.opts.now()
	task, err = s.newTask(userID, in, now)
	if err != nil {
		return nil, fail(logger, "CreateTask rejected", err)
	}

	group, err := s.groups.GetGroupByMember(ctx, userID)
	if err != nil {
		return nil, fail(logger, "CreateTask failed", lookupErr(err, apperr.CodeNotInGroup, "group"))
	}
	task.GroupID = group.ID

	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, fail(logger, "CreateTask failed", apperr.Dependency("failed to create task", err))
	}

	logger.Info("Task created", "task_id", task.ID, "group_id", group.ID, "recurrence", task.Recurrence)
	return task, nil
}

// newTask validates in and builds the task model.
func (s *TaskService) newTask(userID string, in TaskInput, now time.Time) (*models.Task, error) {
	name, err := ident.NormalizeName("name", in.Name, models.MaxNameLength)
	if err != nil {
		return nil, err
	}
	if in.Difficulty < models.MinDifficulty || in.Difficulty > models.MaxDifficulty {
		return nil, outOfRange("difficulty", in.Difficulty, models.MinDifficulty, models.MaxDifficulty)
	}
	recurrence := models.Recurrence(strings.ToLower(strings.TrimSpace(string(in.Recurrence))))
	if !recurrence.Valid() {
		return nil, apperr.WithMetadata(apperr.CodeInvalidArgument, "unknown recurrence",
			map[string]string{"field": "recurrence", "value": string(in.Recurrence)})
	}
	required := in.RequiredPeople
	if required == 0 {
		required = models.MinRequiredPeople
	}
	if required < models.MinRequiredPeople || required > models.MaxRequiredPeople {
		return nil, outOfRange("required_people", required, models.MinRequiredPeople, models.MaxRequiredPeople)
	}
	if recurrence == models.RecurrenceOneTime {
		if in.Deadline == nil {
			return nil, apperr.WithMetadata(apperr.CodeInvalidArgument, "one-time tasks need a deadline",
				map[string]string{"field": "deadline"})
		}
		if !in.Deadline.After(now) {
			return nil, apperr.WithMetadata(apperr.CodeInvalidArgument, "deadline must be in the future",
				map[string]string{"field": "deadline", "value": in.Deadline.Format(time.RFC3339)})
		}
	}

	return &models.Task{
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		Difficulty:     in.Difficulty,
		Recurrence:     recurrence,
		RequiredPeople: required,
		Deadline:       in.Deadline,
		CreatedBy:      userID,
		CreatedAt:      now.Unix(),
	}, nil
}

// ListTasks returns the tasks of the caller's group in creation order.
func (s *TaskService) ListTasks(ctx context.Context, userID string) (tasks []*models.Task, err error) {
	ctx, finish := s.opts.begin(ctx, "TaskService.ListTasks", userAttr(userID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID)

	if err := ident.ValidateID("user_id", userID); err != nil {
		return nil, fail(logger, "ListTasks rejected", err)
	}
	group, err := s.groups.GetGroupByMember(ctx, userID)
	if err != nil {
		return nil, fail(logger, "ListTasks failed", lookupErr(err, apperr.CodeNotInGroup, "group"))
	}
	tasks, err = s.tasks.ListTasksByGroup(ctx, group.ID)
	if err != nil {
		return nil, fail(logger, "ListTasks failed", apperr.Dependency("failed to list tasks", err))
	}

	logger.Info("ListTasks successful", "group_id", group.ID, "count", len(tasks))
	return tasks, nil
}

// DeleteTask removes a task. Only its creator or the group owner may.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID string) (err error) {
	ctx, finish := s.opts.begin(ctx, "TaskService.DeleteTask", userAttr(userID), attribute.String("task.id", taskID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID, "task_id", taskID)

	group, task, err := s.taskForUser(ctx, userID, taskID)
	if err != nil {
		return fail(logger, "DeleteTask rejected", err)
	}
	if !task.CanManage(userID, group.OwnerID) {
		return fail(logger, "DeleteTask rejected", noPermission())
	}
	if err := s.tasks.DeleteTask(ctx, task.ID); err != nil {
		return fail(logger, "DeleteTask failed", lookupErr(err, apperr.CodeTaskNotFound, "task"))
	}

	logger.Info("Task deleted", "group_id", group.ID)
	return nil
}

// RunWeeklyAssignment assigns the current week's members to every task of
// the group that needs it. Tasks are persisted one at a time, so a failure
// keeps the assignments made before it; the partial result is returned
// together with the error.
func (s *TaskService) RunWeeklyAssignment(ctx context.Context, groupID string) (result *RunResult, err error) {
	ctx, finish := s.opts.begin(ctx, "TaskService.RunWeeklyAssignment", attribute.String("group.id", groupID))
	defer func() {
		if err != nil {
			s.opts.Metrics.SchedulerRun("error")
		} else {
			s.opts.Metrics.SchedulerRun("ok")
		}
		finish(err)
	}()
	logger := s.opts.Logger.With("group_id", groupID)

	if err := ident.ValidateID("group_id", groupID); err != nil {
		return nil, fail(logger, "RunWeeklyAssignment rejected", err)
	}
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fail(logger, "RunWeeklyAssignment failed", lookupErr(err, apperr.CodeGroupNotFound, "group"))
	}
	tasks, err := s.tasks.ListTasksByGroup(ctx, group.ID)
	if err != nil {
		return nil, fail(logger, "RunWeeklyAssignment failed", apperr.Dependency("failed to list tasks", err))
	}

	weekStart := scheduler.WeekStart(s.opts.now())
	roster := group.MemberIDs()
	result = &RunResult{GroupID: group.ID, WeekStart: weekStart}

	for _, task := range tasks {
		dec := s.plan(task, roster, weekStart)
		if !scheduler.Apply(task, dec, weekStart) {
			logger.Debug("Task skipped", "task_id", task.ID, "reason", dec.Skip)
			continue
		}
		if err := s.tasks.SaveTask(ctx, task); err != nil {
			result.Message = summarize(result)
			return result, fail(logger, "RunWeeklyAssignment failed", saveErr(err), "task_id", task.ID)
		}
		if len(dec.Assignees) > 0 {
			result.Assigned++
			result.Assignments += len(dec.Assignees)
			s.opts.Metrics.AssignmentsCreated(len(dec.Assignees))
		}
	}
	result.Message = summarize(result)

	logger.Info("Weekly assignment complete",
		"week_start", weekStart.Format(time.DateOnly),
		"tasks", len(tasks),
		"assigned", result.Assigned,
		"assignments", result.Assignments,
	)
	return result, nil
}

// RunWeeklyAssignmentForUser runs the scheduler for the caller's group.
func (s *TaskService) RunWeeklyAssignmentForUser(ctx context.Context, userID string) (*RunResult, error) {
	if err := ident.ValidateID("user_id", userID); err != nil {
		return nil, fail(s.opts.Logger, "RunWeeklyAssignment rejected", err, "user_id", userID)
	}
	group, err := s.groups.GetGroupByMember(ctx, userID)
	if err != nil {
		return nil, fail(s.opts.Logger, "RunWeeklyAssignment failed",
			lookupErr(err, apperr.CodeNotInGroup, "group"), "user_id", userID)
	}
	return s.RunWeeklyAssignment(ctx, group.ID)
}

// RunAllGroups runs the scheduler for every group. A failing group does not
// stop the others; the errors are joined.
func (s *TaskService) RunAllGroups(ctx context.Context) ([]*RunResult, error) {
	groups, err := s.groups.ListGroups(ctx)
	if err != nil {
		return nil, fail(s.opts.Logger, "RunAllGroups failed", apperr.Dependency("failed to list groups", err))
	}

	var (
		results []*RunResult
		errs    []error
	)
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := s.RunWeeklyAssignment(ctx, g.ID)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", g.ID, err))
		}
	}
	return results, errors.Join(errs...)
}

// AssignTask replaces the current week's assignees of a task with userIDs.
// Only the task's creator or the group owner may assign.
func (s *TaskService) AssignTask(ctx context.Context, userID, taskID string, userIDs []string) (task *models.Task, err error) {
	ctx, finish := s.opts.begin(ctx, "TaskService.AssignTask", userAttr(userID), attribute.String("task.id", taskID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID, "task_id", taskID)

	assignees, err := uniqueIDs("user_ids", userIDs)
	if err != nil {
		return nil, fail(logger, "AssignTask rejected", err)
	}

	group, task, err := s.taskForUser(ctx, userID, taskID)
	if err != nil {
		return nil, fail(logger, "AssignTask rejected", err)
	}
	if !task.CanManage(userID, group.OwnerID) {
		return nil, fail(logger, "AssignTask rejected", noPermission())
	}
	for _, id := range assignees {
		if !group.HasMember(id) {
			return nil, fail(logger, "AssignTask rejected", notAMember(id))
		}
	}

	weekStart := scheduler.WeekStart(s.opts.now())
	scheduler.ReplaceWeek(task, assignees, weekStart)
	if err := s.tasks.SaveTask(ctx, task); err != nil {
		return nil, fail(logger, "AssignTask failed", saveErr(err))
	}
	s.opts.Metrics.AssignmentsCreated(len(assignees))

	logger.Info("Task assigned", "week_start", weekStart.Format(time.DateOnly), "assignees", assignees)
	return task, nil
}

// UpdateTaskStatus sets the status of the caller's assignment for the
// current week.
func (s *TaskService) UpdateTaskStatus(ctx context.Context, userID, taskID string, status models.Status) (task *models.Task, err error) {
	ctx, finish := s.opts.begin(ctx, "TaskService.UpdateTaskStatus", userAttr(userID), attribute.String("task.id", taskID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID, "task_id", taskID, "status", status)

	if err := validateIDs("user_id", userID, "task_id", taskID); err != nil {
		return nil, fail(logger, "UpdateTaskStatus rejected", err)
	}
	if !status.Valid() {
		return nil, fail(logger, "UpdateTaskStatus rejected",
			apperr.WithMetadata(apperr.CodeInvalidStatus, "status must be incomplete, in-progress or completed",
				map[string]string{"value": string(status)}))
	}

	_, task, err = s.taskForUser(ctx, userID, taskID)
	if err != nil {
		return nil, fail(logger, "UpdateTaskStatus rejected", err)
	}

	now := s.opts.now()
	weekStart := scheduler.WeekStart(now)
	if !scheduler.SetStatus(task, userID, weekStart, status, now) {
		return nil, fail(logger, "UpdateTaskStatus rejected",
			apperr.WithMetadata(apperr.CodeAssignmentNotFound, "no assignment for this week",
				map[string]string{"week_start": weekStart.Format(time.DateOnly)}))
	}
	if err := s.tasks.SaveTask(ctx, task); err != nil {
		return nil, fail(logger, "UpdateTaskStatus failed", saveErr(err))
	}

	logger.Info("Task status updated")
	return task, nil
}

// taskForUser loads the caller's group and a task belonging to it. Tasks of
// other groups are reported as not found.
func (s *TaskService) taskForUser(ctx context.Context, userID, taskID string) (*models.Group, *models.Task, error) {
	if err := validateIDs("user_id", userID, "task_id", taskID); err != nil {
		return nil, nil, err
	}
	group, err := s.groups.GetGroupByMember(ctx, userID)
	if err != nil {
		return nil, nil, lookupErr(err, apperr.CodeNotInGroup, "group")
	}
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, lookupErr(err, apperr.CodeTaskNotFound, "task")
	}
	if task.GroupID != group.ID {
		return nil, nil, apperr.New(apperr.CodeTaskNotFound, "task not found")
	}
	return group, task, nil
}

func (s *TaskService) plan(task *models.Task, roster []string, weekStart time.Time) scheduler.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scheduler.Plan(task, roster, weekStart, s.rng)
}

// uniqueIDs validates ids and removes duplicates, keeping the first
// occurrence. At least one id is required.
func uniqueIDs(field string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, apperr.WithMetadata(apperr.CodeInvalidArgument, "at least one user is required",
			map[string]string{"field": field})
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := ident.ValidateID(field, id); err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func summarize(r *RunResult) string {
	if r.Assigned == 0 {
		return NoTasksMessage
	}
	return fmt.Sprintf("assigned %d task(s)", r.Assigned)
}

func saveErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		return apperr.Wrap(apperr.CodeDuplicateAssignment, "duplicate assignment", err)
	case errors.Is(err, storage.ErrNotFound):
		return apperr.New(apperr.CodeTaskNotFound, "task not found")
	default:
		return apperr.Dependency("failed to save task", err)
	}
}

func outOfRange(field string, v, lo, hi int) error {
	return apperr.WithMetadata(apperr.CodeInvalidArgument,
		fmt.Sprintf("%s must be between %d and %d", field, lo, hi),
		map[string]string{"field": field, "value": fmt.Sprint(v), "min": fmt.Sprint(lo), "max": fmt.Sprint(hi)},
	)
}

func noPermission() error {
	return apperr.New(apperr.CodeNoPermission, "only the task creator or the group owner can do this")
}
