package household

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/familyassistant/server/internal/apperr"
	"github.com/familyassistant/server/internal/model"
	"github.com/familyassistant/server/internal/repo"
)

const (
	defaultTaskPoints   = 10
	defaultTaskPriority = "medium"
)

var priorities = map[string]bool{"low": true, "medium": true, "high": true}

// TaskService manages family tasks
type TaskService struct {
	store repo.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewTaskService creates a new task service
func NewTaskService(store repo.Store, log zerolog.Logger) *TaskService {
	return &TaskService{store: store, log: log.With().Str("component", "tasks").Logger(), now: time.Now}
}

// WithClock replaces the time source
func (s *TaskService) WithClock(now func() time.Time) *TaskService {
	s.now = now
	return s
}

// List returns the family's tasks, optionally filtered by completion
func (s *TaskService) List(ctx context.Context, scope model.FamilyScope, completed *bool) ([]model.Task, error) {
	tasks, err := s.store.Repos().Tasks.List(ctx, scope.FamilyID, completed)
	if err != nil {
		return nil, storage(s.log, "list tasks", err)
	}
	return tasks, nil
}

// Create adds a task. Title is required; recurring tasks without next_occurrence get one computed.
func (s *TaskService) Create(ctx context.Context, scope model.FamilyScope, in model.TaskPatch) (model.Task, error) {
	if !in.Title.Set || in.Title.Null || strings.TrimSpace(in.Title.Value) == "" {
		return model.Task{}, apperr.Validation("title is required")
	}
	if err := validateTaskPatch(in); err != nil {
		return model.Task{}, err
	}

	t := model.Task{
		FamilyID: scope.FamilyID,
		Title:    strings.TrimSpace(in.Title.Value),
		Points:   defaultTaskPoints,
		Priority: defaultTaskPriority,
	}
	applyTaskPatch(&t, in)

	if rec, ok := recurrenceOf(t); ok {
		if err := rec.Validate(); err != nil {
			return model.Task{}, err
		}
		if t.NextOccurrence == nil {
			next := rec.First(s.now())
			t.NextOccurrence = &next
		}
	} else if t.IsRecurring {
		return model.Task{}, apperr.Validation("recurring_frequency is required for recurring tasks")
	}

	var created model.Task
	err := s.store.WithTx(ctx, func(ctx context.Context, r repo.Repos) error {
		if err := checkAssignee(ctx, r, scope.FamilyID, t.AssigneeID); err != nil {
			return err
		}
		var err error
		created, err = r.Tasks.Create(ctx, t)
		return err
	})
	if err != nil {
		return model.Task{}, s.fail("create task", err)
	}
	return created, nil
}

// Update applies a partial update. The merged task must still carry a valid recurrence.
func (s *TaskService) Update(ctx context.Context, scope model.FamilyScope, id uuid.UUID, patch model.TaskPatch) (model.Task, error) {
	if patch.Title.Set && (patch.Title.Null || strings.TrimSpace(patch.Title.Value) == "") {
		return model.Task{}, apperr.Validation("title must not be empty")
	}
	if err := validateTaskPatch(patch); err != nil {
		return model.Task{}, err
	}
	if patch.Title.Set {
		patch.Title.Value = strings.TrimSpace(patch.Title.Value)
	}

	var updated model.Task
	err := s.store.WithTx(ctx, func(ctx context.Context, r repo.Repos) error {
		current, err := r.Tasks.Get(ctx, scope.FamilyID, id)
		if err != nil {
			return err
		}
		merged := current
		applyTaskPatch(&merged, patch)
		if rec, ok := recurrenceOf(merged); ok {
			if err := rec.Validate(); err != nil {
				return err
			}
		} else if merged.IsRecurring {
			return apperr.Validation("recurring_frequency is required for recurring tasks")
		}
		if patch.AssigneeID.Set {
			if err := checkAssignee(ctx, r, scope.FamilyID, merged.AssigneeID); err != nil {
				return err
			}
		}
		updated, err = r.Tasks.Update(ctx, scope.FamilyID, id, patch, s.now())
		return err
	})
	if err != nil {
		return model.Task{}, s.fail("update task", err)
	}
	return updated, nil
}

// Complete closes a task. A recurring task instead moves to its next occurrence until the
// end date has passed.
func (s *TaskService) Complete(ctx context.Context, scope model.FamilyScope, id uuid.UUID) (model.Task, error) {
	var out model.Task
	err := s.store.WithTx(ctx, func(ctx context.Context, r repo.Repos) error {
		t, err := r.Tasks.Get(ctx, scope.FamilyID, id)
		if err != nil {
			return err
		}
		now := s.now()
		patch := model.TaskPatch{Completed: model.Some(true)}
		if rec, ok := recurrenceOf(t); ok {
			from := now
			if t.NextOccurrence != nil {
				from = *t.NextOccurrence
			}
			next := rec.Next(from)
			if !rec.Ended(next) {
				patch = model.TaskPatch{
					Completed:      model.Some(false),
					NextOccurrence: model.Some(model.Date{Time: next}),
				}
			}
		}
		out, err = r.Tasks.Update(ctx, scope.FamilyID, id, patch, now)
		return err
	})
	if err != nil {
		return model.Task{}, s.fail("complete task", err)
	}
	return out, nil
}

func (s *TaskService) fail(op string, err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return apperr.NotFound("task not found")
	case errors.Is(err, apperr.ErrValidation):
		return err
	default:
		return storage(s.log, op, err)
	}
}

func checkAssignee(ctx context.Context, r repo.Repos, familyID uuid.UUID, assigneeID *uuid.UUID) error {
	if assigneeID == nil {
		return nil
	}
	if _, err := r.Members.Get(ctx, familyID, *assigneeID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.Validation("assignee_id is not a member of this family")
		}
		return err
	}
	return nil
}

func validateTaskPatch(p model.TaskPatch) error {
	if p.Completed.Set && p.Completed.Null {
		return apperr.Validation("completed must not be null")
	}
	if p.IsRecurring.Set && p.IsRecurring.Null {
		return apperr.Validation("is_recurring must not be null")
	}
	if p.Points.Set && (p.Points.Null || p.Points.Value < 0) {
		return apperr.Validation("points must be a non-negative number")
	}
	if p.Priority.Set && (p.Priority.Null || !priorities[p.Priority.Value]) {
		return apperr.Validation("priority must be one of low, medium, high")
	}
	if p.RecurringFrequency.Set && !p.RecurringFrequency.Null && !p.RecurringFrequency.Value.Valid() {
		return apperr.Validation("recurring_frequency must be one of daily, weekly, monthly, yearly")
	}
	if p.RecurringInterval.Set && !p.RecurringInterval.Null && p.RecurringInterval.Value < 1 {
		return apperr.Validation("recurring_interval must be at least 1")
	}
	return nil
}

// applyTaskPatch copies the present fields of p onto t, mirroring what the repository writes.
func applyTaskPatch(t *model.Task, p model.TaskPatch) {
	if p.Title.Set && !p.Title.Null {
		t.Title = p.Title.Value
	}
	if p.Description.Set {
		t.Description = p.Description.Ptr()
	}
	if p.AssigneeID.Set {
		t.AssigneeID = p.AssigneeID.Ptr()
	}
	if p.Completed.Set {
		t.Completed = p.Completed.Value
	}
	if p.Points.Set {
		t.Points = p.Points.Value
	}
	if p.Priority.Set {
		t.Priority = p.Priority.Value
	}
	if p.Category.Set {
		t.Category = p.Category.Ptr()
	}
	if p.ReminderTime.Set {
		t.ReminderTime = p.ReminderTime.Ptr()
	}
	if p.IsRecurring.Set {
		t.IsRecurring = p.IsRecurring.Value
	}
	if p.RecurringFrequency.Set {
		t.RecurringFrequency = p.RecurringFrequency.Ptr()
	}
	if p.RecurringInterval.Set {
		t.RecurringInterval = p.RecurringInterval.Ptr()
	}
	if p.RecurringDaysOfWeek.Set {
		t.RecurringDaysOfWeek = p.RecurringDaysOfWeek.Value
	}
	if p.RecurringEndDate.Set {
		t.RecurringEndDate = datePtr(p.RecurringEndDate)
	}
	if p.NextOccurrence.Set {
		t.NextOccurrence = datePtr(p.NextOccurrence)
	}
	if p.CookingDay.Set {
		t.CookingDay = p.CookingDay.Ptr()
	}
}

func datePtr(o model.Optional[model.Date]) *time.Time {
	if o.Null {
		return nil
	}
	v := o.Value.Time
	return &v
}
