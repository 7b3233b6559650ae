package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/familyassistant/server/internal/db"
	"github.com/familyassistant/server/internal/model"
)

const taskSelect = `
	SELECT t.id, t.family_id, t.title, t.description, t.assignee_id, fm.name, t.completed, t.points, t.priority,
		t.category, t.reminder_time, t.is_recurring, t.recurring_frequency, t.recurring_interval,
		t.recurring_days_of_week, t.recurring_end_date, t.next_occurrence, t.cooking_day, t.created_at, t.updated_at
	FROM tasks t
	LEFT JOIN family_members fm ON fm.id = t.assignee_id`

type taskRepo struct {
	q db.DBTX
}

// NewTaskRepo creates a new TaskRepo instance
func NewTaskRepo(q db.DBTX) TaskRepo {
	return &taskRepo{q: q}
}

// Create inserts a task and returns it with the assignee name resolved
func (r *taskRepo) Create(ctx context.Context, t model.Task) (model.Task, error) {
	var id uuid.UUID
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO tasks (family_id, title, description, assignee_id, completed, points, priority, category,
			reminder_time, is_recurring, recurring_frequency, recurring_interval, recurring_days_of_week,
			recurring_end_date, next_occurrence, cooking_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`, t.FamilyID, t.Title, t.Description, t.AssigneeID, t.Completed, t.Points, t.Priority, t.Category,
		t.ReminderTime, t.IsRecurring, frequencyValue(t.RecurringFrequency), t.RecurringInterval,
		daysValue(t.RecurringDaysOfWeek), t.RecurringEndDate, t.NextOccurrence, t.CookingDay).Scan(&id)
	if err != nil {
		return model.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return r.Get(ctx, t.FamilyID, id)
}

// List returns the family's tasks, newest first, optionally filtered by completion
func (r *taskRepo) List(ctx context.Context, familyID uuid.UUID, completed *bool) ([]model.Task, error) {
	query := taskSelect + ` WHERE t.family_id = $1`
	args := []any{familyID}
	if completed != nil {
		query += ` AND t.completed = $2`
		args = append(args, *completed)
	}
	query += ` ORDER BY t.created_at DESC, t.id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Get returns a task of the family
func (r *taskRepo) Get(ctx context.Context, familyID, id uuid.UUID) (model.Task, error) {
	t, err := scanTask(r.q.QueryRowContext(ctx, taskSelect+` WHERE t.id = $1 AND t.family_id = $2`, id, familyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, fmt.Errorf("query task: %w", err)
	}
	return t, nil
}

// Update applies the present fields of patch. An empty patch returns the task unchanged.
func (r *taskRepo) Update(ctx context.Context, familyID, id uuid.UUID, patch model.TaskPatch, now time.Time) (model.Task, error) {
	var b setBuilder
	addOptional(&b, "title", patch.Title)
	addOptional(&b, "description", patch.Description)
	addOptional(&b, "assignee_id", patch.AssigneeID)
	addOptional(&b, "completed", patch.Completed)
	addOptional(&b, "points", patch.Points)
	addOptional(&b, "priority", patch.Priority)
	addOptional(&b, "category", patch.Category)
	addOptional(&b, "reminder_time", patch.ReminderTime)
	addOptional(&b, "is_recurring", patch.IsRecurring)
	if patch.RecurringFrequency.Set {
		b.add("recurring_frequency", frequencyValue(patch.RecurringFrequency.Ptr()))
	}
	addOptional(&b, "recurring_interval", patch.RecurringInterval)
	if patch.RecurringDaysOfWeek.Set {
		b.add("recurring_days_of_week", daysValue(patch.RecurringDaysOfWeek.Value))
	}
	if patch.RecurringEndDate.Set {
		b.add("recurring_end_date", dateValue(patch.RecurringEndDate))
	}
	if patch.NextOccurrence.Set {
		b.add("next_occurrence", dateValue(patch.NextOccurrence))
	}
	addOptional(&b, "cooking_day", patch.CookingDay)
	if b.empty() {
		return r.Get(ctx, familyID, id)
	}
	b.add("updated_at", now)

	query := `UPDATE tasks SET ` + b.clause() +
		` WHERE id = ` + b.arg(id) + ` AND family_id = ` + b.arg(familyID)
	result, err := r.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return model.Task{}, fmt.Errorf("update task: %w", err)
	}
	if err := requireOneRow(result, "update task"); err != nil {
		return model.Task{}, err
	}
	return r.Get(ctx, familyID, id)
}

func frequencyValue(f *model.Frequency) any {
	if f == nil {
		return nil
	}
	return string(*f)
}

func daysValue(days []int) any {
	if days == nil {
		return nil
	}
	arr := make(pq.Int64Array, len(days))
	for i, d := range days {
		arr[i] = int64(d)
	}
	return arr
}

func dateValue(o model.Optional[model.Date]) any {
	if o.Null {
		return nil
	}
	return o.Value.Time
}

func scanTask(row rowScanner) (model.Task, error) {
	var (
		t         model.Task
		frequency sql.NullString
		days      pq.Int64Array
	)
	err := row.Scan(&t.ID, &t.FamilyID, &t.Title, &t.Description, &t.AssigneeID, &t.AssigneeName, &t.Completed,
		&t.Points, &t.Priority, &t.Category, &t.ReminderTime, &t.IsRecurring, &frequency, &t.RecurringInterval,
		&days, &t.RecurringEndDate, &t.NextOccurrence, &t.CookingDay, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Task{}, err
	}
	if frequency.Valid {
		f := model.Frequency(frequency.String)
		t.RecurringFrequency = &f
	}
	if days != nil {
		t.RecurringDaysOfWeek = make([]int, len(days))
		for i, d := range days {
			t.RecurringDaysOfWeek[i] = int(d)
		}
	}
	return t, nil
}
