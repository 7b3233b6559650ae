package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Optional is a patch field that distinguishes "absent" from "explicit null" from "value".
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a set, non-null Optional
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns a set Optional holding an explicit null
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// UnmarshalJSON marks the field as present. encoding/json calls it for literal null too.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(b, &o.Value)
}

// Ptr returns nil for null, otherwise a pointer to the value.
func (o Optional[T]) Ptr() *T {
	if o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// Date accepts either RFC 3339 timestamps or plain YYYY-MM-DD dates.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// UnmarshalJSON implements json.Unmarshaler
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	d.Time = t
	return nil
}

// Member is a person in a family roster. UserID is set when the member has an account.
type Member struct {
	ID           uuid.UUID
	FamilyID     *uuid.UUID
	UserID       *uuid.UUID
	Name         string
	Role         string
	Relationship *string
	Avatar       string
	AvatarType   string
	PhotoURL     *string
	Points       int
	Level        int
	Workload     int
	Age          *int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MemberPatch carries the member fields a request touched.
type MemberPatch struct {
	Name         Optional[string] `json:"name"`
	Role         Optional[string] `json:"role"`
	Relationship Optional[string] `json:"relationship"`
	Avatar       Optional[string] `json:"avatar"`
	AvatarType   Optional[string] `json:"avatar_type"`
	PhotoURL     Optional[string] `json:"photo_url"`
	Points       Optional[int]    `json:"points"`
	Level        Optional[int]    `json:"level"`
	Workload     Optional[int]    `json:"workload"`
	Age          Optional[int]    `json:"age"`
}

// Empty reports whether no field is present
func (p MemberPatch) Empty() bool {
	return !(p.Name.Set || p.Role.Set || p.Relationship.Set || p.Avatar.Set || p.AvatarType.Set ||
		p.PhotoURL.Set || p.Points.Set || p.Level.Set || p.Workload.Set || p.Age.Set)
}

// Frequency of a recurring task
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Valid reports whether f is a known frequency
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// Task is a family chore or to-do item
type Task struct {
	ID                  uuid.UUID
	FamilyID            uuid.UUID
	Title               string
	Description         *string
	AssigneeID          *uuid.UUID
	AssigneeName        *string
	Completed           bool
	Points              int
	Priority            string
	Category            *string
	ReminderTime        *string
	IsRecurring         bool
	RecurringFrequency  *Frequency
	RecurringInterval   *int
	RecurringDaysOfWeek []int
	RecurringEndDate    *time.Time
	NextOccurrence      *time.Time
	CookingDay          *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TaskPatch carries the task fields a request touched. It doubles as the create input.
type TaskPatch struct {
	Title               Optional[string]    `json:"title"`
	Description         Optional[string]    `json:"description"`
	AssigneeID          Optional[uuid.UUID] `json:"assignee_id"`
	Completed           Optional[bool]      `json:"completed"`
	Points              Optional[int]       `json:"points"`
	Priority            Optional[string]    `json:"priority"`
	Category            Optional[string]    `json:"category"`
	ReminderTime        Optional[string]    `json:"reminder_time"`
	IsRecurring         Optional[bool]      `json:"is_recurring"`
	RecurringFrequency  Optional[Frequency] `json:"recurring_frequency"`
	RecurringInterval   Optional[int]       `json:"recurring_interval"`
	RecurringDaysOfWeek Optional[[]int]     `json:"recurring_days_of_week"`
	RecurringEndDate    Optional[Date]      `json:"recurring_end_date"`
	NextOccurrence      Optional[Date]      `json:"next_occurrence"`
	CookingDay          Optional[string]    `json:"cooking_day"`
}

// Empty reports whether no field is present
func (p TaskPatch) Empty() bool {
	return !(p.Title.Set || p.Description.Set || p.AssigneeID.Set || p.Completed.Set || p.Points.Set ||
		p.Priority.Set || p.Category.Set || p.ReminderTime.Set || p.IsRecurring.Set ||
		p.RecurringFrequency.Set || p.RecurringInterval.Set || p.RecurringDaysOfWeek.Set ||
		p.RecurringEndDate.Set || p.NextOccurrence.Set || p.CookingDay.Set)
}
