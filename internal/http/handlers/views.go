package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/familyassistant/server/internal/model"
)

// userResponse is the user object in auth responses. Family fields are omitted without a household.
type userResponse struct {
	ID         string  `json:"id"`
	Phone      *string `json:"phone"`
	Email      *string `json:"email"`
	FamilyID   *string `json:"family_id,omitempty"`
	FamilyName *string `json:"family_name,omitempty"`
	MemberID   *string `json:"member_id,omitempty"`
}

func newUserResponse(id model.Identity) userResponse {
	return userResponse{
		ID:         id.UserID.String(),
		Phone:      id.Phone,
		Email:      id.Email,
		FamilyID:   uuidString(id.FamilyID),
		FamilyName: id.FamilyName,
		MemberID:   uuidString(id.MemberID),
	}
}

type memberResponse struct {
	ID           string    `json:"id"`
	FamilyID     *string   `json:"family_id"`
	UserID       *string   `json:"user_id"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	Relationship *string   `json:"relationship"`
	Avatar       string    `json:"avatar"`
	AvatarType   string    `json:"avatar_type"`
	PhotoURL     *string   `json:"photo_url"`
	Points       int       `json:"points"`
	Level        int       `json:"level"`
	Workload     int       `json:"workload"`
	Age          *int      `json:"age"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newMemberResponse(m model.Member) memberResponse {
	return memberResponse{
		ID:           m.ID.String(),
		FamilyID:     uuidString(m.FamilyID),
		UserID:       uuidString(m.UserID),
		Name:         m.Name,
		Role:         m.Role,
		Relationship: m.Relationship,
		Avatar:       m.Avatar,
		AvatarType:   m.AvatarType,
		PhotoURL:     m.PhotoURL,
		Points:       m.Points,
		Level:        m.Level,
		Workload:     m.Workload,
		Age:          m.Age,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

type taskResponse struct {
	ID                  string           `json:"id"`
	FamilyID            string           `json:"family_id"`
	Title               string           `json:"title"`
	Description         *string          `json:"description"`
	AssigneeID          *string          `json:"assignee_id"`
	AssigneeName        *string          `json:"assignee_name"`
	Completed           bool             `json:"completed"`
	Points              int              `json:"points"`
	Priority            string           `json:"priority"`
	Category            *string          `json:"category"`
	ReminderTime        *string          `json:"reminder_time"`
	IsRecurring         bool             `json:"is_recurring"`
	RecurringFrequency  *model.Frequency `json:"recurring_frequency"`
	RecurringInterval   *int             `json:"recurring_interval"`
	RecurringDaysOfWeek []int            `json:"recurring_days_of_week"`
	RecurringEndDate    *time.Time       `json:"recurring_end_date"`
	NextOccurrence      *time.Time       `json:"next_occurrence"`
	CookingDay          *string          `json:"cooking_day"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func newTaskResponse(t model.Task) taskResponse {
	return taskResponse{
		ID:                  t.ID.String(),
		FamilyID:            t.FamilyID.String(),
		Title:               t.Title,
		Description:         t.Description,
		AssigneeID:          uuidString(t.AssigneeID),
		AssigneeName:        t.AssigneeName,
		Completed:           t.Completed,
		Points:              t.Points,
		Priority:            t.Priority,
		Category:            t.Category,
		ReminderTime:        t.ReminderTime,
		IsRecurring:         t.IsRecurring,
		RecurringFrequency:  t.RecurringFrequency,
		RecurringInterval:   t.RecurringInterval,
		RecurringDaysOfWeek: t.RecurringDaysOfWeek,
		RecurringEndDate:    t.RecurringEndDate,
		NextOccurrence:      t.NextOccurrence,
		CookingDay:          t.CookingDay,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
