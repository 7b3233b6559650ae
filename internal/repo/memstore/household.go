package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/familyassistant/server/internal/model"
	"github.com/familyassistant/server/internal/repo"
)

func membership(st *state, userID uuid.UUID) (model.Membership, bool) {
	for _, m := range st.members {
		if m.UserID == nil || *m.UserID != userID || m.FamilyID == nil {
			continue
		}
		f, ok := st.families[*m.FamilyID]
		if !ok {
			continue
		}
		return model.Membership{UserID: userID, FamilyID: f.ID, FamilyName: f.Name, MemberID: m.ID}, true
	}
	return model.Membership{}, false
}

type families struct {
	x   exec
	now func() time.Time
}

func (r *families) Create(_ context.Context, name string) (model.Family, error) {
	var out model.Family
	err := r.x(func(st *state) error {
		out = model.Family{ID: uuid.New(), Name: name, CreatedAt: r.now()}
		st.families[out.ID] = out
		return nil
	})
	return out, err
}

func (r *families) MembershipForUser(_ context.Context, userID uuid.UUID) (model.Membership, error) {
	var out model.Membership
	err := r.x(func(st *state) error {
		m, ok := membership(st, userID)
		if !ok {
			return repo.ErrNotFound
		}
		out = m
		return nil
	})
	return out, err
}

type members struct {
	x   exec
	now func() time.Time
}

func (r *members) Create(_ context.Context, m model.Member) (model.Member, error) {
	err := r.x(func(st *state) error {
		if m.UserID != nil {
			for _, other := range st.members {
				if other.UserID != nil && *other.UserID == *m.UserID {
					return repo.ErrConflict
				}
			}
		}
		m.ID = uuid.New()
		m.CreatedAt = r.now()
		m.UpdatedAt = m.CreatedAt
		st.members[m.ID] = m
		st.next(m.ID)
		return nil
	})
	if err != nil {
		return model.Member{}, err
	}
	return m, nil
}

func (r *members) List(_ context.Context, familyID uuid.UUID) ([]model.Member, error) {
	out := []model.Member{}
	err := r.x(func(st *state) error {
		for _, m := range st.members {
			if m.FamilyID != nil && *m.FamilyID == familyID {
				out = append(out, m)
			}
		}
		sort.Slice(out, func(i, j int) bool { return st.order[out[i].ID] < st.order[out[j].ID] })
		return nil
	})
	return out, err
}

func (r *members) Get(_ context.Context, familyID, id uuid.UUID) (model.Member, error) {
	var out model.Member
	err := r.x(func(st *state) error {
		m, ok := getMember(st, familyID, id)
		if !ok {
			return repo.ErrNotFound
		}
		out = m
		return nil
	})
	return out, err
}

func getMember(st *state, familyID, id uuid.UUID) (model.Member, bool) {
	m, ok := st.members[id]
	if !ok || m.FamilyID == nil || *m.FamilyID != familyID {
		return model.Member{}, false
	}
	return m, true
}

func (r *members) Update(_ context.Context, familyID, id uuid.UUID, p model.MemberPatch, now time.Time) (model.Member, error) {
	var out model.Member
	err := r.x(func(st *state) error {
		m, ok := getMember(st, familyID, id)
		if !ok {
			return repo.ErrNotFound
		}
		if p.Empty() {
			out = m
			return nil
		}
		setValue(&m.Name, p.Name)
		setValue(&m.Role, p.Role)
		setPtr(&m.Relationship, p.Relationship)
		setValue(&m.Avatar, p.Avatar)
		setValue(&m.AvatarType, p.AvatarType)
		setPtr(&m.PhotoURL, p.PhotoURL)
		setValue(&m.Points, p.Points)
		setValue(&m.Level, p.Level)
		setValue(&m.Workload, p.Workload)
		setPtr(&m.Age, p.Age)
		m.UpdatedAt = now
		st.members[id] = m
		out = m
		return nil
	})
	return out, err
}

func (r *members) Detach(_ context.Context, familyID, id uuid.UUID, now time.Time) error {
	return r.x(func(st *state) error {
		m, ok := getMember(st, familyID, id)
		if !ok {
			return repo.ErrNotFound
		}
		m.FamilyID = nil
		m.UpdatedAt = now
		st.members[id] = m
		return nil
	})
}

type tasks struct {
	x   exec
	now func() time.Time
}

func (r *tasks) Create(_ context.Context, t model.Task) (model.Task, error) {
	var out model.Task
	err := r.x(func(st *state) error {
		t.ID = uuid.New()
		t.CreatedAt = r.now()
		t.UpdatedAt = t.CreatedAt
		t.RecurringDaysOfWeek = append([]int(nil), t.RecurringDaysOfWeek...)
		st.tasks[t.ID] = t
		st.next(t.ID)
		out = withAssignee(st, t)
		return nil
	})
	return out, err
}

func (r *tasks) List(_ context.Context, familyID uuid.UUID, completed *bool) ([]model.Task, error) {
	out := []model.Task{}
	err := r.x(func(st *state) error {
		for _, t := range st.tasks {
			if t.FamilyID != familyID || (completed != nil && t.Completed != *completed) {
				continue
			}
			out = append(out, withAssignee(st, t))
		}
		sort.Slice(out, func(i, j int) bool { return st.order[out[i].ID] > st.order[out[j].ID] })
		return nil
	})
	return out, err
}

func (r *tasks) Get(_ context.Context, familyID, id uuid.UUID) (model.Task, error) {
	var out model.Task
	err := r.x(func(st *state) error {
		t, ok := st.tasks[id]
		if !ok || t.FamilyID != familyID {
			return repo.ErrNotFound
		}
		out = withAssignee(st, t)
		return nil
	})
	return out, err
}

func (r *tasks) Update(_ context.Context, familyID, id uuid.UUID, p model.TaskPatch, now time.Time) (model.Task, error) {
	var out model.Task
	err := r.x(func(st *state) error {
		t, ok := st.tasks[id]
		if !ok || t.FamilyID != familyID {
			return repo.ErrNotFound
		}
		if !p.Empty() {
			setValue(&t.Title, p.Title)
			setPtr(&t.Description, p.Description)
			setPtr(&t.AssigneeID, p.AssigneeID)
			setValue(&t.Completed, p.Completed)
			setValue(&t.Points, p.Points)
			setValue(&t.Priority, p.Priority)
			setPtr(&t.Category, p.Category)
			setPtr(&t.ReminderTime, p.ReminderTime)
			setValue(&t.IsRecurring, p.IsRecurring)
			setPtr(&t.RecurringFrequency, p.RecurringFrequency)
			setPtr(&t.RecurringInterval, p.RecurringInterval)
			if p.RecurringDaysOfWeek.Set {
				t.RecurringDaysOfWeek = append([]int(nil), p.RecurringDaysOfWeek.Value...)
			}
			setDate(&t.RecurringEndDate, p.RecurringEndDate)
			setDate(&t.NextOccurrence, p.NextOccurrence)
			setPtr(&t.CookingDay, p.CookingDay)
			t.UpdatedAt = now
			st.tasks[id] = t
		}
		out = withAssignee(st, t)
		return nil
	})
	return out, err
}

func withAssignee(st *state, t model.Task) model.Task {
	t.AssigneeName = nil
	if t.AssigneeID != nil {
		if m, ok := st.members[*t.AssigneeID]; ok {
			name := m.Name
			t.AssigneeName = &name
		}
	}
	return t
}

func setValue[T any](dst *T, o model.Optional[T]) {
	if o.Set && !o.Null {
		*dst = o.Value
	}
}

func setPtr[T any](dst **T, o model.Optional[T]) {
	if o.Set {
		*dst = o.Ptr()
	}
}

func setDate(dst **time.Time, o model.Optional[model.Date]) {
	if !o.Set {
		return
	}
	if o.Null {
		*dst = nil
		return
	}
	v := o.Value.Time
	*dst = &v
}
