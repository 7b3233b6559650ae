package household

import (
	"sort"
	"time"

	"github.com/familyassistant/server/internal/apperr"
	"github.com/familyassistant/server/internal/model"
)

// Recurrence is the repeat pattern of a recurring task
type Recurrence struct {
	Frequency  model.Frequency
	Interval   int
	DaysOfWeek []int
	EndDate    *time.Time
}

// recurrenceOf reads the pattern off a task. ok is false for one-off tasks.
func recurrenceOf(t model.Task) (Recurrence, bool) {
	if !t.IsRecurring || t.RecurringFrequency == nil {
		return Recurrence{}, false
	}
	r := Recurrence{Frequency: *t.RecurringFrequency, Interval: 1, DaysOfWeek: t.RecurringDaysOfWeek, EndDate: t.RecurringEndDate}
	if t.RecurringInterval != nil {
		r.Interval = *t.RecurringInterval
	}
	return r, true
}

// Validate checks frequency, interval and weekdays (0 = Sunday .. 6 = Saturday).
func (r Recurrence) Validate() error {
	if !r.Frequency.Valid() {
		return apperr.Validation("recurring_frequency must be one of daily, weekly, monthly, yearly")
	}
	if r.Interval < 1 {
		return apperr.Validation("recurring_interval must be at least 1")
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return apperr.Validation("recurring_days_of_week values must be between 0 and 6")
		}
	}
	return nil
}

// First returns the first occurrence on or after day.
func (r Recurrence) First(day time.Time) time.Time {
	day = startOfDay(day)
	if r.Frequency != model.FrequencyWeekly || len(r.DaysOfWeek) == 0 {
		return day
	}
	days := sortedDays(r.DaysOfWeek)
	wd := int(day.Weekday())
	for _, d := range days {
		if d >= wd {
			return day.AddDate(0, 0, d-wd)
		}
	}
	return day.AddDate(0, 0, 7-wd+days[0])
}

// Next returns the occurrence after from.
func (r Recurrence) Next(from time.Time) time.Time {
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}
	switch r.Frequency {
	case model.FrequencyDaily:
		return from.AddDate(0, 0, interval)
	case model.FrequencyWeekly:
		if len(r.DaysOfWeek) == 0 {
			return from.AddDate(0, 0, 7*interval)
		}
		days := sortedDays(r.DaysOfWeek)
		wd := int(from.Weekday())
		for _, d := range days {
			if d > wd {
				return from.AddDate(0, 0, d-wd)
			}
		}
		weekStart := from.AddDate(0, 0, -wd)
		return weekStart.AddDate(0, 0, 7*interval+days[0])
	case model.FrequencyMonthly:
		return addMonthsClamped(from, interval)
	case model.FrequencyYearly:
		return addMonthsClamped(from, 12*interval)
	}
	return from
}

// Ended reports whether next lies past the end date (compared by calendar day).
func (r Recurrence) Ended(next time.Time) bool {
	return r.EndDate != nil && startOfDay(next).After(startOfDay(*r.EndDate))
}

// addMonthsClamped adds months keeping the day of month, clamped to the month's last day (Jan 31 + 1 = Feb 28).
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sortedDays(days []int) []int {
	out := append([]int(nil), days...)
	sort.Ints(out)
	return out
}
