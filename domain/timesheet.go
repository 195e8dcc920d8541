package domain

import (
	"fmt"
	"sort"
)

// NoResponsible labels timesheet hours of tasks without an assignee.
const NoResponsible = "Sin responsable"

// ValidateEntry gates a candidate time entry against the task it belongs to.
// The date must fall between the task's creation date and today, both
// inclusive; "today" is taken at call time and compared date-only. Entries
// already stored are never re-validated when today advances.
func ValidateEntry(task Task, entry TimeEntry) error {
	if entry.Date.IsZero() || entry.Hours < 0 || entry.Minutes < 0 || entry.Minutes > 59 {
		return ErrMissingRequiredField
	}
	if entry.Date.Before(task.CreationDate) {
		return ErrDateBeforeTaskStart
	}
	if entry.Date.After(Today()) {
		return ErrDateInFuture
	}
	return nil
}

// AppendEntry returns a copy of task with the entry appended to its
// timesheet. Entries keep insertion order, not date order. Callers must
// validate the entry first.
func AppendEntry(task Task, entry TimeEntry) Task {
	sheet := make([]TimeEntry, 0, len(task.Timesheet)+1)
	sheet = append(sheet, task.Timesheet...)
	task.Timesheet = append(sheet, entry)
	return task
}

// TaskTotalHours sums a task's timesheet as decimal hours.
func TaskTotalHours(task Task) float64 {
	total := 0.0
	for _, e := range task.Timesheet {
		total += float64(e.Hours) + float64(e.Minutes)/60
	}
	return total
}

// TaskTotalDuration sums a task's timesheet as whole hours and minutes,
// carrying minutes into hours so 0 <= minutes < 60.
func TaskTotalDuration(task Task) (hours, minutes int) {
	for _, e := range task.Timesheet {
		hours += e.Hours
		minutes += e.Minutes
	}
	hours += minutes / 60
	minutes %= 60
	return hours, minutes
}

// ProjectTotalHours sums TaskTotalHours over every task in every column.
func ProjectTotalHours(tasks []Task) float64 {
	total := 0.0
	for _, t := range tasks {
		total += TaskTotalHours(t)
	}
	return total
}

// HoursByResponsible groups logged hours by assignee, formatted with two
// decimals. Tasks without an assignee are grouped under NoResponsible.
// Assignees whose aggregated total is zero are left out entirely.
func HoursByResponsible(tasks []Task) map[string]string {
	totals := make(map[string]float64)
	for _, t := range tasks {
		hours := TaskTotalHours(t)
		if hours == 0 {
			continue
		}
		name := t.Responsible
		if name == "" {
			name = NoResponsible
		}
		totals[name] += hours
	}
	out := make(map[string]string, len(totals))
	for name, hours := range totals {
		out[name] = fmt.Sprintf("%.2f", hours)
	}
	return out
}

// Responsibles returns the assignee names present in the rollup, sorted.
func Responsibles(byName map[string]string) []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
