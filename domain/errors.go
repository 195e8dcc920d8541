package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDateBeforeTaskStart rejects a time entry dated before the task was created.
	ErrDateBeforeTaskStart = errors.New("entry date precedes the task creation date")
	// ErrDateInFuture rejects a time entry dated after today.
	ErrDateInFuture = errors.New("entry date is in the future")
	// ErrMissingRequiredField rejects a time entry without a date or a usable duration.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrNothingToExport signals that the done column holds no tasks to export.
	ErrNothingToExport = errors.New("no completed tasks to export")
)

// InvalidColumnError reports a column key outside the fixed lane set.
type InvalidColumnError struct {
	Column Column
}

func (e InvalidColumnError) Error() string {
	return fmt.Sprintf("invalid column %q", string(e.Column))
}
