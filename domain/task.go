package domain

// Column is one of the three fixed board lanes a task can occupy.
type Column string

const (
	ColumnTodo       Column = "todo"
	ColumnInProgress Column = "inProgress"
	ColumnDone       Column = "done"
)

// Columns returns the fixed board lanes in display order.
func Columns() []Column {
	return []Column{ColumnTodo, ColumnInProgress, ColumnDone}
}

// Valid reports whether c names one of the fixed lanes.
func (c Column) Valid() bool {
	switch c {
	case ColumnTodo, ColumnInProgress, ColumnDone:
		return true
	}
	return false
}

// TimeEntry is a single logged work session embedded in a task's timesheet.
type TimeEntry struct {
	Date    Date   `json:"date"`
	Hours   int    `json:"hours"`
	Minutes int    `json:"minutes"`
	Note    string `json:"note,omitempty"`
}

// Task represents a single board item.
type Task struct {
	ID            string      `json:"id"`
	ProjectID     string      `json:"projectId"`
	Title         string      `json:"title"`
	Responsible   string      `json:"responsible,omitempty"`
	CreationDate  Date        `json:"creationDate"`
	DueDate       Date        `json:"dueDate,omitempty"`
	CompletedDate Date        `json:"completedDate,omitempty"`
	Status        Column      `json:"status"`
	Timesheet     []TimeEntry `json:"timesheet"`
}

// TaskPatch carries the fields of a partial task update. Nil means unchanged.
type TaskPatch struct {
	Status        *Column     `json:"status,omitempty"`
	CompletedDate *Date       `json:"completedDate,omitempty"`
	Timesheet     []TimeEntry `json:"timesheet,omitempty"`
}
