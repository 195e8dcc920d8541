package domain

// Board partitions a project's tasks into the three fixed columns. Each task
// appears in exactly one column's ordered sequence. Board values are cheap to
// copy; mutating operations return a new Board and leave the receiver intact.
type Board struct {
	columns map[Column][]Task
}

// Load partitions a flat task list by status. Tasks with an unknown or empty
// status land in the todo column. The input slice is not mutated.
func Load(tasks []Task) Board {
	b := emptyBoard()
	for _, t := range tasks {
		col := t.Status
		if !col.Valid() {
			col = ColumnTodo
			t.Status = col
		}
		b.columns[col] = append(b.columns[col], t)
	}
	return b
}

func emptyBoard() Board {
	return Board{columns: map[Column][]Task{
		ColumnTodo:       nil,
		ColumnInProgress: nil,
		ColumnDone:       nil,
	}}
}

// Column returns the ordered task sequence of one lane. The returned slice
// must not be modified by the caller.
func (b Board) Column(col Column) []Task {
	if b.columns == nil {
		return nil
	}
	return b.columns[col]
}

// Tasks returns every task on the board, todo first, done last.
func (b Board) Tasks() []Task {
	var out []Task
	for _, col := range Columns() {
		out = append(out, b.Column(col)...)
	}
	return out
}

// Insert appends a task to the end of the named column. Any entry already on
// the board with the same id is removed first, so task ids stay unique across
// all three sequences.
func (b Board) Insert(col Column, t Task) (Board, error) {
	if !col.Valid() {
		return b, InvalidColumnError{Column: col}
	}
	next := b.drop(t.ID)
	t.Status = col
	next.columns[col] = append(next.columns[col], t)
	return next, nil
}

// Remove deletes the first task with the given id from the named column.
// A missing task or an unknown column is a no-op, not an error.
func (b Board) Remove(col Column, taskID string) Board {
	if !col.Valid() {
		return b
	}
	seq := b.Column(col)
	for i, t := range seq {
		if t.ID == taskID {
			next := b.clone()
			next.columns[col] = deleteAt(seq, i)
			return next
		}
	}
	return b
}

// Find locates a task by id and reports the column holding it.
func (b Board) Find(taskID string) (Task, Column, bool) {
	for _, col := range Columns() {
		for _, t := range b.Column(col) {
			if t.ID == taskID {
				return t, col, true
			}
		}
	}
	return Task{}, "", false
}

// drop removes taskID from whichever column holds it and returns the clone.
func (b Board) drop(taskID string) Board {
	next := b.clone()
	for _, col := range Columns() {
		seq := next.columns[col]
		for i, t := range seq {
			if t.ID == taskID {
				next.columns[col] = deleteAt(seq, i)
				return next
			}
		}
	}
	return next
}

func (b Board) clone() Board {
	next := emptyBoard()
	if b.columns == nil {
		return next
	}
	for col, seq := range b.columns {
		if len(seq) == 0 {
			continue
		}
		cp := make([]Task, len(seq))
		copy(cp, seq)
		next.columns[col] = cp
	}
	return next
}

func deleteAt(seq []Task, i int) []Task {
	out := make([]Task, 0, len(seq)-1)
	out = append(out, seq[:i]...)
	return append(out, seq[i+1:]...)
}

func insertAt(seq []Task, i int, t Task) []Task {
	out := make([]Task, 0, len(seq)+1)
	out = append(out, seq[:i]...)
	out = append(out, t)
	return append(out, seq[i:]...)
}
