package domain

// Move is a single drag gesture translated into column/index coordinates.
// An empty Dest means the drop was cancelled or landed outside any column.
type Move struct {
	Source      Column `json:"source"`
	SourceIndex int    `json:"sourceIndex"`
	Dest        Column `json:"destination"`
	DestIndex   int    `json:"destIndex"`
}

// TaskChange records the fields a cross-column move owes to remote storage.
type TaskChange struct {
	TaskID        string `json:"taskId"`
	Status        Column `json:"status"`
	CompletedDate Date   `json:"completedDate,omitempty"`
}

// ApplyMove computes the board state after one move gesture. Same-column moves
// are pure reorders and owe no remote write, so the change record is nil.
// Cross-column moves rewrite the task's status, stamp CompletedDate the first
// time the task enters the done column, and return the change to persist.
// A cancelled drop or an out-of-range index leaves the board untouched.
func ApplyMove(b Board, mv Move) (Board, *TaskChange) {
	if mv.Dest == "" || !mv.Source.Valid() || !mv.Dest.Valid() {
		return b, nil
	}
	src := b.Column(mv.Source)
	if mv.SourceIndex < 0 || mv.SourceIndex >= len(src) {
		return b, nil
	}

	if mv.Source == mv.Dest {
		if mv.DestIndex < 0 || mv.DestIndex >= len(src) {
			return b, nil
		}
		moved := src[mv.SourceIndex]
		next := b.clone()
		seq := deleteAt(src, mv.SourceIndex)
		next.columns[mv.Source] = insertAt(seq, mv.DestIndex, moved)
		return next, nil
	}

	dst := b.Column(mv.Dest)
	if mv.DestIndex < 0 || mv.DestIndex > len(dst) {
		return b, nil
	}

	moved := src[mv.SourceIndex]
	moved.Status = mv.Dest
	change := &TaskChange{TaskID: moved.ID, Status: moved.Status}
	if mv.Dest == ColumnDone && moved.CompletedDate.IsZero() {
		moved.CompletedDate = Today()
		// Stamped exactly once; later trips through done leave it alone.
		change.CompletedDate = moved.CompletedDate
	}

	next := b.clone()
	next.columns[mv.Source] = deleteAt(src, mv.SourceIndex)
	next.columns[mv.Dest] = insertAt(dst, mv.DestIndex, moved)
	return next, change
}
