package domain

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMoveSameColumnReorders(t *testing.T) {
	b := Load([]Task{task("a", ColumnTodo), task("b", ColumnTodo), task("c", ColumnTodo)})

	got, change := ApplyMove(b, Move{Source: ColumnTodo, SourceIndex: 0, Dest: ColumnTodo, DestIndex: 2})

	assert.Nil(t, change, "reorders owe no remote write")
	assert.Equal(t, []string{"b", "c", "a"}, ids(got.Column(ColumnTodo)))
}

func TestApplyMoveSameColumnPreservesTasks(t *testing.T) {
	before := Load([]Task{task("a", ColumnTodo), task("b", ColumnTodo), task("c", ColumnTodo)})

	after, _ := ApplyMove(before, Move{Source: ColumnTodo, SourceIndex: 2, Dest: ColumnTodo, DestIndex: 0})

	want := append([]Task(nil), before.Column(ColumnTodo)...)
	got := append([]Task(nil), after.Column(ColumnTodo)...)
	sort.Slice(want, func(i, j int) bool { return want[i].ID < want[j].ID })
	sort.Slice(got, func(i, j int) bool { return got[i].ID < got[j].ID })
	assert.Equal(t, want, got, "reorder must preserve the task multiset")
}

func TestApplyMoveCrossColumnSetsStatus(t *testing.T) {
	b := Load([]Task{task("a", ColumnTodo), task("b", ColumnInProgress)})

	got, change := ApplyMove(b, Move{Source: ColumnTodo, SourceIndex: 0, Dest: ColumnInProgress, DestIndex: 1})

	require.NotNil(t, change)
	assert.Equal(t, "a", change.TaskID)
	assert.Equal(t, ColumnInProgress, change.Status)
	assert.True(t, change.CompletedDate.IsZero())

	assert.Empty(t, got.Column(ColumnTodo))
	assert.Equal(t, []string{"b", "a"}, ids(got.Column(ColumnInProgress)))
	assert.Equal(t, ColumnInProgress, got.Column(ColumnInProgress)[1].Status)
}

func TestApplyMoveIntoDoneStampsCompletedDate(t *testing.T) {
	b := Load([]Task{task("a", ColumnTodo)})

	got, change := ApplyMove(b, Move{Source: ColumnTodo, SourceIndex: 0, Dest: ColumnDone, DestIndex: 0})

	require.NotNil(t, change)
	assert.Equal(t, ColumnDone, change.Status)
	assert.Equal(t, Today(), change.CompletedDate)

	done := got.Column(ColumnDone)
	require.Len(t, done, 1)
	assert.Equal(t, "a", done[0].ID)
	assert.Equal(t, ColumnDone, done[0].Status)
	assert.Equal(t, Today(), done[0].CompletedDate)
	assert.Empty(t, got.Column(ColumnTodo))
}

func TestApplyMoveCompletedDateStampedOnlyOnce(t *testing.T) {
	tk := task("a", ColumnDone)
	tk.CompletedDate = NewDate(2025, time.October, 10)
	b := Load([]Task{tk})

	// Out of done and back in again.
	b, change := ApplyMove(b, Move{Source: ColumnDone, SourceIndex: 0, Dest: ColumnTodo, DestIndex: 0})
	require.NotNil(t, change)
	assert.True(t, change.CompletedDate.IsZero())

	b, change = ApplyMove(b, Move{Source: ColumnTodo, SourceIndex: 0, Dest: ColumnDone, DestIndex: 0})
	require.NotNil(t, change)
	assert.True(t, change.CompletedDate.IsZero(), "already-completed tasks are not restamped")
	assert.Equal(t, NewDate(2025, time.October, 10), b.Column(ColumnDone)[0].CompletedDate)
}

func TestApplyMoveCancelledDropIsNoop(t *testing.T) {
	b := Load([]Task{task("a", ColumnTodo)})

	got, change := ApplyMove(b, Move{Source: ColumnTodo, SourceIndex: 0})

	assert.Nil(t, change)
	assert.Equal(t, []string{"a"}, ids(got.Column(ColumnTodo)))
}

func TestApplyMoveOutOfRangeIndicesAreNoops(t *testing.T) {
	b := Load([]Task{task("a", ColumnTodo), task("b", ColumnDone)})

	cases := []Move{
		{Source: ColumnTodo, SourceIndex: 5, Dest: ColumnDone, DestIndex: 0},
		{Source: ColumnTodo, SourceIndex: -1, Dest: ColumnDone, DestIndex: 0},
		{Source: ColumnTodo, SourceIndex: 0, Dest: ColumnDone, DestIndex: 3},
		{Source: ColumnTodo, SourceIndex: 0, Dest: ColumnTodo, DestIndex: 1},
		{Source: Column("backlog"), SourceIndex: 0, Dest: ColumnDone, DestIndex: 0},
		{Source: ColumnTodo, SourceIndex: 0, Dest: Column("backlog"), DestIndex: 0},
	}
	for _, mv := range cases {
		got, change := ApplyMove(b, mv)
		assert.Nilf(t, change, "move %+v", mv)
		assert.Equalf(t, ids(b.Tasks()), ids(got.Tasks()), "move %+v", mv)
		assert.Equalf(t, []string{"a"}, ids(got.Column(ColumnTodo)), "move %+v", mv)
	}
}

func TestApplyMoveTodoToDoneScenario(t *testing.T) {
	b := Load([]Task{task("a", ColumnTodo), task("b", ColumnTodo), task("c", ColumnDone)})

	got, change := ApplyMove(b, Move{Source: ColumnTodo, SourceIndex: 0, Dest: ColumnDone, DestIndex: 0})

	require.NotNil(t, change)
	assert.Len(t, got.Column(ColumnTodo), 1)
	done := got.Column(ColumnDone)
	require.Len(t, done, 2)
	assert.Equal(t, "a", done[0].ID)
	assert.Equal(t, ColumnDone, done[0].Status)
	assert.Equal(t, Today(), done[0].CompletedDate)
}
