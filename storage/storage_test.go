package storage

import (
	"encoding/json"
	"testing"

	"dataflow-api/domain"
)

func TestTaskEntityCodec(t *testing.T) {
	task := domain.Task{
		ID:            "t1",
		ProjectID:     "p1",
		Title:         "Migrate billing",
		Responsible:   "Ana",
		CreationDate:  domain.NewDate(2026, 8, 1),
		DueDate:       domain.NewDate(2026, 9, 15),
		CompletedDate: domain.NewDate(2026, 8, 30),
		Status:        domain.ColumnDone,
		Timesheet: []domain.TimeEntry{
			{Date: domain.NewDate(2026, 8, 10), Hours: 2, Minutes: 30, Note: "schema"},
			{Date: domain.NewDate(2026, 8, 11), Hours: 1},
		},
	}

	payload, err := encodeTask("acct", task)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var ent taskEntity
	if err := json.Unmarshal(payload, &ent); err != nil {
		t.Fatalf("unmarshal entity: %v", err)
	}
	if ent.PartitionKey != "acct" || ent.RowKey != "t1" {
		t.Fatalf("unexpected keys %q/%q", ent.PartitionKey, ent.RowKey)
	}
	if ent.Status != "done" {
		t.Fatalf("unexpected status %q", ent.Status)
	}
	if ent.CreationDate != "2026-08-01" {
		t.Fatalf("unexpected creation date %q", ent.CreationDate)
	}

	got, err := decodeTask(ent)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != task.ID || got.ProjectID != task.ProjectID || got.Title != task.Title {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.CompletedDate.Equal(task.CompletedDate) {
		t.Fatalf("completed date mismatch: %v", got.CompletedDate)
	}
	if len(got.Timesheet) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got.Timesheet))
	}
	if got.Timesheet[0].Note != "schema" || got.Timesheet[0].Minutes != 30 {
		t.Fatalf("unexpected entry %+v", got.Timesheet[0])
	}
}

func TestTaskEntityCodecZeroDates(t *testing.T) {
	task := domain.Task{
		ID:           "t1",
		ProjectID:    "p1",
		Title:        "Fresh task",
		CreationDate: domain.Today(),
		Status:       domain.ColumnTodo,
	}

	payload, err := encodeTask("acct", task)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var ent taskEntity
	if err := json.Unmarshal(payload, &ent); err != nil {
		t.Fatalf("unmarshal entity: %v", err)
	}
	if ent.DueDate != "" || ent.CompletedDate != "" {
		t.Fatalf("expected empty unset dates, got %q/%q", ent.DueDate, ent.CompletedDate)
	}

	got, err := decodeTask(ent)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.DueDate.IsZero() || !got.CompletedDate.IsZero() {
		t.Fatalf("expected zero dates, got %v/%v", got.DueDate, got.CompletedDate)
	}
	if got.Timesheet != nil {
		t.Fatalf("expected nil timesheet, got %v", got.Timesheet)
	}
}

func TestEscapeFilter(t *testing.T) {
	if got := escapeFilter("O'Brien"); got != "O''Brien" {
		t.Fatalf("unexpected escape %q", got)
	}
	if got := escapeFilter("plain"); got != "plain" {
		t.Fatalf("unexpected escape %q", got)
	}
}
