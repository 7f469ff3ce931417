package engine

import (
	"errors"
	"testing"
	"time"

	"tasktrail/internal/domain"
)

func baseTask() domain.Task {
	due := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return domain.Task{
		ID:          "t1",
		OwnerID:     "u1",
		Title:       "Title",
		Description: "Desc",
		Status:      domain.StatusPending,
		Priority:    domain.PriorityMedium,
		Category:    "work",
		DueDate:     &due,
	}
}

func TestComputeDiff(t *testing.T) {
	title := "Title"
	newTitle := "Other"
	desc := ""
	later := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	sameDue := time.Date(2024, 5, 1, 11, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))
	done := domain.StatusDone

	cases := []struct {
		name   string
		patch  domain.TaskPatch
		fields []string
	}{
		{name: "empty patch", patch: domain.TaskPatch{}},
		{name: "same title", patch: domain.TaskPatch{Title: &title}},
		{name: "same instant other zone", patch: domain.TaskPatch{DueDate: &sameDue}},
		{name: "title", patch: domain.TaskPatch{Title: &newTitle}, fields: []string{domain.FieldTitle}},
		{name: "cleared description", patch: domain.TaskPatch{Description: &desc}, fields: []string{domain.FieldDescription}},
		{
			name:   "canonical order",
			patch:  domain.TaskPatch{DueDate: &later, Status: &done, Title: &newTitle},
			fields: []string{domain.FieldTitle, domain.FieldStatus, domain.FieldDueDate},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			changes := ComputeDiff(baseTask(), tc.patch)
			if len(changes) != len(tc.fields) {
				t.Fatalf("expected %v, got %+v", tc.fields, changes)
			}
			for i, c := range changes {
				if c.Field != tc.fields[i] {
					t.Fatalf("change %d: expected %s, got %s", i, tc.fields[i], c.Field)
				}
				if c.OldValue.Equal(c.NewValue) {
					t.Fatalf("change %d records equal values: %+v", i, c)
				}
			}
		})
	}
}

func TestComputeDiffDueDateFromNull(t *testing.T) {
	task := baseTask()
	task.DueDate = nil
	due := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	changes := ComputeDiff(task, domain.TaskPatch{DueDate: &due})
	if len(changes) != 1 || !changes[0].OldValue.IsNull() || !changes[0].NewValue.Equal(domain.TimeValue(due)) {
		t.Fatalf("unexpected changes: %+v", changes)
	}
}

func TestSnapshotListsEveryField(t *testing.T) {
	task := baseTask()
	task.DueDate = nil
	changes := snapshot(task)
	if len(changes) != 6 {
		t.Fatalf("expected 6 fields, got %d", len(changes))
	}
	for _, c := range changes {
		if !c.NewValue.IsNull() {
			t.Fatalf("%s: new value should be null", c.Field)
		}
	}
	if !changes[5].OldValue.IsNull() {
		t.Fatalf("missing due date should snapshot as null, got %+v", changes[5].OldValue)
	}
}

func TestCoupleArchive(t *testing.T) {
	done := domain.StatusDone
	pending := domain.StatusPending
	title := "x"

	active := baseTask()
	archived := baseTask()
	archived.Status = domain.StatusDone
	archived.Archived = true

	if p := coupleArchive(active, domain.TaskPatch{Status: &done}); p.Archived == nil || !*p.Archived {
		t.Fatalf("Done should archive")
	}
	if p := coupleArchive(archived, domain.TaskPatch{Status: &pending}); p.Archived == nil || *p.Archived {
		t.Fatalf("Pending on archived task should unarchive")
	}
	if p := coupleArchive(active, domain.TaskPatch{Status: &pending}); p.Archived != nil {
		t.Fatalf("active task should be left alone")
	}
	if p := coupleArchive(archived, domain.TaskPatch{Title: &title}); p.Archived != nil {
		t.Fatalf("status-less patch should be left alone")
	}
}

func TestTransitions(t *testing.T) {
	active := baseTask()
	next, changes, err := archiveTransition(active)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !next.Archived || next.Status != domain.StatusDone || len(changes) != 1 {
		t.Fatalf("archive result: %+v %+v", next, changes)
	}
	if _, _, err := archiveTransition(next); !errors.Is(err, ErrNotArchivable) {
		t.Fatalf("archive archived: %v", err)
	}

	restored, changes, err := restoreTransition(next)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Archived || restored.Status != domain.StatusPending || len(changes) != 2 {
		t.Fatalf("restore result: %+v %+v", restored, changes)
	}
	if _, _, err := restoreTransition(active); !errors.Is(err, ErrNotRestorable) {
		t.Fatalf("restore active: %v", err)
	}
}
