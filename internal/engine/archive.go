package engine

import (
	"fmt"

	"tasktrail/internal/domain"
	"tasktrail/internal/repo"
)

var (
	ErrTaskNotFound    = fmt.Errorf("task not found: %w", repo.ErrNotFound)
	ErrNotArchivable   = fmt.Errorf("task not found or already archived: %w", repo.ErrNotFound)
	ErrNotRestorable   = fmt.Errorf("task not found or not archived: %w", repo.ErrNotFound)
	ErrHistoryNotFound = fmt.Errorf("no history found for task: %w", repo.ErrNotFound)
)

// coupleArchive keeps archived implying Done for a generic update. Done
// archives the task; any other status on an archived task restores it.
func coupleArchive(current domain.Task, patch domain.TaskPatch) domain.TaskPatch {
	if patch.Status == nil {
		return patch
	}
	switch {
	case *patch.Status == domain.StatusDone:
		archived := true
		patch.Archived = &archived
	case current.Archived:
		archived := false
		patch.Archived = &archived
	}
	return patch
}

// archiveTransition moves an active task to archived. Only the archived flag is
// recorded, even when the status is forced to Done alongside it.
func archiveTransition(t domain.Task) (domain.Task, []domain.FieldChange, error) {
	if t.Archived {
		return t, nil, ErrNotArchivable
	}
	next := t
	next.Archived = true
	next.Status = domain.StatusDone
	changes := []domain.FieldChange{
		{Field: domain.FieldArchived, OldValue: domain.BoolValue(false), NewValue: domain.BoolValue(true)},
	}
	return next, changes, nil
}

// restoreTransition moves an archived task back to an active Pending task.
func restoreTransition(t domain.Task) (domain.Task, []domain.FieldChange, error) {
	if !t.Archived {
		return t, nil, ErrNotRestorable
	}
	next := t
	next.Archived = false
	next.Status = domain.StatusPending
	changes := []domain.FieldChange{
		{Field: domain.FieldArchived, OldValue: domain.BoolValue(true), NewValue: domain.BoolValue(false)},
		{Field: domain.FieldStatus, OldValue: domain.EnumValue(string(t.Status)), NewValue: domain.EnumValue(string(domain.StatusPending))},
	}
	return next, changes, nil
}
