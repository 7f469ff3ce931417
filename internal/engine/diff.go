package engine

import "tasktrail/internal/domain"

// ComputeDiff lists the proposed fields whose value differs from the current
// task, in canonical field order. An empty result means nothing changed.
func ComputeDiff(existing domain.Task, patch domain.TaskPatch) []domain.FieldChange {
	var changes []domain.FieldChange
	for _, fv := range patch.Values() {
		old := existing.Field(fv.Field)
		if old.Equal(fv.Value) {
			continue
		}
		changes = append(changes, domain.FieldChange{Field: fv.Field, OldValue: old, NewValue: fv.Value})
	}
	return changes
}

// snapshot records every field of a deleted task against a null new value.
func snapshot(t domain.Task) []domain.FieldChange {
	changes := make([]domain.FieldChange, 0, len(domain.SnapshotFields))
	for _, f := range domain.SnapshotFields {
		changes = append(changes, domain.FieldChange{Field: f, OldValue: t.Field(f), NewValue: domain.Null()})
	}
	return changes
}
