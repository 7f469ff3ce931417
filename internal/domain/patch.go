package domain

import "time"

// TaskPatch is a partial update. A nil field is not part of the update.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *Status
	Priority    *Priority
	Category    *string
	DueDate     *time.Time
	Archived    *bool
}

func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil &&
		p.Category == nil && p.DueDate == nil && p.Archived == nil
}

// Apply returns t with every proposed field set.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.DueDate != nil {
		d := p.DueDate.UTC()
		t.DueDate = &d
	}
	if p.Archived != nil {
		t.Archived = *p.Archived
	}
	return t
}

// FieldValue is one named field of a task or patch.
type FieldValue struct {
	Field string
	Value Value
}

// Values returns the proposed fields in canonical order.
func (p TaskPatch) Values() []FieldValue {
	var out []FieldValue
	if p.Title != nil {
		out = append(out, FieldValue{FieldTitle, TextValue(*p.Title)})
	}
	if p.Description != nil {
		out = append(out, FieldValue{FieldDescription, TextValue(*p.Description)})
	}
	if p.Status != nil {
		out = append(out, FieldValue{FieldStatus, EnumValue(string(*p.Status))})
	}
	if p.Priority != nil {
		out = append(out, FieldValue{FieldPriority, EnumValue(string(*p.Priority))})
	}
	if p.Category != nil {
		out = append(out, FieldValue{FieldCategory, TextValue(*p.Category)})
	}
	if p.DueDate != nil {
		out = append(out, FieldValue{FieldDueDate, TimeValue(*p.DueDate)})
	}
	if p.Archived != nil {
		out = append(out, FieldValue{FieldArchived, BoolValue(*p.Archived)})
	}
	return out
}

// Field returns the current value of a named task field.
func (t Task) Field(name string) Value {
	switch name {
	case FieldTitle:
		return TextValue(t.Title)
	case FieldDescription:
		return TextValue(t.Description)
	case FieldStatus:
		return EnumValue(string(t.Status))
	case FieldPriority:
		return EnumValue(string(t.Priority))
	case FieldCategory:
		return TextValue(t.Category)
	case FieldDueDate:
		return OptionalTime(t.DueDate)
	case FieldArchived:
		return BoolValue(t.Archived)
	}
	return Null()
}

// SnapshotFields are recorded when a task is deleted.
var SnapshotFields = []string{FieldTitle, FieldDescription, FieldStatus, FieldPriority, FieldCategory, FieldDueDate}
