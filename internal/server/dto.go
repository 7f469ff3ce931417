package server

import (
	"time"

	"tasktrail/internal/domain"
)

type RegisterRequest struct {
	Name     string `json:"name" minLength:"1"`
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"6"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title" minLength:"1"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status,omitempty" doc:"Pending, In-Progress or Done; any casing"`
	Priority    string  `json:"priority,omitempty" doc:"Low, Medium or High; any casing"`
	Category    string  `json:"category,omitempty"`
	DueDate     *string `json:"due_date,omitempty" doc:"RFC 3339 timestamp or YYYY-MM-DD"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Category    *string `json:"category,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

type FieldChangeResponse struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

type HistoryEntryResponse struct {
	ID         string                `json:"id"`
	TaskID     string                `json:"task_id"`
	ChangeType string                `json:"change_type"`
	ModifiedBy domain.UserRef        `json:"modified_by"`
	Updates    []FieldChangeResponse `json:"updates"`
	Timestamp  time.Time             `json:"timestamp" format:"date-time"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func mapHistory(entries []domain.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		updates := make([]FieldChangeResponse, 0, len(e.Updates))
		for _, u := range e.Updates {
			updates = append(updates, FieldChangeResponse{Field: u.Field, OldValue: u.OldValue.Any(), NewValue: u.NewValue.Any()})
		}
		out = append(out, HistoryEntryResponse{
			ID:         e.ID,
			TaskID:     e.TaskID,
			ChangeType: string(e.ChangeType),
			ModifiedBy: e.Modifier,
			Updates:    updates,
			Timestamp:  e.Timestamp,
		})
	}
	return out
}
