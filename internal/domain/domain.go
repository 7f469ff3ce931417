package domain

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In-Progress"
	StatusDone       Status = "Done"
)

var statuses = []Status{StatusPending, StatusInProgress, StatusDone}

// ParseStatus accepts any casing and an underscore or space for the dash.
func ParseStatus(v string) (Status, bool) {
	key := normalizeEnum(v)
	for _, s := range statuses {
		if normalizeEnum(string(s)) == key {
			return s, true
		}
	}
	return "", false
}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

var priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func ParsePriority(v string) (Priority, bool) {
	key := normalizeEnum(v)
	for _, p := range priorities {
		if normalizeEnum(string(p)) == key {
			return p, true
		}
	}
	return "", false
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func ParseRole(v string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(v))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

func normalizeEnum(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.NewReplacer("_", "-", " ", "-").Replace(v)
}

type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status" enum:"Pending,In-Progress,Done"`
	Priority    Priority   `json:"priority" enum:"Low,Medium,High"`
	Category    string     `json:"category"`
	DueDate     *time.Time `json:"due_date,omitempty" format:"date-time"`
	Archived    bool       `json:"archived"`
	CreatedAt   time.Time  `json:"created_at" format:"date-time"`
	UpdatedAt   time.Time  `json:"updated_at" format:"date-time"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role" enum:"user,admin"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at" format:"date-time"`
}

// Actor is the resolved identity every task operation runs as.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type ChangeType string

const (
	ChangeUpdated  ChangeType = "Task updated"
	ChangeDeleted  ChangeType = "Task deleted"
	ChangeArchived ChangeType = "Task archived"
	ChangeRestored ChangeType = "Task restored"
)

// Audit field names, in the order diffs and snapshots list them.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldPriority    = "priority"
	FieldCategory    = "category"
	FieldDueDate     = "due_date"
	FieldArchived    = "archived"
)

type FieldChange struct {
	Field    string `json:"field"`
	OldValue Value  `json:"old_value"`
	NewValue Value  `json:"new_value"`
}

type AuditEntry struct {
	ID         string        `json:"id"`
	Seq        int64         `json:"seq"`
	TaskID     string        `json:"task_id"`
	OwnerID    string        `json:"owner_id"`
	ModifiedBy string        `json:"modified_by"`
	ChangeType ChangeType    `json:"change_type"`
	Updates    []FieldChange `json:"updates"`
	Timestamp  time.Time     `json:"timestamp" format:"date-time"`
}

// UserRef is the display identity attached to history entries.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type HistoryEntry struct {
	AuditEntry
	Modifier UserRef
}
