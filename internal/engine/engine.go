package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tasktrail/internal/audit"
	"tasktrail/internal/domain"
	"tasktrail/internal/repo"
)

// Engine is the only writer of tasks and audit entries.
type Engine struct {
	DB    *sql.DB
	Repo  repo.Repo
	Audit audit.Writer
	Now   func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:    db,
		Repo:  repo.Repo{DB: db},
		Audit: audit.Writer{},
		Now:   time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// TxError reports a mutation whose transaction was rolled back.
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string { return fmt.Sprintf("%s failed: %v", e.Op, e.Err) }

func (e *TxError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// atomically runs fn in one transaction. Not-found and validation outcomes pass
// through unchanged; every other failure is wrapped in a TxError. Either way
// nothing fn wrote is kept.
func (e Engine) atomically(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return &TxError{Op: op, Err: err}
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		var verr *ValidationError
		if errors.Is(err, repo.ErrNotFound) || errors.As(err, &verr) {
			return err
		}
		return &TxError{Op: op, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &TxError{Op: op, Err: err}
	}
	return nil
}

// TaskCreateOptions are parameters for creating a task. Enum fields accept any casing.
type TaskCreateOptions struct {
	Title       string
	Description string
	Status      string
	Priority    string
	Category    string
	DueDate     *time.Time
}

func (e Engine) CreateTask(ctx context.Context, actor domain.Actor, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, invalid("title", "is required")
	}
	status := domain.StatusPending
	if opts.Status != "" {
		s, ok := domain.ParseStatus(opts.Status)
		if !ok {
			return domain.Task{}, invalid("status", "must be one of Pending, In-Progress, Done")
		}
		status = s
	}
	priority := domain.PriorityMedium
	if opts.Priority != "" {
		p, ok := domain.ParsePriority(opts.Priority)
		if !ok {
			return domain.Task{}, invalid("priority", "must be one of Low, Medium, High")
		}
		priority = p
	}
	now := e.now()
	t := domain.Task{
		ID:          uuid.NewString(),
		OwnerID:     actor.UserID,
		Title:       title,
		Description: opts.Description,
		Status:      status,
		Priority:    priority,
		Category:    strings.TrimSpace(opts.Category),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.DueDate != nil {
		d := opts.DueDate.UTC()
		t.DueDate = &d
	}
	err := e.atomically(ctx, "task create", func(tx *sql.Tx) error {
		return e.Repo.InsertTask(ctx, tx, t)
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, actor domain.Actor, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id, actor.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return t, ErrTaskNotFound
	}
	return t, err
}

type TaskQuery struct {
	Status   string
	Priority string
	Category string
	Archived bool
	SortBy   string
	Page     int
	Limit    int
}

type TaskPage struct {
	Items []domain.Task `json:"items"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Total int           `json:"total"`
}

// ListTasks lists the actor's active or archived tasks, one page at a time.
func (e Engine) ListTasks(ctx context.Context, actor domain.Actor, q TaskQuery) (TaskPage, error) {
	f := repo.TaskFilters{
		OwnerID:  actor.UserID,
		Category: strings.TrimSpace(q.Category),
		Archived: &q.Archived,
		SortBy:   strings.TrimSpace(q.SortBy),
	}
	if q.Status != "" {
		s, ok := domain.ParseStatus(q.Status)
		if !ok {
			return TaskPage{}, invalid("status", "must be one of Pending, In-Progress, Done")
		}
		f.Status = string(s)
	}
	if q.Priority != "" {
		p, ok := domain.ParsePriority(q.Priority)
		if !ok {
			return TaskPage{}, invalid("priority", "must be one of Low, Medium, High")
		}
		f.Priority = string(p)
	}
	if f.SortBy != "" {
		if _, ok := repo.SortColumns[f.SortBy]; !ok {
			return TaskPage{}, invalid("sort_by", "unsupported sort field %q", f.SortBy)
		}
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	f.Limit = q.Limit
	f.Offset = (q.Page - 1) * q.Limit
	items, total, err := e.Repo.ListTasks(ctx, f)
	if err != nil {
		return TaskPage{}, err
	}
	return TaskPage{Items: items, Page: q.Page, Limit: q.Limit, Total: total}, nil
}
