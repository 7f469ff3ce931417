package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tasktrail/internal/domain"
)

const taskColumns = `id,owner_id,title,description,status,priority,category,due_date,archived,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var status, priority, createdAt, updatedAt string
	var dueDate sql.NullString
	var archived int
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &status, &priority, &t.Category, &dueDate, &archived, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Status = domain.Status(status)
	t.Priority = domain.Priority(priority)
	t.Archived = archived != 0
	if t.DueDate, err = parseNullTime(dueDate); err != nil {
		return t, fmt.Errorf("task %s due_date: %w", t.ID, err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, fmt.Errorf("task %s created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return t, fmt.Errorf("task %s updated_at: %w", t.ID, err)
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.OwnerID, t.Title, t.Description, string(t.Status), string(t.Priority), t.Category,
		nullableTime(t.DueDate), boolInt(t.Archived), FormatTime(t.CreatedAt), FormatTime(t.UpdatedAt))
	return err
}

// GetTask loads a task scoped to its owner. Another owner's task is ErrNotFound.
func (r Repo) GetTask(ctx context.Context, id, ownerID string) (domain.Task, error) {
	return r.GetTaskTx(ctx, nil, id, ownerID)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id, ownerID string) (domain.Task, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=? AND owner_id=?`, id, ownerID)
	return scanTask(row)
}

// UpdateTask writes every mutable column of t, scoped to (id, owner).
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, priority=?, category=?, due_date=?, archived=?, updated_at=? WHERE id=? AND owner_id=?`,
		t.Title, t.Description, string(t.Status), string(t.Priority), t.Category, nullableTime(t.DueDate),
		boolInt(t.Archived), FormatTime(t.UpdatedAt), t.ID, t.OwnerID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// SetArchived flips the archived flag only when it currently holds the opposite value.
func (r Repo) SetArchived(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET archived=?, status=?, updated_at=? WHERE id=? AND owner_id=? AND archived=?`,
		boolInt(t.Archived), string(t.Status), FormatTime(t.UpdatedAt), t.ID, t.OwnerID, boolInt(!t.Archived))
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id, ownerID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

type TaskFilters struct {
	OwnerID  string
	Status   string
	Priority string
	Category string
	Archived *bool
	SortBy   string
	Offset   int
	Limit    int
}

// SortColumns maps the accepted sort keys to columns.
var SortColumns = map[string]string{
	"title":      "title",
	"status":     "status",
	"priority":   "priority",
	"category":   "category",
	"due_date":   "due_date",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (f TaskFilters) where() (string, []any) {
	clauses := []string{"owner_id=?"}
	args := []any{f.OwnerID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.Archived != nil {
		clauses = append(clauses, "archived=?")
		args = append(args, boolInt(*f.Archived))
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// ListTasks returns one page of the owner's tasks and the total matching count.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, int, error) {
	if f.OwnerID == "" {
		return nil, 0, fmt.Errorf("owner required")
	}
	where, args := f.where()
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	order := "created_at DESC, id DESC"
	if f.SortBy != "" {
		col, ok := SortColumns[f.SortBy]
		if !ok {
			return nil, 0, fmt.Errorf("unsupported sort field %q", f.SortBy)
		}
		order = col + " ASC, id ASC"
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY ` + order
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, t)
	}
	return res, total, rows.Err()
}

func (r Repo) CountTasksByOwner(ctx context.Context, tx *sql.Tx, ownerID string) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE owner_id=?`, ownerID).Scan(&n)
	return n, err
}

// TaskExists reports whether the task exists. An empty owner checks across owners.
func (r Repo) TaskExists(ctx context.Context, id, ownerID string) (bool, error) {
	query := `SELECT COUNT(*) FROM tasks WHERE id=?`
	args := []any{id}
	if ownerID != "" {
		query += ` AND owner_id=?`
		args = append(args, ownerID)
	}
	var n int
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n > 0, err
}
