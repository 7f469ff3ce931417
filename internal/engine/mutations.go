package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"tasktrail/internal/audit"
	"tasktrail/internal/domain"
	"tasktrail/internal/repo"
)

func (e Engine) loadScoped(ctx context.Context, tx *sql.Tx, actor domain.Actor, id string, notFound error) (domain.Task, error) {
	t, err := e.Repo.GetTaskTx(ctx, tx, id, actor.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return t, notFound
	}
	return t, err
}

// normalizePatch rejects an empty title and rewrites enums to their canonical spelling.
func normalizePatch(p domain.TaskPatch) (domain.TaskPatch, error) {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return p, invalid("title", "must not be empty")
		}
		p.Title = &title
	}
	if p.Status != nil {
		s, ok := domain.ParseStatus(string(*p.Status))
		if !ok {
			return p, invalid("status", "must be one of Pending, In-Progress, Done")
		}
		p.Status = &s
	}
	if p.Priority != nil {
		pr, ok := domain.ParsePriority(string(*p.Priority))
		if !ok {
			return p, invalid("priority", "must be one of Low, Medium, High")
		}
		p.Priority = &pr
	}
	return p, nil
}

// UpdateTask applies a partial update and records the changed fields. A patch
// that changes nothing writes neither the task nor an audit entry.
func (e Engine) UpdateTask(ctx context.Context, actor domain.Actor, id string, patch domain.TaskPatch) (domain.Task, error) {
	patch, err := normalizePatch(patch)
	if err != nil {
		return domain.Task{}, err
	}
	var out domain.Task
	err = e.atomically(ctx, "task update", func(tx *sql.Tx) error {
		current, err := e.loadScoped(ctx, tx, actor, id, ErrTaskNotFound)
		if err != nil {
			return err
		}
		effective := coupleArchive(current, patch)
		changes := ComputeDiff(current, effective)
		if len(changes) == 0 {
			out = current
			return nil
		}
		next := effective.Apply(current)
		next.UpdatedAt = e.now()
		if err := e.Repo.UpdateTask(ctx, tx, next); err != nil {
			return err
		}
		if _, err := e.Audit.Append(ctx, tx, audit.Entry{
			TaskID:     current.ID,
			OwnerID:    current.OwnerID,
			ModifiedBy: actor.UserID,
			ChangeType: domain.ChangeUpdated,
			Updates:    changes,
			At:         next.UpdatedAt,
		}); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return out, nil
}

// DeleteTask removes the task and records its last state.
func (e Engine) DeleteTask(ctx context.Context, actor domain.Actor, id string) error {
	return e.atomically(ctx, "task delete", func(tx *sql.Tx) error {
		current, err := e.loadScoped(ctx, tx, actor, id, ErrTaskNotFound)
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteTask(ctx, tx, current.ID, current.OwnerID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrTaskNotFound
			}
			return err
		}
		_, err = e.Audit.Append(ctx, tx, audit.Entry{
			TaskID:     current.ID,
			OwnerID:    current.OwnerID,
			ModifiedBy: actor.UserID,
			ChangeType: domain.ChangeDeleted,
			Updates:    snapshot(current),
			At:         e.now(),
		})
		return err
	})
}

func (e Engine) ArchiveTask(ctx context.Context, actor domain.Actor, id string) (domain.Task, error) {
	return e.transition(ctx, actor, id, "task archive", domain.ChangeArchived, ErrNotArchivable, archiveTransition)
}

func (e Engine) RestoreTask(ctx context.Context, actor domain.Actor, id string) (domain.Task, error) {
	return e.transition(ctx, actor, id, "task restore", domain.ChangeRestored, ErrNotRestorable, restoreTransition)
}

type transitionFunc func(domain.Task) (domain.Task, []domain.FieldChange, error)

func (e Engine) transition(ctx context.Context, actor domain.Actor, id, op string, change domain.ChangeType, notFound error, apply transitionFunc) (domain.Task, error) {
	var out domain.Task
	err := e.atomically(ctx, op, func(tx *sql.Tx) error {
		current, err := e.loadScoped(ctx, tx, actor, id, notFound)
		if err != nil {
			return err
		}
		next, changes, err := apply(current)
		if err != nil {
			return err
		}
		next.UpdatedAt = e.now()
		if err := e.Repo.SetArchived(ctx, tx, next); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound
			}
			return err
		}
		if _, err := e.Audit.Append(ctx, tx, audit.Entry{
			TaskID:     current.ID,
			OwnerID:    current.OwnerID,
			ModifiedBy: actor.UserID,
			ChangeType: change,
			Updates:    changes,
			At:         next.UpdatedAt,
		}); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return out, nil
}

// TaskHistory returns the task's audit entries, newest first. Entries are
// scoped to the owner recorded on them; admins see every owner's entries. A
// live task without entries yields an empty list rather than ErrHistoryNotFound.
func (e Engine) TaskHistory(ctx context.Context, actor domain.Actor, id string) ([]domain.HistoryEntry, error) {
	f := repo.AuditFilters{TaskID: id}
	owner := ""
	if !actor.IsAdmin() {
		owner = actor.UserID
		f.OwnerID = owner
	}
	entries, err := e.Repo.ListHistory(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return entries, nil
	}
	exists, err := e.Repo.TaskExists(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrHistoryNotFound
	}
	return entries, nil
}
