package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"tasktrail/internal/domain"
)

type AuditFilters struct {
	TaskID string
	// OwnerID scopes entries to the task owner recorded at write time. Empty means unscoped.
	OwnerID string
}

func scanAuditEntry(row scanner, extra ...any) (domain.AuditEntry, error) {
	var e domain.AuditEntry
	var changeType, updates, ts string
	dest := append([]any{&e.Seq, &e.ID, &e.TaskID, &e.OwnerID, &e.ModifiedBy, &changeType, &updates, &ts}, extra...)
	if err := row.Scan(dest...); err != nil {
		return e, err
	}
	e.ChangeType = domain.ChangeType(changeType)
	if err := json.Unmarshal([]byte(updates), &e.Updates); err != nil {
		return e, fmt.Errorf("audit %s updates: %w", e.ID, err)
	}
	t, err := parseTime(ts)
	if err != nil {
		return e, fmt.Errorf("audit %s ts: %w", e.ID, err)
	}
	e.Timestamp = t
	return e, nil
}

// ListHistory returns entries newest first with the modifier resolved.
func (r Repo) ListHistory(ctx context.Context, f AuditFilters) ([]domain.HistoryEntry, error) {
	clauses := []string{"a.task_id=?"}
	args := []any{f.TaskID}
	if f.OwnerID != "" {
		clauses = append(clauses, "a.owner_id=?")
		args = append(args, f.OwnerID)
	}
	query := `SELECT a.seq,a.id,a.task_id,a.owner_id,a.modified_by,a.change_type,a.updates_json,a.ts,
COALESCE(u.name,''),COALESCE(u.email,'')
FROM audit_log a LEFT JOIN users u ON u.id=a.modified_by
WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY a.seq DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.HistoryEntry{}
	for rows.Next() {
		var name, email string
		e, err := scanAuditEntry(rows, &name, &email)
		if err != nil {
			return nil, err
		}
		res = append(res, domain.HistoryEntry{
			AuditEntry: e,
			Modifier:   domain.UserRef{ID: e.ModifiedBy, Name: name, Email: email},
		})
	}
	return res, rows.Err()
}

// AuditAfter returns entries with seq greater than cursor, oldest first.
func (r Repo) AuditAfter(ctx context.Context, limit int, cursor int64) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT seq,id,task_id,owner_id,modified_by,change_type,updates_json,ts FROM audit_log WHERE seq>? ORDER BY seq ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestAuditSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0) FROM audit_log`).Scan(&seq)
	return seq, err
}

// CountAudit counts entries for a task, within tx when given.
func (r Repo) CountAudit(ctx context.Context, tx *sql.Tx, taskID string) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log WHERE task_id=?`, taskID).Scan(&n)
	return n, err
}
