package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tasktrail/internal/domain"
	"tasktrail/internal/repo"
)

// Writer appends audit entries. It only ever writes through a caller-owned
// transaction, so an entry cannot commit without the mutation it records.
type Writer struct {
	Now   func() time.Time
	NewID func() string
}

type Entry struct {
	TaskID     string
	OwnerID    string
	ModifiedBy string
	ChangeType domain.ChangeType
	Updates    []domain.FieldChange
	// At defaults to Writer.Now.
	At time.Time
}

var ErrNoTx = errors.New("audit: append requires an open transaction")

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) (string, error) {
	if tx == nil {
		return "", ErrNoTx
	}
	if e.TaskID == "" || e.ModifiedBy == "" || e.ChangeType == "" {
		return "", fmt.Errorf("audit: task, modifier and change type required")
	}
	if len(e.Updates) == 0 {
		return "", fmt.Errorf("audit: entry for task %s has no updates", e.TaskID)
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	at := e.At
	if at.IsZero() {
		at = now()
	}
	id := uuid.NewString()
	if w.NewID != nil {
		id = w.NewID()
	}
	data, err := json.Marshal(e.Updates)
	if err != nil {
		return "", fmt.Errorf("marshal audit updates: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_log(id,task_id,owner_id,modified_by,change_type,updates_json,ts) VALUES (?,?,?,?,?,?,?)`,
		id, e.TaskID, e.OwnerID, e.ModifiedBy, string(e.ChangeType), string(data), repo.FormatTime(at))
	if err != nil {
		return "", fmt.Errorf("append audit entry: %w", err)
	}
	return id, nil
}
